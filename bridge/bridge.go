package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/loggo"
	"github.com/pkg/errors"
	"github.com/vapourismo/knx-go/knx/cemi"

	"knx-ev-bridge/chargers/common"
	"knx-ev-bridge/config"
	"knx-ev-bridge/params"
)

var log = loggo.GetLogger("knxev.bridge")

func NewWorker(ctx context.Context, cfg *config.Config, telegrams chan params.Telegram, statusUpdates chan params.SessionStatus, charger common.Client) (*Worker, error) {
	roles, err := cfg.KNX.AddressRoles()
	if err != nil {
		return nil, errors.Wrap(err, "resolving address roles")
	}

	return &Worker{
		telegrams:     telegrams,
		statusUpdates: statusUpdates,
		charger:       charger,
		roles:         roles,
		session:       session{duration: cfg.KNX.ChargeNowDurationDefault},
		ctx:           ctx,
		closed:        make(chan struct{}),
		quit:          make(chan struct{}),
	}, nil
}

// Worker consumes telegrams from the gateway listener and drives the
// charge controller. It is the sole owner of the session state; every
// telegram runs the whole decode, transition and command sequence under
// the worker lock.
type Worker struct {
	telegrams     chan params.Telegram
	statusUpdates chan params.SessionStatus

	charger common.Client
	roles   map[cemi.GroupAddr]params.Role
	session session

	ctx    context.Context
	closed chan struct{}
	quit   chan struct{}

	mux sync.Mutex
}

func (w *Worker) handleTelegram(t params.Telegram) {
	w.mux.Lock()
	defer w.mux.Unlock()

	role, ok := w.roles[t.Destination]
	if !ok {
		log.Tracef("ignoring telegram for %s", t.Destination)
		return
	}

	val, err := decodeTelegram(role, t.Data)
	if err != nil {
		log.Warningf("dropping telegram for %s: %s", t.Destination, err)
		return
	}

	var act action
	switch val.Role {
	case params.RoleDuration:
		act = w.session.applyDuration(val.DurationSeconds)
		if val.DurationSeconds != 0 {
			log.Debugf("duration for next charge set to %d seconds", val.DurationSeconds)
		}
	case params.RoleRate:
		act = w.session.applyRate(val.RateAmps)
	}

	// Command emission is fire and forget: a controller error is logged
	// and the transition stands. The controller owns retries, if any.
	switch act {
	case actionStart:
		log.Infof("starting charge at %d amps for %d seconds", val.RateAmps, w.session.duration)
		if err := w.charger.StartChargeNow(val.RateAmps, w.session.duration); err != nil {
			log.Errorf("failed to start charge: %s", err)
		}
		w.sendStatus(params.SessionStatus{
			Active:          true,
			RateAmps:        val.RateAmps,
			DurationSeconds: w.session.duration,
		})
	case actionStop:
		log.Infof("stopping charge")
		if err := w.charger.StopCharge(); err != nil {
			log.Errorf("failed to stop charge: %s", err)
		}
		w.sendStatus(params.SessionStatus{
			Active:          false,
			DurationSeconds: w.session.duration,
		})
	}
}

func (w *Worker) sendStatus(status params.SessionStatus) {
	if w.statusUpdates == nil {
		return
	}
	select {
	case w.statusUpdates <- status:
	default:
		log.Debugf("status channel full; dropping update")
	}
}

func (w *Worker) loop() {
	defer close(w.closed)

	for {
		select {
		case t, ok := <-w.telegrams:
			if !ok {
				return
			}
			w.handleTelegram(t)
		case <-w.quit:
			return
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) Start() error {
	go w.loop()
	return nil
}

func (w *Worker) Stop() error {
	close(w.quit)
	select {
	case <-w.closed:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timeout waiting for worker to exit")
	}
}
