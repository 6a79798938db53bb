package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/loggo"
	"github.com/pkg/errors"
	"github.com/vapourismo/knx-go/knx"
	"github.com/vapourismo/knx-go/knx/cemi"

	"knx-ev-bridge/config"
	"knx-ev-bridge/params"
)

var log = loggo.GetLogger("knxev.gateway")

// reconnectInterval is how long we wait before retrying an unreachable
// gateway.
const reconnectInterval = 30 * time.Second

func NewWorker(ctx context.Context, cfg *config.Config, telegrams chan params.Telegram) (*Worker, error) {
	roles, err := cfg.KNX.AddressRoles()
	if err != nil {
		return nil, errors.Wrap(err, "resolving address roles")
	}

	addrs := make(map[cemi.GroupAddr]struct{}, len(roles))
	for addr := range roles {
		addrs[addr] = struct{}{}
	}

	return &Worker{
		endpoint:  cfg.KNX.GatewayAddress(),
		addrs:     addrs,
		telegrams: telegrams,
		ctx:       ctx,
		closed:    make(chan struct{}),
		quit:      make(chan struct{}),
	}, nil
}

// Worker maintains the group tunnel to the KNXnet/IP gateway and forwards
// writes on the monitored addresses to the bridge. Everything else on the
// bus is dropped here.
type Worker struct {
	endpoint  string
	addrs     map[cemi.GroupAddr]struct{}
	telegrams chan<- params.Telegram

	ctx    context.Context
	closed chan struct{}
	quit   chan struct{}
}

func (w *Worker) forward(ev knx.GroupEvent) {
	if ev.Command != knx.GroupWrite {
		return
	}
	if _, ok := w.addrs[ev.Destination]; !ok {
		return
	}

	telegram := params.Telegram{
		Destination: ev.Destination,
		Data:        ev.Data,
	}
	select {
	case w.telegrams <- telegram:
	case <-time.After(30 * time.Second):
		log.Errorf("sending telegram for %s timed out after 30 seconds", ev.Destination)
	}
}

// receive drains inbound until the tunnel closes it or the worker is asked
// to stop. Returns true when the worker should exit.
func (w *Worker) receive(inbound <-chan knx.GroupEvent) bool {
	for {
		select {
		case ev, ok := <-inbound:
			if !ok {
				return false
			}
			log.Tracef("received group telegram for %s", ev.Destination)
			w.forward(ev)
		case <-w.quit:
			return true
		case <-w.ctx.Done():
			return true
		}
	}
}

// sleep waits for the given duration. Returns false when the worker is
// asked to stop while waiting.
func (w *Worker) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-w.quit:
		return false
	case <-w.ctx.Done():
		return false
	}
}

func (w *Worker) loop() {
	defer close(w.closed)

	for {
		log.Debugf("connecting to gateway %s", w.endpoint)
		tunnel, err := knx.NewGroupTunnel(w.endpoint, knx.DefaultTunnelConfig)
		if err != nil {
			log.Errorf("failed to connect to gateway %s: %s", w.endpoint, err)
			if !w.sleep(reconnectInterval) {
				return
			}
			continue
		}

		log.Infof("connected to gateway %s", w.endpoint)
		done := w.receive(tunnel.Inbound())
		tunnel.Close()
		if done {
			return
		}

		log.Warningf("connection to gateway %s lost; reconnecting", w.endpoint)
		if !w.sleep(time.Second) {
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
