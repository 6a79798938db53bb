package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/loggo"
	"github.com/pkg/errors"

	"knx-ev-bridge/config"
	"knx-ev-bridge/params"
)

var log = loggo.GetLogger("knxev.status")

func NewWorker(ctx context.Context, cfg *config.Config, updates chan params.SessionStatus) (*Worker, error) {
	if err := cfg.Status.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating status settings")
	}

	return &Worker{
		cfg:         *cfg,
		updates:     updates,
		topicPrefix: cfg.Status.TopicPrefix,
		ctx:         ctx,
		closed:      make(chan struct{}),
		quit:        make(chan struct{}),
	}, nil
}

// Worker publishes the charge session state to MQTT whenever the bridge
// reports a transition. Topics are <prefix>/chargeNow/{active,rate,duration},
// published retained so late subscribers see the current session.
type Worker struct {
	cfg         config.Config
	updates     chan params.SessionStatus
	topicPrefix string

	client mqtt.Client

	ctx    context.Context
	closed chan struct{}
	quit   chan struct{}
}

func (w *Worker) mqttOnConnect(client mqtt.Client) {
	log.Infof("connected to %s", w.cfg.Status.MQTT.Broker)
}

func (w *Worker) mqttConnectionLostHandler(client mqtt.Client, err error) {
	log.Warningf("connection to %s has been lost: %q", w.cfg.Status.MQTT.Broker, err)
}

func (w *Worker) publish(key, value string) {
	topic := fmt.Sprintf("%s/chargeNow/%s", w.topicPrefix, key)
	token := w.client.Publish(topic, 0, true, value)
	// Don't hold up the loop on a slow broker; paho queues the message.
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Errorf("failed to publish %s: %q", topic, err)
		}
	}()
}

func (w *Worker) publishStatus(status params.SessionStatus) {
	w.publish("active", strconv.FormatBool(status.Active))
	w.publish("rate", strconv.FormatUint(uint64(status.RateAmps), 10))
	w.publish("duration", strconv.FormatUint(uint64(status.DurationSeconds), 10))
}

func (w *Worker) loop() {
	defer func() {
		w.client.Disconnect(250)
		close(w.closed)
	}()

	for {
		select {
		case status, ok := <-w.updates:
			if !ok {
				return
			}
			w.publishStatus(status)
		case <-w.quit:
			return
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) Start() error {
	opts, err := w.cfg.Status.MQTT.ClientOptions()
	if err != nil {
		return errors.Wrap(err, "creating mqtt client options")
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(w.mqttOnConnect)
	opts.SetConnectionLostHandler(w.mqttConnectionLostHandler)

	w.client = mqtt.NewClient(opts)
	if token := w.client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "connecting to mqtt broker")
	}

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
