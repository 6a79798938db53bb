package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vapourismo/knx-go/knx/cemi"
	"github.com/vapourismo/knx-go/knx/dpt"

	"knx-ev-bridge/config"
	"knx-ev-bridge/params"
)

type startCall struct {
	rateAmps        uint8
	durationSeconds uint16
}

type fakeCharger struct {
	mux      sync.Mutex
	starts   []startCall
	stops    int
	startErr error
	stopErr  error
}

func (f *fakeCharger) StartChargeNow(rateAmps uint8, durationSeconds uint16) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.starts = append(f.starts, startCall{rateAmps, durationSeconds})
	return f.startErr
}

func (f *fakeCharger) StopCharge() error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeCharger) calls() ([]startCall, int) {
	f.mux.Lock()
	defer f.mux.Unlock()
	return append([]startCall{}, f.starts...), f.stops
}

func testConfig() *config.Config {
	return &config.Config{
		KNX: config.KNX{
			Enabled:                  true,
			GatewayIP:                "127.0.0.1",
			GatewayPort:              3671,
			ChargeNowRateAddress:     "1/1/11",
			ChargeNowDurationAddress: "1/1/10",
			ChargeNowDurationDefault: 3600,
		},
		Charger: config.Charger{
			StationAddress: "127.0.0.1:8080",
		},
	}
}

func newTestWorker(t *testing.T, cfg *config.Config, charger *fakeCharger, statusUpdates chan params.SessionStatus) *Worker {
	w, err := NewWorker(context.Background(), cfg, make(chan params.Telegram, 10), statusUpdates, charger)
	require.NoError(t, err)
	return w
}

func telegram(t *testing.T, addr string, data []byte) params.Telegram {
	dst, err := cemi.NewGroupAddrString(addr)
	require.NoError(t, err)
	return params.Telegram{Destination: dst, Data: data}
}

func rateTelegram(t *testing.T, value uint8) params.Telegram {
	return telegram(t, "1/1/11", dpt.DPT_5005(value).Pack())
}

func durationTelegram(t *testing.T, value uint16) params.Telegram {
	return telegram(t, "1/1/10", dpt.DPT_7001(value).Pack())
}

func TestRateUsesDefaultDuration(t *testing.T) {
	charger := &fakeCharger{}
	w := newTestWorker(t, testConfig(), charger, nil)

	w.handleTelegram(rateTelegram(t, 16))

	starts, stops := charger.calls()
	require.Len(t, starts, 1)
	assert.Equal(t, startCall{16, 3600}, starts[0])
	assert.Equal(t, 0, stops)
	assert.True(t, w.session.active)
}

func TestDurationThenRate(t *testing.T) {
	charger := &fakeCharger{}
	w := newTestWorker(t, testConfig(), charger, nil)

	w.handleTelegram(durationTelegram(t, 36000))
	starts, stops := charger.calls()
	assert.Len(t, starts, 0)
	assert.Equal(t, 0, stops)
	assert.False(t, w.session.active)

	w.handleTelegram(rateTelegram(t, 16))
	starts, _ = charger.calls()
	require.Len(t, starts, 1)
	assert.Equal(t, startCall{16, 36000}, starts[0])
	assert.True(t, w.session.active)
}

func TestRateZeroStopsCharge(t *testing.T) {
	charger := &fakeCharger{}
	w := newTestWorker(t, testConfig(), charger, nil)

	w.handleTelegram(durationTelegram(t, 36000))
	w.handleTelegram(rateTelegram(t, 16))
	w.handleTelegram(rateTelegram(t, 0))

	starts, stops := charger.calls()
	assert.Len(t, starts, 1)
	assert.Equal(t, 1, stops)
	assert.False(t, w.session.active)
	// the remembered duration survives the stop
	assert.EqualValues(t, 36000, w.session.duration)
}

func TestRateZeroWhileIdle(t *testing.T) {
	charger := &fakeCharger{}
	w := newTestWorker(t, testConfig(), charger, nil)

	w.handleTelegram(rateTelegram(t, 0))
	w.handleTelegram(rateTelegram(t, 0))

	starts, stops := charger.calls()
	assert.Len(t, starts, 0)
	assert.Equal(t, 0, stops)
	assert.False(t, w.session.active)
}

func TestDurationZeroStopsCharge(t *testing.T) {
	charger := &fakeCharger{}
	w := newTestWorker(t, testConfig(), charger, nil)

	w.handleTelegram(durationTelegram(t, 36000))
	w.handleTelegram(rateTelegram(t, 16))
	w.handleTelegram(durationTelegram(t, 0))

	_, stops := charger.calls()
	assert.Equal(t, 1, stops)
	assert.False(t, w.session.active)
	assert.EqualValues(t, 36000, w.session.duration)
}

func TestDurationZeroWhileIdle(t *testing.T) {
	charger := &fakeCharger{}
	w := newTestWorker(t, testConfig(), charger, nil)

	w.handleTelegram(durationTelegram(t, 0))

	starts, stops := charger.calls()
	assert.Len(t, starts, 0)
	assert.Equal(t, 0, stops)
	assert.EqualValues(t, 3600, w.session.duration)
}

func TestRateRetriggersActiveSession(t *testing.T) {
	charger := &fakeCharger{}
	w := newTestWorker(t, testConfig(), charger, nil)

	w.handleTelegram(durationTelegram(t, 36000))
	w.handleTelegram(rateTelegram(t, 16))
	w.handleTelegram(rateTelegram(t, 10))

	starts, stops := charger.calls()
	require.Len(t, starts, 2)
	assert.Equal(t, startCall{16, 36000}, starts[0])
	assert.Equal(t, startCall{10, 36000}, starts[1])
	assert.Equal(t, 0, stops)
	assert.True(t, w.session.active)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	charger := &fakeCharger{}
	w := newTestWorker(t, testConfig(), charger, nil)

	// a 16 bit payload on the rate address and an 8 bit payload on the
	// duration address
	w.handleTelegram(telegram(t, "1/1/11", dpt.DPT_7001(16).Pack()))
	w.handleTelegram(telegram(t, "1/1/10", dpt.DPT_5005(16).Pack()))

	starts, stops := charger.calls()
	assert.Len(t, starts, 0)
	assert.Equal(t, 0, stops)
	assert.False(t, w.session.active)
	assert.EqualValues(t, 3600, w.session.duration)
}

func TestUnknownAddressIsIgnored(t *testing.T) {
	charger := &fakeCharger{}
	w := newTestWorker(t, testConfig(), charger, nil)

	w.handleTelegram(telegram(t, "2/2/2", dpt.DPT_5005(16).Pack()))

	starts, stops := charger.calls()
	assert.Len(t, starts, 0)
	assert.Equal(t, 0, stops)
}

func TestChargerErrorDoesNotRollBackTransition(t *testing.T) {
	charger := &fakeCharger{startErr: errors.New("station unreachable")}
	w := newTestWorker(t, testConfig(), charger, nil)

	w.handleTelegram(rateTelegram(t, 16))
	assert.True(t, w.session.active)

	w.handleTelegram(rateTelegram(t, 0))
	_, stops := charger.calls()
	assert.Equal(t, 1, stops)
	assert.False(t, w.session.active)
}

func TestStatusUpdates(t *testing.T) {
	charger := &fakeCharger{}
	statusUpdates := make(chan params.SessionStatus, 10)
	w := newTestWorker(t, testConfig(), charger, statusUpdates)

	w.handleTelegram(durationTelegram(t, 36000))
	w.handleTelegram(rateTelegram(t, 16))
	w.handleTelegram(rateTelegram(t, 0))

	require.Len(t, statusUpdates, 2)
	assert.Equal(t, params.SessionStatus{Active: true, RateAmps: 16, DurationSeconds: 36000}, <-statusUpdates)
	assert.Equal(t, params.SessionStatus{Active: false, DurationSeconds: 36000}, <-statusUpdates)
}

func TestWorkerLoop(t *testing.T) {
	charger := &fakeCharger{}
	telegrams := make(chan params.Telegram, 10)
	w, err := NewWorker(context.Background(), testConfig(), telegrams, nil, charger)
	require.NoError(t, err)

	require.NoError(t, w.Start())
	telegrams <- durationTelegram(t, 600)
	telegrams <- rateTelegram(t, 8)

	require.Eventually(t, func() bool {
		starts, _ := charger.calls()
		return len(starts) == 1
	}, 5*time.Second, 10*time.Millisecond)

	starts, _ := charger.calls()
	assert.Equal(t, startCall{8, 600}, starts[0])
	require.NoError(t, w.Stop())
}
