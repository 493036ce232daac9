package screening

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermalguard/internal/actionlog"
	"thermalguard/internal/calibration"
	"thermalguard/internal/cooldown"
	"thermalguard/internal/geometry"
	"thermalguard/internal/relay"
	"thermalguard/internal/types"
)

type fakeSMS struct {
	sent []string
	err  error
}

func (f *fakeSMS) Send(_ context.Context, recipient, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, recipient+": "+message)
	return nil
}

type fakeEvents struct{ events []types.Event }

func (f *fakeEvents) PublishEvent(ev types.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func pixel(v float64) *float64 { return &v }

type fixture struct {
	svc    *Service
	sms    *fakeSMS
	dev    *bytes.Buffer
	events *fakeEvents
}

func newFixture(t *testing.T, minDistance float64) fixture {
	t.Helper()
	table, err := calibration.New([]float64{0, 200, 300}, []float64{20, 35, 40})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	gate := cooldown.NewWithClock(30*time.Second, func() time.Time { return clk })

	fx := fixture{sms: &fakeSMS{}, dev: &bytes.Buffer{}, events: &fakeEvents{}}
	fx.svc = New(Options{
		Table:          table,
		SMS:            fx.sms,
		Recipient:      "+15550100",
		Relay:          relay.NewController(gate, logger),
		RelayDevice:    fx.dev,
		Events:         fx.events,
		FeverThreshold: 37.5,
		MinDistance:    minDistance,
		Logger:         logger,
	})
	return fx
}

func TestHandleFrame_BelowThreshold(t *testing.T) {
	fx := newFixture(t, 0)

	res, err := fx.svc.HandleFrame(context.Background(), types.Frame{DeviceID: "cam1", MaxPixel: pixel(200)})
	require.NoError(t, err)
	require.NotNil(t, res.Temperature)
	assert.Equal(t, 35.0, *res.Temperature)
	assert.False(t, res.Fever)
	assert.Empty(t, fx.sms.sent)
	assert.Empty(t, fx.dev.String())
}

func TestHandleFrame_FeverTriggersSMSAndRelay(t *testing.T) {
	fx := newFixture(t, 0)

	res, err := fx.svc.HandleFrame(context.Background(), types.Frame{DeviceID: "cam1", MaxPixel: pixel(250)})
	require.NoError(t, err)
	assert.True(t, res.Fever)
	assert.Equal(t, 37.5, *res.Temperature)
	require.Len(t, fx.sms.sent, 1)
	assert.Contains(t, fx.sms.sent[0], "37.5")
	assert.Equal(t, "1\n", fx.dev.String())

	require.Len(t, res.Actions, 2)
	assert.Equal(t, actionlog.OutcomeSent, res.Actions[0].Outcome)
	assert.Equal(t, actionlog.KindRelay, res.Actions[1].Kind)
	assert.Len(t, fx.events.events, 2)

	// relay cooldown holds on the next hot frame
	res, err = fx.svc.HandleFrame(context.Background(), types.Frame{DeviceID: "cam1", MaxPixel: pixel(300)})
	require.NoError(t, err)
	assert.Equal(t, actionlog.OutcomeCooldown, res.Actions[1].Outcome)
	assert.Equal(t, "1\n", fx.dev.String())
}

func TestHandleFrame_NoTable(t *testing.T) {
	fx := newFixture(t, 0)
	fx.svc.opts.Table = nil

	_, err := fx.svc.HandleFrame(context.Background(), types.Frame{DeviceID: "cam1", MaxPixel: pixel(250)})
	assert.ErrorIs(t, err, calibration.ErrNotLoaded)
}

func TestHandleFrame_Proximity(t *testing.T) {
	fx := newFixture(t, 2)

	res, err := fx.svc.HandleFrame(context.Background(), types.Frame{
		DeviceID: "cam1",
		People:   []geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 10, Y: 10}},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Proximity)
	assert.InDelta(t, 1.41421356, *res.Proximity, 1e-6)
	require.Len(t, fx.events.events, 1)
	assert.Equal(t, "proximity", fx.events.events[0].Kind)

	res, err = fx.svc.HandleFrame(context.Background(), types.Frame{
		DeviceID: "cam1",
		People:   []geometry.Point{{X: 0, Y: 0}, {X: 3, Y: 4}},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Proximity)
}
