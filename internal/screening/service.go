// Package screening turns thermal frames into alerts: a calibrated
// temperature at or above the fever threshold sends an SMS and switches the
// relay on.
package screening

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"thermalguard/internal/actionlog"
	"thermalguard/internal/calibration"
	"thermalguard/internal/geometry"
	"thermalguard/internal/relay"
	"thermalguard/internal/types"
)

type SMSSender interface {
	Send(ctx context.Context, recipient, message string) error
}

type RelaySwitch interface {
	Control(dev io.Writer, command string) error
}

type EventPublisher interface {
	PublishEvent(ev types.Event) error
}

type Options struct {
	Table *calibration.Table

	SMS       SMSSender
	Recipient string

	// Relay is skipped when nil.
	Relay       RelaySwitch
	RelayDevice io.Writer

	Recorder *actionlog.Recorder
	// Events is optional.
	Events EventPublisher

	FeverThreshold float64
	// MinDistance disables the proximity check when zero.
	MinDistance float64

	Logger *slog.Logger
}

type Service struct {
	opts Options
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{opts: opts}
}

// Result summarizes what one frame produced.
type Result struct {
	Temperature *float64
	Fever       bool
	// Proximity is the closest distance between two people, if it breached MinDistance.
	Proximity *float64
	Actions   []actionlog.Action
}

func (s *Service) HandleFrame(ctx context.Context, f types.Frame) (Result, error) {
	var res Result
	log := s.opts.Logger.With("device_id", f.DeviceID)

	if s.opts.MinDistance > 0 {
		if i, j, d, ok := geometry.ClosestPair(f.People); ok && d < s.opts.MinDistance {
			log.Warn("people too close", "a", i, "b", j, "distance", d, "min_distance", s.opts.MinDistance)
			res.Proximity = &d
			s.publish(log, types.Event{
				DeviceID: f.DeviceID,
				Kind:     "proximity",
				Outcome:  "detected",
				Detail:   fmt.Sprintf("%.2f", d),
			})
		}
	}

	if f.MaxPixel == nil {
		return res, nil
	}

	temp, err := s.opts.Table.Temperature(*f.MaxPixel)
	if err != nil {
		return res, fmt.Errorf("calibrate frame from %s: %w", f.DeviceID, err)
	}
	res.Temperature = &temp
	log.Debug("frame calibrated", "pixel", *f.MaxPixel, "temperature_c", temp)

	if temp < s.opts.FeverThreshold {
		return res, nil
	}
	res.Fever = true
	log.Warn("elevated temperature detected", "temperature_c", temp, "threshold_c", s.opts.FeverThreshold)

	if s.opts.SMS != nil && s.opts.Recipient != "" {
		msg := fmt.Sprintf("Elevated temperature of %.1f C detected by %s", temp, f.DeviceID)
		err := s.opts.SMS.Send(ctx, s.opts.Recipient, msg)
		res.Actions = append(res.Actions, s.record(ctx, log, f.DeviceID, actionlog.KindSMS, s.opts.Recipient, err))
	}

	if s.opts.Relay != nil {
		err := s.opts.Relay.Control(s.opts.RelayDevice, relay.On)
		res.Actions = append(res.Actions, s.record(ctx, log, f.DeviceID, actionlog.KindRelay, relay.On, err,
			relay.ErrNoDevice, relay.ErrInvalidCommand))
	}

	return res, nil
}

func (s *Service) record(ctx context.Context, log *slog.Logger, deviceID string, kind actionlog.Kind, detail string, err error, rejected ...error) actionlog.Action {
	a := s.opts.Recorder.Record(ctx, kind, detail, err, rejected...)
	s.publish(log, types.Event{
		ID:        a.ID,
		DeviceID:  deviceID,
		Kind:      string(a.Kind),
		Outcome:   string(a.Outcome),
		Detail:    a.Detail,
		Timestamp: a.At,
	})
	return a
}

func (s *Service) publish(log *slog.Logger, ev types.Event) {
	if s.opts.Events == nil {
		return
	}
	if err := s.opts.Events.PublishEvent(ev); err != nil {
		log.Warn("failed to publish event", "kind", ev.Kind, "error", err)
	}
}
