// Package alert sends SMS notifications through cloud device properties.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"thermalguard/internal/cooldown"
)

// PropertyUpdater publishes a value to a named cloud property.
type PropertyUpdater interface {
	UpdateProperty(ctx context.Context, propertyID string, value any) error
}

// SMSProperties are the cloud property ids the SMS sketch listens on.
type SMSProperties struct {
	Recipient string
	Message   string
	Send      string
}

// SMSTrigger asks the device to send an SMS by setting the recipient and
// message properties and then raising the send flag.
type SMSTrigger struct {
	props  PropertyUpdater
	ids    SMSProperties
	gate   *cooldown.Gate
	logger *slog.Logger
}

func NewSMSTrigger(props PropertyUpdater, ids SMSProperties, gate *cooldown.Gate, logger *slog.Logger) *SMSTrigger {
	return &SMSTrigger{props: props, ids: ids, gate: gate, logger: logger}
}

// Send returns cooldown.ErrCoolingDown without touching any property when an
// SMS went out less than a window ago. The three updates are independent: a
// failed one is logged and the rest still run, and the cooldown is armed
// regardless. Failures come back joined.
func (s *SMSTrigger) Send(ctx context.Context, recipient, message string) error {
	err := s.gate.Do(func(start time.Time) (bool, error) {
		s.logger.Info("sending sms", "recipient", recipient)

		var errs []error
		updates := []struct {
			id    string
			value any
		}{
			{s.ids.Recipient, recipient},
			{s.ids.Message, message},
			{s.ids.Send, true},
		}
		for _, u := range updates {
			if err := s.props.UpdateProperty(ctx, u.id, u.value); err != nil {
				errs = append(errs, err)
			}
		}

		s.logger.Info("sms send triggered", "recipient", recipient, "failed_updates", len(errs))
		return true, errors.Join(errs...)
	})
	if errors.Is(err, cooldown.ErrCoolingDown) {
		s.logger.Info("sms cooldown active, please wait before sending another sms",
			"remaining", s.gate.Remaining())
		return err
	}
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

func (s *SMSTrigger) State() cooldown.State {
	return s.gate.State()
}
