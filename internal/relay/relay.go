// Package relay switches the relay board attached over serial. The board
// accepts a single ASCII digit followed by a newline.
package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"

	"thermalguard/internal/cooldown"
)

var (
	ErrNoDevice       = errors.New("relay device not connected")
	ErrInvalidCommand = errors.New("invalid relay command (use 1 for on, 0 for off)")
)

const (
	On  = "1"
	Off = "0"
)

type Controller struct {
	gate   *cooldown.Gate
	logger *slog.Logger
}

func NewController(gate *cooldown.Gate, logger *slog.Logger) *Controller {
	return &Controller{gate: gate, logger: logger}
}

// Control writes command to dev. Checks run in order: cooldown, device,
// command. Only a completed write arms the cooldown.
func (c *Controller) Control(dev io.Writer, command string) error {
	err := c.gate.Do(func(time.Time) (bool, error) {
		if dev == nil {
			return false, ErrNoDevice
		}
		var label string
		switch command {
		case On:
			label = "on"
		case Off:
			label = "off"
		default:
			return false, fmt.Errorf("%w: %q", ErrInvalidCommand, command)
		}
		if _, err := io.WriteString(dev, command+"\n"); err != nil {
			return false, fmt.Errorf("write relay command: %w", err)
		}
		c.logger.Info("relay switched", "state", label)
		return true, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, cooldown.ErrCoolingDown):
		c.logger.Info("relay is in cooldown, please wait before sending another command",
			"remaining", c.gate.Remaining())
	case errors.Is(err, ErrNoDevice):
		c.logger.Warn("relay connection is not established")
	case errors.Is(err, ErrInvalidCommand):
		c.logger.Warn("invalid relay command", "command", command)
	default:
		c.logger.Error("relay write failed", "error", err)
	}
	return err
}

func (c *Controller) State() cooldown.State {
	return c.gate.State()
}

// OpenSerial opens the relay board at 8N1.
func OpenSerial(port string, baud int) (serial.Port, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", port, err)
	}
	return p, nil
}
