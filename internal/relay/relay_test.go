package relay

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermalguard/internal/cooldown"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newController() (*Controller, *clock) {
	clk := &clock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	gate := cooldown.NewWithClock(30*time.Second, clk.Now)
	return NewController(gate, slog.New(slog.NewTextHandler(io.Discard, nil))), clk
}

func TestControl_WritesCommands(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{cmd: On, want: "1\n"},
		{cmd: Off, want: "0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			c, _ := newController()
			var dev bytes.Buffer

			require.NoError(t, c.Control(&dev, tt.cmd))
			assert.Equal(t, tt.want, dev.String())
			assert.Equal(t, cooldown.CoolingDown, c.State())
		})
	}
}

func TestControl_CooldownBlocksSecondWrite(t *testing.T) {
	c, clk := newController()
	var dev bytes.Buffer

	require.NoError(t, c.Control(&dev, On))
	clk.Advance(29 * time.Second)
	assert.ErrorIs(t, c.Control(&dev, Off), cooldown.ErrCoolingDown)
	assert.Equal(t, "1\n", dev.String())

	clk.Advance(time.Second)
	require.NoError(t, c.Control(&dev, Off))
	assert.Equal(t, "1\n0\n", dev.String())
}

func TestControl_InvalidCommandDoesNotArm(t *testing.T) {
	c, _ := newController()
	var dev bytes.Buffer

	err := c.Control(&dev, "2")
	assert.ErrorIs(t, err, ErrInvalidCommand)
	assert.Empty(t, dev.String())
	assert.Equal(t, cooldown.Ready, c.State())
}

func TestControl_InvalidCommandDoesNotResetWindow(t *testing.T) {
	c, clk := newController()
	var dev bytes.Buffer

	require.NoError(t, c.Control(&dev, On))
	clk.Advance(10 * time.Second)
	assert.ErrorIs(t, c.Control(&dev, "2"), cooldown.ErrCoolingDown)

	clk.Advance(10 * time.Second)
	assert.ErrorIs(t, c.Control(&dev, Off), cooldown.ErrCoolingDown)
	assert.Equal(t, "1\n", dev.String())
}

func TestControl_NilDevice(t *testing.T) {
	c, _ := newController()

	assert.ErrorIs(t, c.Control(nil, On), ErrNoDevice)
	assert.Equal(t, cooldown.Ready, c.State())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("port gone") }

func TestControl_WriteErrorDoesNotArm(t *testing.T) {
	c, _ := newController()

	err := c.Control(failingWriter{}, On)
	require.Error(t, err)
	assert.Equal(t, cooldown.Ready, c.State())
}
