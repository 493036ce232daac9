package cooldown

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate() (*Gate, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewWithClock(30*time.Second, clk.Now), clk
}

func TestGate_StartsReady(t *testing.T) {
	g, _ := newGate()
	assert.Equal(t, Ready, g.State())
	assert.Zero(t, g.Remaining())
}

func TestGate_BlocksWithinWindow(t *testing.T) {
	g, clk := newGate()
	runs := 0
	success := func(time.Time) (bool, error) { runs++; return true, nil }

	require.NoError(t, g.Do(success))
	assert.Equal(t, CoolingDown, g.State())

	clk.Advance(29 * time.Second)
	assert.ErrorIs(t, g.Do(success), ErrCoolingDown)
	assert.Equal(t, time.Second, g.Remaining())
	assert.Equal(t, 1, runs)

	clk.Advance(time.Second)
	assert.Equal(t, Ready, g.State())
	require.NoError(t, g.Do(success))
	assert.Equal(t, 2, runs)
}

func TestGate_WindowMeasuredFromStart(t *testing.T) {
	g, clk := newGate()

	require.NoError(t, g.Do(func(s time.Time) (bool, error) {
		clk.Advance(10 * time.Second) // slow action
		return true, nil
	}))
	assert.Equal(t, 20*time.Second, g.Remaining())

	clk.Advance(20 * time.Second)
	assert.Equal(t, Ready, g.State())
}

func TestGate_FailedRunDoesNotArm(t *testing.T) {
	g, _ := newGate()
	boom := errors.New("boom")

	err := g.Do(func(time.Time) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Ready, g.State())

	require.NoError(t, g.Do(func(time.Time) (bool, error) { return true, nil }))
	assert.Equal(t, CoolingDown, g.State())
}

func TestGate_PartialSuccessArmsAndReturnsError(t *testing.T) {
	g, _ := newGate()
	partial := errors.New("partial")

	err := g.Do(func(time.Time) (bool, error) { return true, partial })
	assert.ErrorIs(t, err, partial)
	assert.Equal(t, CoolingDown, g.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "cooling_down", CoolingDown.String())
}
