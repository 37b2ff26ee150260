package switchsim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsActiveReflectsRawState(t *testing.T) {
	p := NewPanel(nil)
	assert.False(t, p.IsActive("sw1", 0))
	assert.True(t, p.IsInactive("sw1", 0))

	p.SetActive("sw1", true)
	assert.True(t, p.IsActive("sw1", 0))
	assert.False(t, p.IsInactive("sw1", 0))
}

func TestIsActiveGatesOnDebounceDelay(t *testing.T) {
	p := NewPanel(nil)
	p.SetActive("sw1", true)

	assert.False(t, p.IsActive("sw1", 50*time.Millisecond))
	time.Sleep(60 * time.Millisecond)
	assert.True(t, p.IsActive("sw1", 50*time.Millisecond))
}

func TestHandlerFiresAfterDebounceSettles(t *testing.T) {
	p := NewPanel(nil)
	fired := make(chan struct{})
	p.AddSwitchHandler("sw1", true, 20*time.Millisecond, func() { close(fired) })

	p.SetActive("sw1", true)

	select {
	case <-fired:
		t.Fatal("handler fired before debounce elapsed")
	case <-time.After(5 * time.Millisecond):
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("handler never fired")
	}
}

func TestHandlerSkippedIfSwitchBouncesBack(t *testing.T) {
	p := NewPanel(nil)
	fired := false
	p.AddSwitchHandler("sw1", true, 30*time.Millisecond, func() { fired = true })

	p.SetActive("sw1", true)
	time.Sleep(10 * time.Millisecond)
	p.SetActive("sw1", false)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired)
}

func TestRemoveSwitchHandlerStopsFutureDelivery(t *testing.T) {
	p := NewPanel(nil)
	fired := false
	key := p.AddSwitchHandler("sw1", true, 0, func() { fired = true })
	p.RemoveSwitchHandler(key)

	p.SetActive("sw1", true)
	assert.False(t, fired)
}

func TestCoilTracksCalls(t *testing.T) {
	c := NewCoil()
	require.NoError(t, c.Pulse())
	require.NoError(t, c.Enable())
	assert.True(t, c.Energized())
	require.NoError(t, c.Disable())
	assert.False(t, c.Energized())
	assert.Equal(t, 1, c.PulseCount)
	assert.Equal(t, 1, c.EnableCount)
	assert.Equal(t, 1, c.DisableCount)
}
