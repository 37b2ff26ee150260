package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleFiresAfterDuration(t *testing.T) {
	s := NewDelayScheduler()
	done := make(chan struct{})

	s.Schedule("timeout1", 5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}
}

func TestCancelPreventsCallback(t *testing.T) {
	s := NewDelayScheduler()
	fired := make(chan struct{})

	s.Schedule("timeout1", 20*time.Millisecond, func() { close(fired) })
	require.True(t, s.Pending("timeout1"))
	s.Cancel("timeout1")
	assert.False(t, s.Pending("timeout1"))

	select {
	case <-fired:
		t.Fatal("callback fired after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	s := NewDelayScheduler()
	assert.NotPanics(t, func() { s.Cancel("nonexistent") })
}

func TestScheduleReplacesExistingUnderSameName(t *testing.T) {
	s := NewDelayScheduler()
	var fired []string

	s.Schedule("name", 5*time.Millisecond, func() { fired = append(fired, "first") })
	s.Schedule("name", 5*time.Millisecond, func() { fired = append(fired, "second") })

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []string{"second"}, fired)
}

func TestCancelAll(t *testing.T) {
	s := NewDelayScheduler()
	fired := 0
	s.Schedule("a", 10*time.Millisecond, func() { fired++ })
	s.Schedule("b", 10*time.Millisecond, func() { fired++ })

	s.CancelAll()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, fired)
}
