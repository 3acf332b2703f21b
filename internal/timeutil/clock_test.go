package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Since(t *testing.T) {
	c := RealClock{}
	assert.GreaterOrEqual(t, c.Since(time.Now().Add(-time.Second)), time.Second)
}

func TestMockClock_AfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	ch := c.After(3 * time.Second)
	assert.Equal(t, 1, c.Waiters())

	c.Advance(2 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, start.Add(3*time.Second), got)
		assert.Zero(t, c.Waiters())
	default:
		t.Fatal("did not fire")
	}
}

func TestMockClock_AfterZeroFiresImmediately(t *testing.T) {
	c := NewMockClock(time.Time{})
	select {
	case <-c.After(0):
	default:
		t.Fatal("did not fire")
	}
}

func TestMockClock_SleepAdvances(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Sleep(time.Second)
	c.Sleep(2 * time.Second)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, c.Sleeps())
	assert.Equal(t, 3*time.Second, c.Since(start))
}
