package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	ch := c.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before advance")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, start.Add(5*time.Second), got)
	default:
		t.Fatal("did not fire")
	}
}

func TestFakeTickerRepeats(t *testing.T) {
	c := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tk := c.NewTicker(time.Minute)

	for i := 0; i < 3; i++ {
		c.Advance(time.Minute)
		select {
		case <-tk.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}

	tk.Stop()
	c.Advance(time.Minute)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	c := NewFake(time.Now())
	done := make(chan struct{})
	go func() {
		<-c.After(time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Second)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "goroutine was not released")
	}
}
