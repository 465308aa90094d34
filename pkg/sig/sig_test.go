package sig

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTakeClearsOnRead(t *testing.T) {
	f := NewFlags()
	assert.False(t, f.Abort.Take())

	f.Abort.Raise()
	assert.True(t, f.Abort.Pending())
	assert.True(t, f.Abort.Take())
	assert.False(t, f.Abort.Pending())
	assert.False(t, f.Abort.Take(), "one raise fires once")

	f.Abort.Raise()
	assert.True(t, f.Abort.Take(), "a new raise fires again")
}

func TestRepeatedRaiseCollapses(t *testing.T) {
	f := NewFlags()
	f.Feedhold.Raise()
	f.Feedhold.Raise()
	assert.True(t, f.Feedhold.Take())
	assert.False(t, f.Feedhold.Take())
}

func TestConcurrentRaiseSingleConsumer(t *testing.T) {
	f := NewFlags()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.CycleStart.Raise()
		}()
	}
	wg.Wait()
	assert.True(t, f.CycleStart.Take())
	assert.False(t, f.CycleStart.Take())
}

func TestWakeCoalesces(t *testing.T) {
	f := NewFlags()
	f.Abort.Raise()
	f.Feedhold.Raise()

	select {
	case <-f.Wake():
	default:
		t.Fatal("expected a pending wake")
	}
	select {
	case <-f.Wake():
		t.Fatal("wakes should coalesce")
	default:
	}
}

func TestIntercept(t *testing.T) {
	f := NewFlags()
	assert.True(t, f.Intercept('!'))
	assert.True(t, f.Intercept('~'))
	assert.True(t, f.Intercept(0x18))
	assert.False(t, f.Intercept('g'))

	assert.True(t, f.Feedhold.Take())
	assert.True(t, f.CycleStart.Take())
	assert.True(t, f.Abort.Take())
	assert.Equal(t, "cycle_start", f.CycleStart.Name())
}

func TestClear(t *testing.T) {
	f := NewFlags()
	f.Feedhold.Raise()
	f.Feedhold.Clear()
	assert.False(t, f.Feedhold.Take())
}
