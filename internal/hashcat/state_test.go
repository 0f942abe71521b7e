package hashcat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLifecycleStateString(t *testing.T) {
	assert.Equal(t, "NEW", StateNew.String())
	assert.Equal(t, "STARTING", StateStarting.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "UNKNOWN", LifecycleState(9).String())
	assert.True(t, StateDone.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
}

func TestStateManagerIsMonotonic(t *testing.T) {
	m := newStateManager()
	assert.Equal(t, StateNew, m.GetState())

	assert.True(t, m.TransitionTo(StateStarting))
	assert.False(t, m.TransitionTo(StateStarting))
	assert.False(t, m.TransitionTo(StateNew))

	assert.False(t, m.transitionFrom(StateNew, StateRunning))
	assert.True(t, m.transitionFrom(StateStarting, StateRunning))

	assert.True(t, m.TransitionTo(StateDone))
	assert.False(t, m.TransitionTo(StateRunning))
	assert.False(t, m.transitionFrom(StateDone, StateNew))

	state, changedAt := m.GetStateInfo()
	assert.Equal(t, StateDone, state)
	assert.False(t, changedAt.IsZero())
	assert.GreaterOrEqual(t, m.TimeSinceStateChange(), time.Duration(0))
}

func TestStateManagerCrashPath(t *testing.T) {
	m := newStateManager()
	m.TransitionTo(StateStarting)

	// no status was reported, the run goes straight to DONE
	assert.True(t, m.TransitionTo(StateDone))
	assert.False(t, m.transitionFrom(StateStarting, StateRunning))
	assert.Equal(t, StateDone, m.GetState())
}

func TestFlagSetClear(t *testing.T) {
	f := newFlag()
	assert.False(t, f.IsSet())

	assert.True(t, f.Set())
	assert.False(t, f.Set())
	assert.True(t, f.IsSet())

	assert.True(t, f.Clear())
	assert.False(t, f.Clear())
	assert.False(t, f.IsSet())
}

func TestFlagWaitWakesOnChange(t *testing.T) {
	f := newFlag()

	go func() {
		time.Sleep(20 * time.Millisecond)
		f.Set()
	}()

	start := time.Now()
	assert.True(t, f.Wait(context.Background(), true, 5*time.Second, nil))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFlagWaitAlreadyAtLevel(t *testing.T) {
	f := newFlag()
	assert.True(t, f.Wait(context.Background(), false, time.Millisecond, nil))
}

func TestFlagWaitTimeout(t *testing.T) {
	f := newFlag()

	start := time.Now()
	assert.False(t, f.Wait(context.Background(), true, 50*time.Millisecond, nil))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestFlagWaitContextAndAbort(t *testing.T) {
	f := newFlag()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, f.Wait(ctx, true, 5*time.Second, nil))

	abort := make(chan struct{})
	close(abort)
	assert.False(t, f.Wait(context.Background(), true, 5*time.Second, abort))
}
