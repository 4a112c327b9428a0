package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/harvestly/harvestly/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestFailureDelay_PadsToFloor(t *testing.T) {
	delay := auth.NewFailureDelay(50*time.Millisecond, 10*time.Millisecond)
	start := time.Now()

	delay.PadFrom(context.Background(), start)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestFailureDelay_AccountsForElapsed(t *testing.T) {
	delay := auth.NewFailureDelay(20*time.Millisecond, 0)
	start := time.Now().Add(-time.Second)

	before := time.Now()
	delay.PadFrom(context.Background(), start)

	assert.Less(t, time.Since(before), 10*time.Millisecond)
}

func TestFailureDelay_StopsOnCancel(t *testing.T) {
	delay := auth.NewFailureDelay(5*time.Second, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	delay.PadFrom(ctx, start)

	assert.Less(t, time.Since(start), time.Second)
}

func TestFailureDelay_Disabled(t *testing.T) {
	var nilDelay *auth.FailureDelay
	assert.Zero(t, nilDelay.Target())
	assert.Zero(t, auth.NewFailureDelay(0, time.Second).Target())
}

func TestFailureDelay_TargetWithinJitter(t *testing.T) {
	delay := auth.NewFailureDelay(100*time.Millisecond, 50*time.Millisecond)
	for i := 0; i < 20; i++ {
		target := delay.Target()
		assert.GreaterOrEqual(t, target, 100*time.Millisecond)
		assert.Less(t, target, 150*time.Millisecond)
	}
}
