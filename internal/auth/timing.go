package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// FailureDelay pads failed credential checks to a common floor so that
// "no such user" and "wrong password" answer in about the same time.
type FailureDelay struct {
	floor  time.Duration
	jitter time.Duration
}

// NewFailureDelay creates a FailureDelay. A zero floor disables padding.
func NewFailureDelay(floor, jitter time.Duration) *FailureDelay {
	return &FailureDelay{floor: floor, jitter: jitter}
}

// randomDuration returns a value in [0, max) from crypto/rand
func randomDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// Target returns the padded duration for one failure
func (d *FailureDelay) Target() time.Duration {
	if d == nil || d.floor <= 0 {
		return 0
	}
	return d.floor + randomDuration(d.jitter)
}

// PadFrom sleeps until at least Target has elapsed since start, or ctx is done
func (d *FailureDelay) PadFrom(ctx context.Context, start time.Time) {
	remaining := d.Target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
