package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DoublesUpToCap(t *testing.T) {
	base := 250 * time.Millisecond
	cap := 2 * time.Second

	assert.Equal(t, 250*time.Millisecond, backoff(0, base, cap))
	assert.Equal(t, 500*time.Millisecond, backoff(1, base, cap))
	assert.Equal(t, time.Second, backoff(2, base, cap))
	assert.Equal(t, 2*time.Second, backoff(3, base, cap))
	assert.Equal(t, cap, backoff(10, base, cap), "never exceeds the cap")
}

func TestBackoff_NegativeAttemptUsesBase(t *testing.T) {
	assert.Equal(t, time.Second, backoff(-1, time.Second, 4*time.Second))
}
