package random

import (
	"math/rand"
	"time"
)

// NewSource creates a seedable random source. Tests pass a fixed seed to
// make timeout selection deterministic.
func NewSource(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// NewTimeSource creates a random source seeded with the current time.
func NewTimeSource() *rand.Rand {
	return NewSource(time.Now().UnixNano())
}

// Timeout generates a random duration in [min, max) using the provided source.
func Timeout(rand *rand.Rand, min time.Duration, max time.Duration) time.Duration {
	n := rand.Int63n(max.Milliseconds()-min.Milliseconds()) + min.Milliseconds()
	return time.Duration(n) * time.Millisecond
}

// Millis generates a random millisecond count in [min, max) using the
// provided source.
func Millis(rand *rand.Rand, min uint, max uint) uint {
	return min + uint(rand.Int63n(int64(max-min)))
}
