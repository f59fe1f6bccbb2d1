package utils

import (
	"math/rand"
	"time"
)

// SliceToSet converts a slice of any comparable type to a set represented by a map[T]struct{}.
func SliceToSet[T comparable](slice []T) map[T]struct{} {
	set := make(map[T]struct{}, len(slice))
	for _, item := range slice {
		set[item] = struct{}{}
	}
	return set
}

// Backoff returns the delay before retry number attempt (zero based): base
// doubled per attempt, capped at maxDelay when it is positive, with up to 25% jitter
// taken off.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := base * time.Duration(1<<uint(attempt))
	if maxDelay > 0 && (delay > maxDelay || delay <= 0) {
		delay = maxDelay
	}
	jitter := time.Duration(float64(delay) * rand.Float64() * 0.25)
	return time.Duration(float64(delay)*0.75) + jitter
}
