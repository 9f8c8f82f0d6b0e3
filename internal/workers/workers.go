package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns the number of workers for a pool. A positive integer in the
// environment variable key wins. Otherwise GOMAXPROCS, which follows
// container CPU limits, is scaled by multiplier and capped at limit.
// A limit of 0 means no cap. The result is at least 1.
func Count(key string, multiplier float64, limit int) int {
	if key != "" {
		if override := os.Getenv(key); override != "" {
			if count, err := strconv.Atoi(override); err == nil && count > 0 {
				return count
			}
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if limit > 0 && workers > limit {
		workers = limit
	}
	return max(workers, 1)
}

// ForCPU returns one worker per CPU.
func ForCPU(key string, limit int) int {
	return Count(key, 1.0, limit)
}

// ForIO returns two workers per CPU.
func ForIO(key string, limit int) int {
	return Count(key, 2.0, limit)
}
