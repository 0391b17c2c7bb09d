package memory

import "time"

// nowMillis returns the current wall-clock time in Unix milliseconds.
// Conditional updates stamp updated_at with it.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
