package repair

import "time"

// Phase is the timing of one labelled step of a repair.
type Phase struct {
	Name    string        `json:"name"`
	Elapsed time.Duration `json:"elapsed"`
	Rows    int           `json:"rows"`
}

// Measure runs fn and returns its result together with the wall time it took.
func Measure[T any](fn func() (T, error)) (T, time.Duration, error) {
	start := time.Now()
	result, err := fn()
	return result, time.Since(start), err
}
