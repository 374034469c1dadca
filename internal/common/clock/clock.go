// internal/common/clock/clock.go
// Injectable time source so quiet-hours, daily caps and idempotency
// dates can be tested deterministically.

package clock

import "time"

// Clock provides the current time
type Clock interface {
	Now() time.Time
}

// Real is the wall clock
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Fixed is a settable clock for tests
type Fixed struct {
	Current time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{Current: t}
}

func (f *Fixed) Now() time.Time {
	return f.Current
}

// Advance moves the fixed clock forward
func (f *Fixed) Advance(d time.Duration) {
	f.Current = f.Current.Add(d)
}
