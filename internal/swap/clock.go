package swap

import "time"

// Clock supplies the controller's notion of now. Timeout decisions go
// through it so tests can drive the claim and refund windows without
// sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
