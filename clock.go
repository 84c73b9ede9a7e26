package credvault

import "time"

// Clock abstracts the time source so expiry and timestamp logic is
// deterministic in tests. Production code uses SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
