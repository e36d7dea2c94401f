package application

import "time"

// Clock lets services be tested with a fixed time
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now, in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// IDGenerator hands out entity ids
type IDGenerator func() string
