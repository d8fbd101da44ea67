// Package clock implements host.Clock with the wall clock.
package clock

import (
	"time"

	"github.com/predictify/marketengine/internal/host"
)

// System is the real-time host.Clock used outside of tests.
type System struct{}

var _ host.Clock = System{}

// Now returns the current time in unix seconds.
func (System) Now() int64 { return time.Now().Unix() }
