package runner

import "errors"

// ErrPassInFlight is returned by RunNow when a pass is already executing.
var ErrPassInFlight = errors.New("runner: pass already in flight")
