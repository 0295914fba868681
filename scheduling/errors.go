package scheduling

import "errors"

// ErrAlreadyStarted is returned by Thread.Start when a previous Start's
// goroutine has not yet observed Stop and exited.
var ErrAlreadyStarted = errors.New("mage/scheduling: thread already started")

// ErrUnknownFlavor is returned by NewThread for an unrecognized Flavor.
var ErrUnknownFlavor = errors.New("mage/scheduling: unknown thread flavor")
