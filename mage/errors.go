package mage

import "errors"

// ErrNotInitialized is returned by every facade operation called
// before Init or after ShutdownCleanly.
var ErrNotInitialized = errors.New("mage: core not initialized, call Init first")

// ErrAlreadyInitialized is returned by Init when called a second time
// without an intervening ShutdownCleanly.
var ErrAlreadyInitialized = errors.New("mage: core already initialized")
