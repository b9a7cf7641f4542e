// Package permissions checks OS-level access needed before opening a microphone.
package permissions

import "errors"

// ErrMicrophoneDenied is returned when the OS has not granted microphone access.
var ErrMicrophoneDenied = errors.New("microphone permission not granted")
