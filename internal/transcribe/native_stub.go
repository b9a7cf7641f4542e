//go:build !whisper

package transcribe

import (
	"context"

	"github.com/rs/zerolog"
)

// Native is unavailable in this build.
type Native struct{}

func NewNative(string, string, int, zerolog.Logger) (*Native, error) {
	return nil, ErrNativeUnavailable
}

func (*Native) Transcribe(context.Context, string) (string, error) {
	return "", ErrNativeUnavailable
}

func (*Native) Close() error { return nil }
