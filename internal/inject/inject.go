// Package inject delivers final text to the user's clipboard.
package inject

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no clipboard utility is available.
var ErrUnsupported = errors.New("clipboard not supported on this system")

// Injector defines the interface for text delivery
type Injector interface {
	Deliver(ctx context.Context, text string) error
}

// Clipboard copies text to the system clipboard.
type Clipboard struct {
	unsupported bool
	write       func(string) error
}

// NewClipboard returns an injector backed by the system clipboard.
func NewClipboard() *Clipboard {
	return &Clipboard{unsupported: clipboard.Unsupported, write: clipboard.WriteAll}
}

// Deliver implements Injector. Blank text is ignored.
func (c *Clipboard) Deliver(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.unsupported {
		return ErrUnsupported
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.write(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
