package inject

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeClipboard(got *[]string, err error) *Clipboard {
	return &Clipboard{write: func(s string) error {
		*got = append(*got, s)
		return err
	}}
}

func TestDeliverWritesText(t *testing.T) {
	var got []string
	c := fakeClipboard(&got, nil)

	require.NoError(t, c.Deliver(context.Background(), "hello there"))
	require.NoError(t, c.Deliver(context.Background(), "   "))
	require.Equal(t, []string{"hello there"}, got)
}

func TestDeliverWrapsWriteError(t *testing.T) {
	var got []string
	boom := errors.New("xclip missing")
	c := fakeClipboard(&got, boom)

	err := c.Deliver(context.Background(), "text")
	require.ErrorIs(t, err, boom)
}

func TestDeliverUnsupported(t *testing.T) {
	var got []string
	c := fakeClipboard(&got, nil)
	c.unsupported = true

	require.ErrorIs(t, c.Deliver(context.Background(), "text"), ErrUnsupported)
	require.Empty(t, got)
}

func TestDeliverHonoursCancelledContext(t *testing.T) {
	var got []string
	c := fakeClipboard(&got, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, c.Deliver(ctx, "text"), context.Canceled)
	require.Empty(t, got)
}
