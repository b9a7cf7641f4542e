package hotkey

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Terminal reads one command per line:
//
//	<enter>, t       toggle
//	s, start         start
//	x, stop          stop
//	c, q, cancel     cancel
type Terminal struct {
	r      io.Reader
	log    zerolog.Logger
	events chan Event
}

// NewTerminal returns a line-oriented source reading from r.
func NewTerminal(r io.Reader, log zerolog.Logger) *Terminal {
	return &Terminal{r: r, log: log, events: make(chan Event, 4)}
}

func (t *Terminal) Events() <-chan Event { return t.events }

// ParseCommand maps one input line to an event.
func ParseCommand(line string) (Event, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "t", "toggle":
		return Toggle, true
	case "s", "start":
		return Start, true
	case "x", "stop":
		return Stop, true
	case "c", "q", "cancel", "quit":
		return Cancel, true
	default:
		return 0, false
	}
}

// Run reads until the input ends or ctx is done, then closes Events. A
// blocked read on the underlying reader is abandoned, not interrupted.
func (t *Terminal) Run(ctx context.Context) error {
	defer close(t.events)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(t.r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			ev, known := ParseCommand(line)
			if !known {
				t.log.Warn().Str("input", line).Msg("Unknown command")
				continue
			}
			t.log.Debug().Str("event", ev.String()).Msg("Control event")
			select {
			case t.events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
