package audio

import (
	"strconv"
	"strings"
)

// Selector picks a device by explicit index or by a name substring.
type Selector struct {
	Index int // negative when unset
	Name  string
}

// DefaultSelector selects the fallback device.
var DefaultSelector = Selector{Index: -1}

// ParseSelector reads "", "default", a numeric index, or a name substring.
func ParseSelector(s string) Selector {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "default") {
		return DefaultSelector
	}
	if idx, err := strconv.Atoi(s); err == nil && idx >= 0 {
		return Selector{Index: idx}
	}
	return Selector{Index: -1, Name: s}
}

func (s Selector) String() string {
	switch {
	case s.Index >= 0:
		return strconv.Itoa(s.Index)
	case s.Name != "":
		return s.Name
	default:
		return "default"
	}
}

// SelectDevice resolves sel against devices. An explicit index wins, then the
// first case-insensitive name or id match; anything else falls back to index 0.
// The second return value is false when the fallback was used for a
// selector that asked for something specific.
func SelectDevice(devices []Device, sel Selector) (Device, bool, error) {
	if len(devices) == 0 {
		return Device{}, false, ErrDeviceUnavailable
	}

	if sel.Index >= 0 {
		for _, d := range devices {
			if d.Index == sel.Index {
				return d, true, nil
			}
		}
		return devices[0], false, nil
	}

	if term := strings.ToLower(strings.TrimSpace(sel.Name)); term != "" {
		for _, d := range devices {
			if deviceMatches(d, term) {
				return d, true, nil
			}
		}
		return devices[0], false, nil
	}

	return devices[0], true, nil
}

// deviceMatches reports whether a lowercase term matches a device name or id.
func deviceMatches(d Device, term string) bool {
	return strings.Contains(strings.ToLower(d.Name), term) ||
		strings.Contains(strings.ToLower(d.ID), term)
}
