package storage

import (
	"fmt"
	"strings"
)

// Mode combines a write action with the Binary flag.
type Mode uint8

// Write actions. Exactly one action is set; Binary may be OR'd in.
const (
	Overwrite Mode = iota
	Append
	CreateIfAbsent

	Binary Mode = 1 << 4
)

const actionMask = Binary - 1

// Action strips the Binary flag.
func (m Mode) Action() Mode { return m & actionMask }

// IsBinary reports whether the Binary flag is set.
func (m Mode) IsBinary() bool { return m&Binary != 0 }

func (m Mode) String() string {
	var s string
	switch m.Action() {
	case Overwrite:
		s = "w"
	case Append:
		s = "a"
	case CreateIfAbsent:
		s = "x"
	default:
		s = fmt.Sprintf("mode(%d)", uint8(m.Action()))
	}
	if m.IsBinary() {
		s += "b"
	}
	return s
}

// ParseMode parses the classic "w", "a", "x" strings with an optional "b".
func ParseMode(s string) (Mode, error) {
	var m Mode
	rest := s
	if strings.Contains(rest, "b") {
		m |= Binary
		rest = strings.Replace(rest, "b", "", 1)
	}
	switch rest {
	case "w", "":
		m |= Overwrite
	case "a":
		m |= Append
	case "x":
		m |= CreateIfAbsent
	default:
		return 0, fmt.Errorf("invalid write mode %q", s)
	}
	return m, nil
}

// ReadMode selects the representation returned by Read.
type ReadMode uint8

const (
	ReadText ReadMode = iota
	ReadBinary
)

// ParseReadMode parses "r" or "rb".
func ParseReadMode(s string) (ReadMode, error) {
	switch s {
	case "r", "":
		return ReadText, nil
	case "rb", "br", "b":
		return ReadBinary, nil
	}
	return 0, fmt.Errorf("invalid read mode %q", s)
}
