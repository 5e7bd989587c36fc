package portfolio

import (
	"fmt"
	"strings"
)

// Status is the presentational state of a position. It never enters the
// valuation math.
type Status int

const (
	StatusActive Status = iota
	StatusHolding
	StatusClosed
)

var statusNames = [...]string{
	StatusActive:  "Active",
	StatusHolding: "Holding",
	StatusClosed:  "Closed",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus accepts the status name in any case.
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(v)
	for i, name := range statusNames {
		if strings.EqualFold(v, name) {
			return Status(i), nil
		}
	}
	return StatusActive, fmt.Errorf("%w: unknown status %q", ErrInvalidPosition, v)
}

func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("%w: unknown status %d", ErrInvalidPosition, int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
