// Package input samples the booth buttons.
//
// Buttons are wired active-low against a pull-up, so a line reading 0 is a
// pressed button. Contact bounce is not filtered here; the vote capture holds
// until the button is seen released, which absorbs it.
package input

import "fmt"

type Role int

const (
	VoteA Role = iota
	VoteB
	VoteC
	Shutdown
)

// VoteRoles lists the vote buttons in the order they are checked each tick.
var VoteRoles = []Role{VoteA, VoteB, VoteC}

func (r Role) String() string {
	switch r {
	case VoteA:
		return "vote_a"
	case VoteB:
		return "vote_b"
	case VoteC:
		return "vote_c"
	case Shutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// IsVote reports whether r is one of the vote buttons.
func (r Role) IsVote() bool {
	return r >= VoteA && r <= VoteC
}

// Token is the byte recorded for a vote: 'A', 'B' or 'C'. It is 0 for
// non-vote roles.
func (r Role) Token() byte {
	if !r.IsVote() {
		return 0
	}
	return 'A' + byte(r-VoteA)
}

// Channel is the LED channel index paired with a vote button.
func (r Role) Channel() int {
	return int(r - VoteA)
}

// Line reads the raw electrical level of one button.
type Line interface {
	Value() (int, error)
}

type Sampler struct {
	lines map[Role]Line
}

// NewSampler requires a line for every role.
func NewSampler(lines map[Role]Line) (*Sampler, error) {
	for _, r := range append(append([]Role{}, VoteRoles...), Shutdown) {
		if lines[r] == nil {
			return nil, fmt.Errorf("input: no line for %s", r)
		}
	}
	return &Sampler{lines: lines}, nil
}

// IsPressed samples role once. Pressed is the inverted raw level.
func (s *Sampler) IsPressed(r Role) (bool, error) {
	l, ok := s.lines[r]
	if !ok {
		return false, fmt.Errorf("input: no line for %s", r)
	}
	v, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("input: read %s: %w", r, err)
	}
	return v == 0, nil
}
