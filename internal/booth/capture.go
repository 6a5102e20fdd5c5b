package booth

import (
	"fmt"

	"votebooth/internal/input"
)

// Capture records one vote for r. It blocks until the button is released:
// every LED goes dark, the chosen LED lights solid while the button is held,
// then the token is appended to the ledger, the buzzer confirms, and the
// breathing offsets are restored. There is no timeout.
func (b *Booth) Capture(r input.Role) error {
	if !r.IsVote() {
		return fmt.Errorf("booth: %s is not a vote button", r)
	}
	b.setState(Capturing)

	if err := b.lights.Blackout(); err != nil {
		return fatal("blackout", err)
	}
	token := string(r.Token())
	b.emit(token)

	if err := b.lights.SetSolid(r.Channel(), true); err != nil {
		return fatal("led on", err)
	}
	if err := b.awaitRelease(r); err != nil {
		return err
	}
	if err := b.lights.SetSolid(r.Channel(), false); err != nil {
		return fatal("led off", err)
	}

	if err := b.ledger.Append([]byte(token)); err != nil {
		return fatal("append", err)
	}
	b.recordVote(token)

	if err := b.beeper.Tone(b.cfg.ToneDuration); err != nil {
		return fatal("tone", err)
	}
	b.lights.ResetStagger()
	b.setState(Idle)
	return nil
}

// awaitRelease polls r until it has read released ReleaseSamples times in a
// row. A re-press during bounce starts the count again.
func (b *Booth) awaitRelease(r input.Role) error {
	released := 0
	for {
		pressed, err := b.inputs.IsPressed(r)
		if err != nil {
			return fatal("sample", err)
		}
		if pressed {
			released = 0
		} else {
			released++
			if released >= b.cfg.ReleaseSamples {
				return nil
			}
		}
		b.sleep(b.cfg.PollInterval)
	}
}

func (b *Booth) recordVote(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.VotesCast++
	b.snap.LastVote = token
	b.snap.LastVoteAt = b.now().UTC()
}
