// Package booth is the voting booth controller: a single-threaded polling loop
// that breathes the LEDs while idle, captures one vote at a time, and runs the
// shutdown sequence exactly once.
package booth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"votebooth/internal/input"
)

type State int

const (
	Idle State = iota
	Capturing
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case ShuttingDown:
		return "shutting_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Lights is the LED side of the booth.
type Lights interface {
	AdvanceAll() error
	SetSolid(channel int, on bool) error
	Blackout() error
	ResetStagger()
	ShutdownAll() error
}

type Inputs interface {
	IsPressed(r input.Role) (bool, error)
}

// Ledger is the durable vote log.
type Ledger interface {
	Append(p []byte) error
	Unmount() error
}

type Beeper interface {
	Tone(d time.Duration) error
	Chime(pulses int, on, off time.Duration) error
}

type Config struct {
	// PollInterval is the hold-check cadence during a capture.
	PollInterval time.Duration
	// IdleTick is the sleep after each idle animation step.
	IdleTick time.Duration
	// ToneDuration is the confirmation beep after a vote is stored.
	ToneDuration time.Duration
	// ReleaseSamples is how many consecutive released samples end a capture.
	ReleaseSamples int

	ChimePulses int
	ChimePulse  time.Duration
}

type Deps struct {
	Lights Lights
	Inputs Inputs
	Ledger Ledger
	Beeper Beeper

	// Transcript receives the operator-visible vote tokens and lifecycle
	// lines. Defaults to io.Discard.
	Transcript io.Writer
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
	// Now defaults to time.Now.
	Now func() time.Time
}

type Snapshot struct {
	State      string    `json:"state"`
	VotesCast  int       `json:"votes_cast"`
	LastVote   string    `json:"last_vote,omitempty"`
	LastVoteAt time.Time `json:"last_vote_utc,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

type Booth struct {
	cfg Config

	lights     Lights
	inputs     Inputs
	ledger     Ledger
	beeper     Beeper
	transcript io.Writer
	sleep      func(time.Duration)
	now        func() time.Time

	mu    sync.RWMutex
	state State
	snap  Snapshot

	shutdownOnce sync.Once
	shutdownErr  error
}

func New(cfg Config, d Deps) (*Booth, error) {
	if d.Lights == nil || d.Inputs == nil || d.Ledger == nil || d.Beeper == nil {
		return nil, fmt.Errorf("booth: lights, inputs, ledger and beeper are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	if cfg.IdleTick <= 0 {
		cfg.IdleTick = 20 * time.Millisecond
	}
	if cfg.ToneDuration <= 0 {
		cfg.ToneDuration = 300 * time.Millisecond
	}
	if cfg.ReleaseSamples <= 0 {
		cfg.ReleaseSamples = 1
	}
	if cfg.ChimePulses < 0 {
		cfg.ChimePulses = 0
	}
	if cfg.ChimePulse <= 0 {
		cfg.ChimePulse = 50 * time.Millisecond
	}
	if d.Transcript == nil {
		d.Transcript = io.Discard
	}
	if d.Sleep == nil {
		d.Sleep = time.Sleep
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	b := &Booth{
		cfg:        cfg,
		lights:     d.Lights,
		inputs:     d.Inputs,
		ledger:     d.Ledger,
		beeper:     d.Beeper,
		transcript: d.Transcript,
		sleep:      d.Sleep,
		now:        d.Now,
	}
	b.snap.State = Idle.String()
	return b, nil
}

func (b *Booth) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Booth) Snapshot() Snapshot {
	if b == nil {
		return Snapshot{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

func (b *Booth) setState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
	b.snap.State = s.String()
}

func (b *Booth) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.LastError = err.Error()
}

// MountStorage brings up the vote medium before the loop starts. A failure
// is reported on the transcript. Unless acceptWithout is set the booth then
// refuses votes: the shutdown sequence runs and ErrStorageUnavailable is
// returned.
func (b *Booth) MountStorage(mount func() error, acceptWithout bool) error {
	err := mount()
	if err == nil {
		return nil
	}
	b.line(fmt.Sprintf("OS Error %v", err))
	b.setErr(err)
	if acceptWithout {
		log.Printf("booth: storage mount failed, accepting votes anyway: %v", err)
		return nil
	}
	log.Printf("booth: storage mount failed, refusing votes: %v", err)
	return errors.Join(fmt.Errorf("%w: %v", ErrStorageUnavailable, err), b.Shutdown())
}

// Run prints the ready line and ticks until the shutdown button is pressed,
// ctx is canceled, or a fatal error occurs. Every exit path runs the shutdown
// sequence.
func (b *Booth) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("booth: fault: %v", r)
			b.line(fmt.Sprintf("Program Error %v", r))
			fault := fmt.Errorf("booth: fault: %v", r)
			b.setErr(fault)
			err = errors.Join(fault, b.Shutdown())
		}
	}()

	b.line("Voting Booth ready.")
	for {
		select {
		case <-ctx.Done():
			log.Printf("booth: stopping: %v", ctx.Err())
			return b.Shutdown()
		default:
		}

		done, err := b.Tick()
		if done {
			// Shutdown already ran; its step failures are logged and final.
			return err
		}
		if err != nil {
			if !IsFatal(err) {
				log.Printf("booth: %v", err)
				continue
			}
			log.Printf("booth: fatal: %v", err)
			b.setErr(err)
			b.line(fmt.Sprintf("Program Error %v", err))
			return errors.Join(err, b.Shutdown())
		}
	}
}

// Tick runs one pass of the loop: shutdown button first, then the vote
// buttons in order A, B, C, at most one capture per tick. With nothing pressed
// the LEDs advance one step and the loop sleeps. done is true once the
// shutdown sequence has run.
func (b *Booth) Tick() (done bool, err error) {
	pressed, err := b.inputs.IsPressed(input.Shutdown)
	if err != nil {
		return false, fatal("sample", err)
	}
	if pressed {
		return true, b.Shutdown()
	}

	for _, r := range input.VoteRoles {
		pressed, err := b.inputs.IsPressed(r)
		if err != nil {
			return false, fatal("sample", err)
		}
		if pressed {
			return false, b.Capture(r)
		}
	}

	if err := b.lights.AdvanceAll(); err != nil {
		return false, fatal("animate", err)
	}
	b.sleep(b.cfg.IdleTick)
	return false, nil
}

// Shutdown emits the terminal marker, unmounts storage, releases the LEDs and
// plays the shutdown chime. It runs once; later calls return the first result.
// Every step is attempted even if an earlier one fails.
func (b *Booth) Shutdown() error {
	b.shutdownOnce.Do(func() {
		b.setState(ShuttingDown)
		b.line("!")

		var errs []error
		if err := b.ledger.Unmount(); err != nil {
			log.Printf("booth: unmount failed: %v", err)
			errs = append(errs, err)
		}
		if err := b.lights.ShutdownAll(); err != nil {
			log.Printf("booth: led shutdown failed: %v", err)
			errs = append(errs, err)
		}
		if err := b.beeper.Chime(b.cfg.ChimePulses, b.cfg.ChimePulse, b.cfg.ChimePulse); err != nil {
			log.Printf("booth: shutdown chime failed: %v", err)
			errs = append(errs, err)
		}
		b.shutdownErr = errors.Join(errs...)
		if b.shutdownErr != nil {
			b.setErr(b.shutdownErr)
		}
	})
	return b.shutdownErr
}

// emit writes a vote token to the transcript without a line break.
func (b *Booth) emit(s string) {
	if _, err := io.WriteString(b.transcript, s); err != nil {
		log.Printf("booth: transcript write failed: %v", err)
	}
}

func (b *Booth) line(s string) {
	b.emit(s + "\n")
}
