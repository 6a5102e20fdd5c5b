package booth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"votebooth/internal/buzzer"
	"votebooth/internal/illumination"
	"votebooth/internal/input"
	"votebooth/internal/storage"
)

// timeline collects sleeps and buzzer writes in the order they happen.
type timeline struct {
	events []string
}

func (tl *timeline) sleep(d time.Duration) {
	tl.events = append(tl.events, fmt.Sprintf("sleep %s", d))
}

type buzzerLine struct {
	tl  *timeline
	err error
}

func (l buzzerLine) SetValue(v int) error {
	if l.err != nil {
		return l.err
	}
	l.tl.events = append(l.tl.events, fmt.Sprintf("buzz %d", v))
	return nil
}

type ledOutput struct {
	duties   []uint16
	closes   int
	closeErr error
}

func (o *ledOutput) SetDuty(level uint16) error {
	o.duties = append(o.duties, level)
	return nil
}

func (o *ledOutput) Close() error {
	o.closes++
	return o.closeErr
}

func (o *ledOutput) last() uint16 {
	if len(o.duties) == 0 {
		return 0
	}
	return o.duties[len(o.duties)-1]
}

func (o *ledOutput) saw(level uint16) bool {
	for _, d := range o.duties {
		if d == level {
			return true
		}
	}
	return false
}

// scriptedInputs replays a per-button sequence of samples; once a script is
// used up the button reads released.
type scriptedInputs struct {
	scripts map[input.Role][]bool
	reads   map[input.Role]int
	err     error
	panicOn input.Role
	panics  bool
}

func newInputs(scripts map[input.Role][]bool) *scriptedInputs {
	if scripts == nil {
		scripts = map[input.Role][]bool{}
	}
	return &scriptedInputs{scripts: scripts, reads: map[input.Role]int{}}
}

func (s *scriptedInputs) IsPressed(r input.Role) (bool, error) {
	if s.panics && r == s.panicOn {
		panic("sampler exploded")
	}
	if s.err != nil {
		return false, s.err
	}
	n := s.reads[r]
	s.reads[r]++
	if sc := s.scripts[r]; n < len(sc) {
		return sc[n], nil
	}
	return false, nil
}

type fakeLedger struct {
	buf        bytes.Buffer
	err        error
	unmountErr error
	unmounts   int
}

func (l *fakeLedger) Append(p []byte) error {
	if l.err != nil {
		return l.err
	}
	l.buf.Write(p)
	return nil
}

func (l *fakeLedger) Unmount() error {
	l.unmounts++
	return l.unmountErr
}

type rig struct {
	booth      *Booth
	lights     *illumination.Controller
	leds       []*ledOutput
	inputs     *scriptedInputs
	transcript *bytes.Buffer
	tl         *timeline
}

func newRig(t *testing.T, cfg Config, ledger Ledger, scripts map[input.Role][]bool) *rig {
	t.Helper()
	leds := []*ledOutput{{}, {}, {}}
	lights, err := illumination.New(illumination.Config{Step: 0.5, Gap: 48, MaxDuty: 16384}, leds[0], leds[1], leds[2])
	if err != nil {
		t.Fatalf("illumination.New: %v", err)
	}
	tl := &timeline{}
	in := newInputs(scripts)
	transcript := &bytes.Buffer{}
	b, err := New(cfg, Deps{
		Lights:     lights,
		Inputs:     in,
		Ledger:     ledger,
		Beeper:     buzzer.New(buzzerLine{tl: tl}, tl.sleep),
		Transcript: transcript,
		Sleep:      tl.sleep,
		Now:        func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &rig{booth: b, lights: lights, leds: leds, inputs: in, transcript: transcript, tl: tl}
}

func defaultConfig() Config {
	return Config{
		PollInterval:   20 * time.Millisecond,
		IdleTick:       20 * time.Millisecond,
		ToneDuration:   300 * time.Millisecond,
		ReleaseSamples: 2,
		ChimePulses:    6,
		ChimePulse:     50 * time.Millisecond,
	}
}

func countEvent(events []string, ev string) int {
	n := 0
	for _, e := range events {
		if e == ev {
			n++
		}
	}
	return n
}

func TestTick_PressHoldReleaseB(t *testing.T) {
	dir := t.TempDir()
	vol := storage.New(storage.Config{Mode: storage.ModeDirectory, MountPoint: dir})
	if err := vol.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	r := newRig(t, defaultConfig(), vol, map[input.Role][]bool{
		input.VoteB: {true, true, true, false, false},
	})

	done, err := r.booth.Tick()
	if err != nil || done {
		t.Fatalf("Tick done=%v err=%v", done, err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "votes.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "B" {
		t.Fatalf("log=%q want %q", b, "B")
	}
	if got := r.transcript.String(); got != "B" {
		t.Fatalf("transcript=%q want %q", got, "B")
	}
	if !r.leds[1].saw(illumination.FullDuty) {
		t.Fatalf("LED B never lit solid: %v", r.leds[1].duties)
	}
	if r.leds[1].last() != 0 {
		t.Fatalf("LED B duty=%d want 0", r.leds[1].last())
	}

	// Held for two polls, then two released samples, then the tone.
	want := []string{"sleep 20ms", "sleep 20ms", "sleep 20ms", "buzz 1", "sleep 300ms", "buzz 0"}
	if !reflect.DeepEqual(r.tl.events, want) {
		t.Fatalf("events=%v want %v", r.tl.events, want)
	}
	if r.booth.State() != Idle {
		t.Fatalf("state=%s want idle", r.booth.State())
	}
}

func TestCapture_BounceDoesNotCompleteVote(t *testing.T) {
	ledger := &fakeLedger{}
	r := newRig(t, defaultConfig(), ledger, map[input.Role][]bool{
		// Transient releases between re-presses, then settled released.
		input.VoteA: {true, false, true, false, true, true, false, false},
	})
	r.inputs.reads[input.VoteA] = 1 // the detecting sample is consumed by Tick in real use

	if err := r.booth.Capture(input.VoteA); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got := r.inputs.reads[input.VoteA]; got != 8 {
		t.Fatalf("samples=%d want 8 (vote completed before bounce settled)", got)
	}
	if ledger.buf.String() != "A" {
		t.Fatalf("log=%q want %q", ledger.buf.String(), "A")
	}
}

func TestCapture_SingleReleaseSampleMatchesPlainHold(t *testing.T) {
	cfg := defaultConfig()
	cfg.ReleaseSamples = 1
	ledger := &fakeLedger{}
	r := newRig(t, cfg, ledger, map[input.Role][]bool{
		input.VoteC: {true, false, true},
	})
	if err := r.booth.Capture(input.VoteC); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got := r.inputs.reads[input.VoteC]; got != 2 {
		t.Fatalf("samples=%d want 2", got)
	}
}

func TestCapture_RestoresStaggeredPhases(t *testing.T) {
	r := newRig(t, defaultConfig(), &fakeLedger{}, nil)
	for n := 0; n < 333; n++ {
		if _, err := r.booth.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if r.lights.Phase(0) == 0 {
		t.Fatalf("expected animation to have moved phase 0")
	}

	if err := r.booth.Capture(input.VoteB); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	for i := 0; i < r.lights.Len(); i++ {
		if want := float64(i) * -48; r.lights.Phase(i) != want {
			t.Fatalf("phase[%d]=%v want %v", i, r.lights.Phase(i), want)
		}
	}
	for i, o := range r.leds {
		if o.last() != 0 {
			t.Fatalf("LED %d duty=%d want 0 after capture", i, o.last())
		}
	}
}

func TestCapture_LogGrowsOneTokenPerVoteInOrder(t *testing.T) {
	dir := t.TempDir()
	vol := storage.New(storage.Config{Mode: storage.ModeDirectory, MountPoint: dir})
	if err := vol.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	r := newRig(t, defaultConfig(), vol, nil)

	order := []input.Role{input.VoteA, input.VoteA, input.VoteB, input.VoteC, input.VoteA, input.VoteC}
	for _, role := range order {
		if err := r.booth.Capture(role); err != nil {
			t.Fatalf("Capture(%s): %v", role, err)
		}
	}
	b, err := os.ReadFile(vol.LogPath())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "AABCAC" || len(b) != len(order) {
		t.Fatalf("log=%q want %q", b, "AABCAC")
	}
	if r.transcript.String() != "AABCAC" {
		t.Fatalf("transcript=%q want tokens without separators", r.transcript.String())
	}
	snap := r.booth.Snapshot()
	if snap.VotesCast != len(order) || snap.LastVote != "C" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestTick_Priority(t *testing.T) {
	t.Run("ShutdownBeatsVotes", func(t *testing.T) {
		ledger := &fakeLedger{}
		r := newRig(t, defaultConfig(), ledger, map[input.Role][]bool{
			input.Shutdown: {true},
			input.VoteA:    {true},
			input.VoteB:    {true},
		})
		done, err := r.booth.Tick()
		if err != nil || !done {
			t.Fatalf("Tick done=%v err=%v want done", done, err)
		}
		if ledger.buf.Len() != 0 {
			t.Fatalf("vote recorded during shutdown: %q", ledger.buf.String())
		}
		if r.inputs.reads[input.VoteA] != 0 {
			t.Fatalf("vote buttons sampled after shutdown press")
		}
	})
	t.Run("AThenBThenC", func(t *testing.T) {
		ledger := &fakeLedger{}
		r := newRig(t, defaultConfig(), ledger, map[input.Role][]bool{
			input.VoteB: {true},
			input.VoteC: {true},
		})
		if _, err := r.booth.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if ledger.buf.String() != "B" {
			t.Fatalf("log=%q want %q", ledger.buf.String(), "B")
		}
		if r.inputs.reads[input.VoteC] != 0 {
			t.Fatalf("C sampled in the same tick as a B capture")
		}
	})
}

func TestTick_IdleAdvancesAndSleeps(t *testing.T) {
	r := newRig(t, defaultConfig(), &fakeLedger{}, nil)
	if _, err := r.booth.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if r.lights.Phase(0) != 0.5 || r.lights.Phase(1) != -47.5 || r.lights.Phase(2) != -95.5 {
		t.Fatalf("phases=[%v %v %v]", r.lights.Phase(0), r.lights.Phase(1), r.lights.Phase(2))
	}
	if r.leds[0].last() == 0 || r.leds[1].last() != 0 || r.leds[2].last() != 0 {
		t.Fatalf("duties=[%d %d %d]", r.leds[0].last(), r.leds[1].last(), r.leds[2].last())
	}
	if !reflect.DeepEqual(r.tl.events, []string{"sleep 20ms"}) {
		t.Fatalf("events=%v", r.tl.events)
	}
}

func TestRun_VoteThenShutdown(t *testing.T) {
	ledger := &fakeLedger{}
	r := newRig(t, defaultConfig(), ledger, map[input.Role][]bool{
		input.Shutdown: {false, false, true},
		input.VoteA:    {false, true},
	})

	if err := r.booth.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := r.transcript.String(); got != "Voting Booth ready.\nA!\n" {
		t.Fatalf("transcript=%q", got)
	}
	if ledger.buf.String() != "A" {
		t.Fatalf("log=%q want %q", ledger.buf.String(), "A")
	}
	if ledger.unmounts != 1 {
		t.Fatalf("unmounts=%d want 1", ledger.unmounts)
	}
	for i, o := range r.leds {
		if o.closes != 1 || o.last() != 0 {
			t.Fatalf("LED %d closes=%d duty=%d", i, o.closes, o.last())
		}
	}
	if n := countEvent(r.tl.events, "buzz 1"); n != 1+6 {
		t.Fatalf("buzzer pulses=%d want 7 (tone + chime)", n)
	}
	if r.booth.State() != ShuttingDown {
		t.Fatalf("state=%s want shutting_down", r.booth.State())
	}
}

func TestShutdown_RunsOnce(t *testing.T) {
	ledger := &fakeLedger{}
	r := newRig(t, defaultConfig(), ledger, nil)
	if err := r.booth.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := r.booth.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if ledger.unmounts != 1 {
		t.Fatalf("unmounts=%d want 1", ledger.unmounts)
	}
	for i, o := range r.leds {
		if o.closes != 1 {
			t.Fatalf("LED %d released %d times want 1", i, o.closes)
		}
	}
	if n := countEvent(r.tl.events, "buzz 1"); n != 6 {
		t.Fatalf("chime pulses=%d want 6", n)
	}
	if strings.Count(r.transcript.String(), "!") != 1 {
		t.Fatalf("transcript=%q want one terminal marker", r.transcript.String())
	}
}

func TestRun_StopsWhenShutdownStepFails(t *testing.T) {
	busy := errors.New("device busy")
	ledger := &fakeLedger{unmountErr: busy}
	r := newRig(t, defaultConfig(), ledger, map[input.Role][]bool{
		input.Shutdown: {true, true, true},
	})

	err := r.booth.Run(context.Background())
	if !errors.Is(err, busy) || IsFatal(err) {
		t.Fatalf("err=%v want unmount error only", err)
	}
	if n := r.inputs.reads[input.Shutdown]; n != 1 {
		t.Fatalf("shutdown button read %d times want 1", n)
	}
	if got := r.transcript.String(); got != "Voting Booth ready.\n!\n" {
		t.Fatalf("transcript=%q", got)
	}
}

func TestRun_ShutdownStepFailures(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name       string
		unmountErr error
		closeErr   error
		chimeErr   error
		wantChime  int
	}{
		{name: "Unmount", unmountErr: boom, wantChime: 6},
		{name: "LEDRelease", closeErr: boom, wantChime: 6},
		{name: "Chime", chimeErr: boom, wantChime: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := &fakeLedger{unmountErr: tc.unmountErr}
			r := newRig(t, defaultConfig(), ledger, map[input.Role][]bool{
				input.Shutdown: {true, true},
			})
			r.leds[1].closeErr = tc.closeErr
			r.booth.beeper = buzzer.New(buzzerLine{tl: r.tl, err: tc.chimeErr}, r.tl.sleep)

			err := r.booth.Run(context.Background())
			if !errors.Is(err, boom) {
				t.Fatalf("err=%v want %v", err, boom)
			}
			if ledger.unmounts != 1 {
				t.Fatalf("unmounts=%d want 1", ledger.unmounts)
			}
			for i, o := range r.leds {
				if o.closes != 1 {
					t.Fatalf("LED %d released %d times want 1", i, o.closes)
				}
			}
			if n := countEvent(r.tl.events, "buzz 1"); n != tc.wantChime {
				t.Fatalf("chime pulses=%d want %d", n, tc.wantChime)
			}
			if n := r.inputs.reads[input.Shutdown]; n != 1 {
				t.Fatalf("loop ran on after shutdown: %d shutdown reads", n)
			}
			if strings.Contains(r.transcript.String(), "Program Error") {
				t.Fatalf("transcript=%q", r.transcript.String())
			}
			if r.booth.Snapshot().LastError == "" {
				t.Fatalf("snapshot missing shutdown error")
			}
		})
	}
}

func TestRun_AppendFailureIsFatal(t *testing.T) {
	boom := errors.New("card removed")
	ledger := &fakeLedger{err: boom}
	r := newRig(t, defaultConfig(), ledger, map[input.Role][]bool{
		input.VoteC: {true},
	})

	err := r.booth.Run(context.Background())
	if !errors.Is(err, boom) || !IsFatal(err) {
		t.Fatalf("err=%v want fatal wrapping %v", err, boom)
	}
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Op != "append" {
		t.Fatalf("err=%v want append FatalError", err)
	}
	if ledger.unmounts != 1 {
		t.Fatalf("shutdown did not run after fatal append")
	}
	if !strings.Contains(r.transcript.String(), "Program Error") {
		t.Fatalf("transcript=%q want error line", r.transcript.String())
	}
	if snap := r.booth.Snapshot(); snap.VotesCast != 0 || snap.LastError == "" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if countEvent(r.tl.events, "buzz 1") != 6 {
		t.Fatalf("confirmation tone sounded for an unstored vote: %v", r.tl.events)
	}
}

func TestRun_SampleErrorIsFatal(t *testing.T) {
	ledger := &fakeLedger{}
	r := newRig(t, defaultConfig(), ledger, nil)
	r.inputs.err = errors.New("gpio chip gone")
	err := r.booth.Run(context.Background())
	if !IsFatal(err) {
		t.Fatalf("err=%v want fatal", err)
	}
	if ledger.unmounts != 1 {
		t.Fatalf("unmounts=%d want 1", ledger.unmounts)
	}
}

func TestRun_RecoversPanicAndShutsDown(t *testing.T) {
	ledger := &fakeLedger{}
	r := newRig(t, defaultConfig(), ledger, nil)
	r.inputs.panics = true
	r.inputs.panicOn = input.VoteB

	err := r.booth.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "sampler exploded") {
		t.Fatalf("err=%v want recovered fault", err)
	}
	if ledger.unmounts != 1 {
		t.Fatalf("unmounts=%d want 1", ledger.unmounts)
	}
	if !strings.Contains(r.transcript.String(), "Program Error sampler exploded") {
		t.Fatalf("transcript=%q", r.transcript.String())
	}
}

func TestRun_ContextCancelShutsDown(t *testing.T) {
	ledger := &fakeLedger{}
	r := newRig(t, defaultConfig(), ledger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.booth.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := r.transcript.String(); got != "Voting Booth ready.\n!\n" {
		t.Fatalf("transcript=%q", got)
	}
	if ledger.unmounts != 1 {
		t.Fatalf("unmounts=%d want 1", ledger.unmounts)
	}
}

func TestCapture_NonVoteRoleIsRecoverable(t *testing.T) {
	r := newRig(t, defaultConfig(), &fakeLedger{}, nil)
	err := r.booth.Capture(input.Shutdown)
	if err == nil || IsFatal(err) {
		t.Fatalf("err=%v want recoverable error", err)
	}
}

func TestMountStorage(t *testing.T) {
	boom := errors.New("no SD card")

	t.Run("RefusesVotes", func(t *testing.T) {
		ledger := &fakeLedger{}
		r := newRig(t, defaultConfig(), ledger, nil)
		err := r.booth.MountStorage(func() error { return boom }, false)
		if !errors.Is(err, ErrStorageUnavailable) {
			t.Fatalf("err=%v want ErrStorageUnavailable", err)
		}
		if !strings.HasPrefix(r.transcript.String(), "OS Error no SD card\n") {
			t.Fatalf("transcript=%q", r.transcript.String())
		}
		if r.booth.State() != ShuttingDown {
			t.Fatalf("state=%s want shutting_down", r.booth.State())
		}
	})
	t.Run("AcceptWithoutStorage", func(t *testing.T) {
		r := newRig(t, defaultConfig(), &fakeLedger{}, nil)
		if err := r.booth.MountStorage(func() error { return boom }, true); err != nil {
			t.Fatalf("err=%v want nil", err)
		}
		if r.booth.State() != Idle {
			t.Fatalf("state=%s want idle", r.booth.State())
		}
	})
	t.Run("Success", func(t *testing.T) {
		r := newRig(t, defaultConfig(), &fakeLedger{}, nil)
		if err := r.booth.MountStorage(func() error { return nil }, false); err != nil {
			t.Fatalf("err=%v", err)
		}
		if r.transcript.Len() != 0 {
			t.Fatalf("transcript=%q want empty", r.transcript.String())
		}
	})
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Fatalf("expected error for missing deps")
	}
}
