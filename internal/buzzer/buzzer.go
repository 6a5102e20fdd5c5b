// Package buzzer drives the booth's digital buzzer output.
package buzzer

import (
	"fmt"
	"time"
)

// Output is a digital output line (0 or 1).
type Output interface {
	SetValue(v int) error
}

type Buzzer struct {
	out   Output
	sleep func(time.Duration)
}

// New returns a buzzer on out. A nil sleep uses time.Sleep.
func New(out Output, sleep func(time.Duration)) *Buzzer {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Buzzer{out: out, sleep: sleep}
}

// Tone sounds the buzzer for d, blocking until it is silent again.
func (b *Buzzer) Tone(d time.Duration) error {
	if err := b.out.SetValue(1); err != nil {
		return fmt.Errorf("buzzer: on: %w", err)
	}
	b.sleep(d)
	if err := b.out.SetValue(0); err != nil {
		return fmt.Errorf("buzzer: off: %w", err)
	}
	return nil
}

// Chime plays pulses short beeps of on followed by off of silence.
func (b *Buzzer) Chime(pulses int, on, off time.Duration) error {
	for i := 0; i < pulses; i++ {
		if err := b.Tone(on); err != nil {
			return err
		}
		b.sleep(off)
	}
	return nil
}

// Off silences the buzzer.
func (b *Buzzer) Off() error {
	if err := b.out.SetValue(0); err != nil {
		return fmt.Errorf("buzzer: off: %w", err)
	}
	return nil
}
