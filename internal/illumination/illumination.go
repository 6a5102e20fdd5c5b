// Package illumination renders the booth LEDs: an idle "breathing" wave
// across the channels, and solid on/off feedback while a vote is captured.
//
// Each channel owns a phase accumulator in degrees. Channels start staggered
// at index * -gap so they brighten one after another; a negative phase is a
// delay and renders dark until it climbs past zero.
package illumination

import (
	"errors"
	"fmt"
	"math"
)

// FullDuty is the duty written for a solid-on channel.
const FullDuty = 65535

var ErrClosed = errors.New("illumination: controller shut down")

// Output is one PWM-capable LED pin.
type Output interface {
	SetDuty(level uint16) error
	Close() error
}

type Config struct {
	// Step is the phase advance per AdvanceAll, in degrees.
	Step float64
	// Gap is the phase offset between neighbouring channels, in degrees.
	Gap float64
	// MaxDuty is the peak breathing brightness (1..FullDuty).
	MaxDuty uint16
}

type channel struct {
	out   Output
	phase float64
	duty  uint16
	solid bool
}

type Controller struct {
	cfg    Config
	chans  []*channel
	closed bool
}

// New takes ownership of outs; channel i is outs[i].
func New(cfg Config, outs ...Output) (*Controller, error) {
	if len(outs) == 0 {
		return nil, fmt.Errorf("illumination: no outputs")
	}
	if cfg.MaxDuty == 0 {
		return nil, fmt.Errorf("illumination: max duty must be > 0")
	}
	c := &Controller{cfg: cfg, chans: make([]*channel, len(outs))}
	for i, out := range outs {
		if out == nil {
			return nil, fmt.Errorf("illumination: output %d is nil", i)
		}
		c.chans[i] = &channel{out: out}
	}
	c.ResetStagger()
	return c, nil
}

func (c *Controller) Len() int { return len(c.chans) }

// Brightness maps a phase to a duty level. Only the positive lobe of the sine
// is rendered; negative phases and (180, 360) are dark.
func Brightness(phase float64, maxDuty uint16) uint16 {
	if phase < 0 {
		return 0
	}
	s := math.Sin(phase * math.Pi / 180)
	if s <= 0 {
		return 0
	}
	b := s * float64(maxDuty)
	if b >= float64(maxDuty) {
		return maxDuty
	}
	return uint16(b)
}

func wrap(phase float64) float64 {
	if phase >= 360 {
		phase = math.Mod(phase, 360)
	}
	return phase
}

// AdvanceAll moves every channel that is not solid one step along the
// waveform and writes the resulting duty.
func (c *Controller) AdvanceAll() error {
	if c.closed {
		return ErrClosed
	}
	for i, ch := range c.chans {
		if ch.solid {
			continue
		}
		ch.phase = wrap(ch.phase + c.cfg.Step)
		if err := c.write(i, Brightness(ch.phase, c.cfg.MaxDuty)); err != nil {
			return err
		}
	}
	return nil
}

// SetSolid forces channel i fully on or off. The phase accumulator is left
// alone; an "on" channel is skipped by AdvanceAll until it is set off again.
func (c *Controller) SetSolid(i int, on bool) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.check(i); err != nil {
		return err
	}
	c.chans[i].solid = on
	var duty uint16
	if on {
		duty = FullDuty
	}
	return c.write(i, duty)
}

func (c *Controller) ResetPhase(i int, offset float64) error {
	if err := c.check(i); err != nil {
		return err
	}
	c.chans[i].phase = offset
	return nil
}

// ResetStagger puts every channel back at its starting offset, index * -gap.
func (c *Controller) ResetStagger() {
	for i, ch := range c.chans {
		ch.phase = float64(i) * -c.cfg.Gap
	}
}

// Blackout drives every channel dark and zeroes every phase.
func (c *Controller) Blackout() error {
	if c.closed {
		return ErrClosed
	}
	for i, ch := range c.chans {
		ch.phase = 0
		ch.solid = false
		if err := c.write(i, 0); err != nil {
			return err
		}
	}
	return nil
}

// ShutdownAll drives every channel dark and releases the outputs. Only the
// first call touches the hardware.
func (c *Controller) ShutdownAll() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	for i, ch := range c.chans {
		ch.solid = false
		if err := ch.out.SetDuty(0); err != nil {
			errs = append(errs, fmt.Errorf("illumination: channel %d: %w", i, err))
		} else {
			ch.duty = 0
		}
		if err := ch.out.Close(); err != nil {
			errs = append(errs, fmt.Errorf("illumination: release channel %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) Phase(i int) float64 {
	if c.check(i) != nil {
		return 0
	}
	return c.chans[i].phase
}

// Duty is the last duty written to channel i.
func (c *Controller) Duty(i int) uint16 {
	if c.check(i) != nil {
		return 0
	}
	return c.chans[i].duty
}

func (c *Controller) check(i int) error {
	if i < 0 || i >= len(c.chans) {
		return fmt.Errorf("illumination: channel %d out of range", i)
	}
	return nil
}

func (c *Controller) write(i int, duty uint16) error {
	if err := c.chans[i].out.SetDuty(duty); err != nil {
		return fmt.Errorf("illumination: channel %d: %w", i, err)
	}
	c.chans[i].duty = duty
	return nil
}
