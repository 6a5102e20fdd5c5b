//go:build !linux

package pwm

import "fmt"

type Channel struct{}

func Open(chip string, channel int, freqHz int) (*Channel, error) {
	return nil, fmt.Errorf("pwm: unsupported on this platform")
}

func (c *Channel) SetFrequencyHz(hz int) error { return fmt.Errorf("pwm: unsupported") }
func (c *Channel) SetDuty(level uint16) error  { return fmt.Errorf("pwm: unsupported") }
func (c *Channel) Close() error                { return nil }
