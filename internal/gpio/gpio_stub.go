//go:build !linux

package gpio

import "fmt"

type Line struct{}

func OpenInput(chipPath string, pin int, consumer string) (*Line, error) {
	return nil, fmt.Errorf("gpio: unsupported OS (need linux)")
}

func OpenOutput(chipPath string, pin int, consumer string) (*Line, error) {
	return nil, fmt.Errorf("gpio: unsupported OS (need linux)")
}

func (l *Line) Value() (int, error)  { return 0, fmt.Errorf("gpio: unsupported OS") }
func (l *Line) SetValue(v int) error { return fmt.Errorf("gpio: unsupported OS") }
func (l *Line) Close() error         { return nil }
