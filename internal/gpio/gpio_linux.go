//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// Line is a single requested GPIO line on the Linux GPIO character device.
//
// Inputs are requested with pull-up bias and report the raw electrical level
// (active-low buttons read 0 while pressed). Outputs start low.
type Line struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	name   string
	output bool
}

// OpenInput requests the given BCM GPIO as an input with the pull-up enabled.
func OpenInput(chipPath string, pin int, consumer string) (*Line, error) {
	return openLine(chipPath, pin, false, gpiocdev.WithConsumer(consumer), gpiocdev.AsInput, gpiocdev.WithPullUp)
}

// OpenOutput requests the given BCM GPIO as an output driven low.
func OpenOutput(chipPath string, pin int, consumer string) (*Line, error) {
	return openLine(chipPath, pin, true, gpiocdev.WithConsumer(consumer), gpiocdev.AsOutput(0))
}

func openLine(chipPath string, pin int, output bool, opts ...gpiocdev.LineReqOption) (*Line, error) {
	if pin < 0 {
		return nil, fmt.Errorf("gpio: invalid pin %d", pin)
	}

	// On Pi, line names are commonly "GPIO18", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	for _, path := range chipCandidates(chipPath) {
		chip, err := gpiocdev.NewChip(path)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			// Chips without line names (or a chip given explicitly) use the
			// pin number as the offset.
			if chipPath == "" {
				_ = chip.Close()
				continue
			}
			offset = pin
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &Line{chip: chip, line: line, name: lineName, output: output}, nil
	}

	return nil, fmt.Errorf("gpio: line %q not found (or busy)", lineName)
}

func chipCandidates(chipPath string) []string {
	if chipPath != "" {
		return []string{chipPath}
	}
	// Pi 5 kernel variants can expose header GPIOs on gpiochip4.
	out := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "gpiochip") {
			continue
		}
		p := filepath.Join("/dev", name)
		if p != out[0] && p != out[1] {
			out = append(out, p)
		}
	}
	return out
}

func (l *Line) Value() (int, error) {
	if l == nil || l.line == nil {
		return 0, fmt.Errorf("gpio: line not initialized")
	}
	v, err := l.line.Value()
	if err != nil {
		return 0, fmt.Errorf("gpio: read %s: %w", l.name, err)
	}
	return v, nil
}

func (l *Line) SetValue(v int) error {
	if l == nil || l.line == nil {
		return fmt.Errorf("gpio: line not initialized")
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("gpio: write %s: %w", l.name, err)
	}
	return nil
}

// Close releases the line. Outputs are left low.
func (l *Line) Close() error {
	if l == nil || l.line == nil {
		return nil
	}
	if l.output {
		_ = l.line.SetValue(0)
	}
	err := l.line.Close()
	l.line = nil
	if l.chip != nil {
		_ = l.chip.Close()
		l.chip = nil
	}
	return err
}
