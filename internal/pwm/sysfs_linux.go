//go:build linux

package pwm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Channel drives one hardware PWM channel via /sys/class/pwm.
//
// Notes:
//   - On Raspberry Pi the LED pins must be routed to PWM with a device tree
//     overlay (for example dtoverlay=pwm-2chan) so the channels show up
//     under /sys/class/pwm.
//   - Duty is expressed as a 16-bit level (0..MaxDuty) and scaled to the
//     configured period.
type Channel struct {
	chipPath string // /sys/class/pwm/pwmchipN
	pwmPath  string // /sys/class/pwm/pwmchipN/pwmM
	channel  int

	periodNS uint64
	enabled  bool
	closed   bool
}

var sysfsBase = "/sys/class/pwm"

var writeAttrFn = writeSysfs

// Open exports channel on chip (a pwmchipN name, or "" to pick the first chip
// with channels) and sets its output frequency.
func Open(chip string, channel int, freqHz int) (*Channel, error) {
	if channel < 0 {
		return nil, fmt.Errorf("pwm: invalid channel %d", channel)
	}
	chipPath, err := findChip(chip)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		chipPath: chipPath,
		channel:  channel,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel)),
	}
	if err := c.ensureExported(); err != nil {
		return nil, err
	}
	if err := c.SetFrequencyHz(freqHz); err != nil {
		return nil, err
	}
	if err := c.SetDuty(0); err != nil {
		return nil, err
	}
	return c, nil
}

func findChip(name string) (string, error) {
	base := sysfsBase
	if name != "" {
		chip := filepath.Join(base, name)
		if _, err := readInt(filepath.Join(chip, "npwm")); err != nil {
			return "", fmt.Errorf("pwm: %s: %w", chip, err)
		}
		return chip, nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("pwm: read %s: %w", base, err)
	}

	// Note: in sysfs, pwmchipN entries are commonly symlinks, not directories.
	candidates := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pwmchip") {
			candidates = append(candidates, e.Name())
		}
	}
	sort.Strings(candidates)

	for _, c := range candidates {
		chip := filepath.Join(base, c)
		n, rerr := readInt(filepath.Join(chip, "npwm"))
		if rerr != nil || n <= 0 {
			continue
		}
		return chip, nil
	}

	return "", fmt.Errorf("pwm: no sysfs pwmchip found (is pwm overlay enabled?)")
}

func (c *Channel) ensureExported() error {
	if _, err := os.Stat(c.pwmPath); err == nil {
		return nil
	}
	exportPath := filepath.Join(c.chipPath, "export")
	if err := writeAttrFn(exportPath, strconv.Itoa(c.channel)); err != nil {
		// If already exported by someone else, ignore.
		if _, statErr := os.Stat(c.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("pwm: export channel %d: %w", c.channel, err)
	}

	// Wait briefly for sysfs node to appear.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(c.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(c.pwmPath); err != nil {
		return fmt.Errorf("pwm: path not created after export: %w", err)
	}
	return nil
}

func (c *Channel) SetFrequencyHz(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("pwm: invalid frequency %d", hz)
	}
	periodNS := uint64(1_000_000_000 / hz)
	if periodNS == 0 {
		periodNS = 1
	}

	// Disable before changing period (common sysfs requirement).
	_ = c.writeBool("enable", false)
	c.enabled = false

	// duty_cycle must never exceed period, so clear it first.
	_ = c.writeUint("duty_cycle", 0)
	if err := c.writeUint("period", periodNS); err != nil {
		return err
	}
	c.periodNS = periodNS
	return nil
}

// SetDuty writes a 16-bit duty level, scaled to the channel period.
func (c *Channel) SetDuty(level uint16) error {
	if c.closed {
		return ErrClosed
	}
	if c.periodNS == 0 {
		return fmt.Errorf("pwm: frequency not set")
	}
	if err := c.writeUint("duty_cycle", dutyNS(c.periodNS, level)); err != nil {
		return err
	}
	if !c.enabled {
		if err := c.writeBool("enable", true); err != nil {
			return err
		}
		c.enabled = true
	}
	return nil
}

// Close drives the channel dark, disables and unexports it. Further calls are
// no-ops.
func (c *Channel) Close() error {
	if c.closed {
		return nil
	}
	err1 := c.writeUint("duty_cycle", 0)
	err2 := c.writeBool("enable", false)
	c.enabled = false
	c.closed = true
	_ = writeAttrFn(filepath.Join(c.chipPath, "unexport"), strconv.Itoa(c.channel))
	return errors.Join(err1, err2)
}

func dutyNS(periodNS uint64, level uint16) uint64 {
	if level >= MaxDuty {
		return periodNS
	}
	return periodNS * uint64(level) / uint64(MaxDuty)
}

func (c *Channel) writeUint(name string, v uint64) error {
	return writeAttrFn(filepath.Join(c.pwmPath, name), strconv.FormatUint(v, 10))
}

func (c *Channel) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeAttrFn(filepath.Join(c.pwmPath, name), val)
}

func writeSysfs(path string, value string) error {
	// Use O_WRONLY without O_TRUNC/O_CREATE: some sysfs attributes reject
	// truncation flags. Right after an export udev may still be fixing
	// permissions, so EACCES/ENOENT are retried for a short while.
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			lastErr = err
			if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return err
		}
		_, werr := f.WriteString(value)
		cerr := f.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		if werr != nil {
			lastErr = werr
		} else {
			lastErr = cerr
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(lastErr) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return errors.Join(werr, cerr)
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.Atoi(s)
}
