package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Booth   BoothConfig   `yaml:"booth"`
	Storage StorageConfig `yaml:"storage"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	LEDs    LEDConfig     `yaml:"leds"`
}

type BoothConfig struct {
	// BreatheStep is the animation speed in degrees per idle tick.
	BreatheStep float64 `yaml:"breathe_step"`
	// BreatheGap is the phase offset between neighbouring LEDs in degrees.
	// 0 breathes every LED in sync, so unset is nil.
	BreatheGap *float64 `yaml:"breathe_gap"`
	// BreatheMaxDuty is the peak breathing brightness (max 65535).
	BreatheMaxDuty int `yaml:"breathe_max_duty"`

	VotePollIntervalMS int `yaml:"vote_poll_interval_ms"`
	BuzzerToneMS       int `yaml:"buzzer_tone_ms"`
	IdleTickMS         int `yaml:"idle_tick_ms"`
	ReleaseSamples     int `yaml:"release_samples"`
	// ChimePulses may be 0 for a silent shutdown.
	ChimePulses  *int `yaml:"chime_pulses"`
	ChimePulseMS int  `yaml:"chime_pulse_ms"`

	// AcceptWithoutStorage keeps the booth running when the vote medium
	// cannot be mounted. Votes will then fail on append.
	AcceptWithoutStorage bool `yaml:"accept_without_storage"`
}

type StorageConfig struct {
	Mode       string `yaml:"mode"`
	Device     string `yaml:"device"`
	MountPoint string `yaml:"mount_point"`
	FSType     string `yaml:"fstype"`
	LogName    string `yaml:"log_name"`
}

// GPIOConfig uses BCM numbering. Pins are pointers because 0 is a valid pin.
type GPIOConfig struct {
	Chip     string `yaml:"chip"`
	VoteA    *int   `yaml:"vote_a"`
	VoteB    *int   `yaml:"vote_b"`
	VoteC    *int   `yaml:"vote_c"`
	Shutdown *int   `yaml:"shutdown"`
	Buzzer   *int   `yaml:"buzzer"`
}

type LEDConfig struct {
	PWMChip     string `yaml:"pwm_chip"`
	Channels    []int  `yaml:"channels"`
	FrequencyHz int    `yaml:"frequency_hz"`
}

func (b BoothConfig) PollInterval() time.Duration {
	return time.Duration(b.VotePollIntervalMS) * time.Millisecond
}

func (b BoothConfig) ToneDuration() time.Duration {
	return time.Duration(b.BuzzerToneMS) * time.Millisecond
}

func (b BoothConfig) IdleTick() time.Duration {
	return time.Duration(b.IdleTickMS) * time.Millisecond
}

func (b BoothConfig) ChimePulse() time.Duration {
	return time.Duration(b.ChimePulseMS) * time.Millisecond
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, unknownFieldsErr(err)
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func unknownFieldsErr(err error) error {
	var te *yaml.TypeError
	if !errors.As(err, &te) {
		return err
	}
	msgs := make([]string, 0, len(te.Errors))
	for _, e := range te.Errors {
		// yaml reports "line N: field x not found in type T".
		if i := strings.Index(e, ": "); i >= 0 && strings.HasPrefix(e, "line ") {
			e = e[i+2:]
		}
		msgs = append(msgs, e)
	}
	return fmt.Errorf("config contains unknown fields: %s", strings.Join(msgs, "; "))
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// DefaultAndValidate fills defaults in place and rejects invalid settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	bc := &cfg.Booth
	if bc.BreatheStep == 0 {
		bc.BreatheStep = 0.5
	}
	if bc.BreatheStep < 0 {
		return fmt.Errorf("booth.breathe_step must be > 0")
	}
	if bc.BreatheGap == nil {
		bc.BreatheGap = floatPtr(48)
	}
	if *bc.BreatheGap < 0 {
		return fmt.Errorf("booth.breathe_gap must be >= 0")
	}
	if bc.BreatheMaxDuty == 0 {
		bc.BreatheMaxDuty = 16384
	}
	if bc.BreatheMaxDuty < 1 || bc.BreatheMaxDuty > 65535 {
		return fmt.Errorf("booth.breathe_max_duty must be between 1 and 65535")
	}
	if bc.VotePollIntervalMS <= 0 {
		bc.VotePollIntervalMS = 20
	}
	if bc.BuzzerToneMS <= 0 {
		bc.BuzzerToneMS = 300
	}
	if bc.IdleTickMS <= 0 {
		bc.IdleTickMS = 20
	}
	if bc.ReleaseSamples <= 0 {
		bc.ReleaseSamples = 2
	}
	if bc.ChimePulses == nil {
		bc.ChimePulses = intPtr(6)
	}
	if *bc.ChimePulses < 0 {
		return fmt.Errorf("booth.chime_pulses must be >= 0")
	}
	if bc.ChimePulseMS <= 0 {
		bc.ChimePulseMS = 50
	}

	sc := &cfg.Storage
	sc.Mode = strings.ToLower(strings.TrimSpace(sc.Mode))
	if sc.Mode == "" {
		sc.Mode = "mount"
	}
	if sc.Mode != "mount" && sc.Mode != "directory" {
		return fmt.Errorf("storage.mode must be 'mount' or 'directory'")
	}
	if sc.Mode == "mount" && strings.TrimSpace(sc.Device) == "" {
		sc.Device = "/dev/mmcblk1p1"
	}
	if strings.TrimSpace(sc.MountPoint) == "" {
		sc.MountPoint = "/mnt/votebooth"
	}
	if sc.FSType == "" {
		sc.FSType = "vfat"
	}
	if sc.LogName == "" {
		sc.LogName = "votes.txt"
	}
	if strings.ContainsAny(sc.LogName, `/\`) {
		return fmt.Errorf("storage.log_name must be a file name, not a path")
	}

	gc := &cfg.GPIO
	if gc.VoteA == nil {
		gc.VoteA = intPtr(2)
	}
	if gc.VoteB == nil {
		gc.VoteB = intPtr(3)
	}
	if gc.VoteC == nil {
		gc.VoteC = intPtr(4)
	}
	if gc.Shutdown == nil {
		gc.Shutdown = intPtr(19)
	}
	if gc.Buzzer == nil {
		gc.Buzzer = intPtr(0)
	}
	pins := map[string]int{
		"vote_a":   *gc.VoteA,
		"vote_b":   *gc.VoteB,
		"vote_c":   *gc.VoteC,
		"shutdown": *gc.Shutdown,
		"buzzer":   *gc.Buzzer,
	}
	seen := make(map[int]bool, len(pins))
	for _, name := range []string{"vote_a", "vote_b", "vote_c", "shutdown", "buzzer"} {
		p := pins[name]
		if p < 0 {
			return fmt.Errorf("gpio.%s must be >= 0", name)
		}
		if seen[p] {
			return fmt.Errorf("gpio.%s reuses pin %d", name, p)
		}
		seen[p] = true
	}

	lc := &cfg.LEDs
	if len(lc.Channels) == 0 {
		lc.Channels = []int{0, 1, 2}
	}
	if len(lc.Channels) != 3 {
		return fmt.Errorf("leds.channels must list exactly 3 entries")
	}
	chans := make(map[int]bool, len(lc.Channels))
	for _, c := range lc.Channels {
		if c < 0 {
			return fmt.Errorf("leds.channels entries must be >= 0")
		}
		if chans[c] {
			return fmt.Errorf("leds.channels entries must be distinct")
		}
		chans[c] = true
	}
	if lc.FrequencyHz == 0 {
		lc.FrequencyHz = 10000
	}
	if lc.FrequencyHz < 0 {
		return fmt.Errorf("leds.frequency_hz must be > 0")
	}

	return nil
}
