package main

import (
	"errors"
	"fmt"
	"io"

	"votebooth/internal/buzzer"
	"votebooth/internal/config"
	"votebooth/internal/gpio"
	"votebooth/internal/illumination"
	"votebooth/internal/input"
	"votebooth/internal/pwm"
	"votebooth/internal/storage"
)

const gpioConsumer = "votebooth"

type inputLine interface {
	Value() (int, error)
	Close() error
}

type outputLine interface {
	SetValue(v int) error
	Close() error
}

var openInputFn = func(chip string, pin int) (inputLine, error) {
	return gpio.OpenInput(chip, pin, gpioConsumer)
}

var openOutputFn = func(chip string, pin int) (outputLine, error) {
	return gpio.OpenOutput(chip, pin, gpioConsumer)
}

var openPWMFn = func(chip string, channel, freqHz int) (illumination.Output, error) {
	return pwm.Open(chip, channel, freqHz)
}

// hardware owns every device handle the booth uses.
type hardware struct {
	sampler *input.Sampler
	buzzer  *buzzer.Buzzer
	lights  *illumination.Controller
	volume  *storage.Volume

	closers []io.Closer
}

func openHardware(cfg config.Config) (_ *hardware, err error) {
	hw := &hardware{}
	defer func() {
		if err != nil {
			_ = hw.Close()
		}
	}()

	gc := cfg.GPIO
	pins := map[input.Role]int{
		input.VoteA:    *gc.VoteA,
		input.VoteB:    *gc.VoteB,
		input.VoteC:    *gc.VoteC,
		input.Shutdown: *gc.Shutdown,
	}
	lines := make(map[input.Role]input.Line, len(pins))
	for _, r := range []input.Role{input.VoteA, input.VoteB, input.VoteC, input.Shutdown} {
		l, err := openInputFn(gc.Chip, pins[r])
		if err != nil {
			return nil, fmt.Errorf("%s button (gpio %d): %w", r, pins[r], err)
		}
		hw.closers = append(hw.closers, l)
		lines[r] = l
	}
	hw.sampler, err = input.NewSampler(lines)
	if err != nil {
		return nil, err
	}

	out, err := openOutputFn(gc.Chip, *gc.Buzzer)
	if err != nil {
		return nil, fmt.Errorf("buzzer (gpio %d): %w", *gc.Buzzer, err)
	}
	hw.closers = append(hw.closers, out)
	hw.buzzer = buzzer.New(out, nil)

	outs := make([]illumination.Output, 0, len(cfg.LEDs.Channels))
	for _, ch := range cfg.LEDs.Channels {
		o, err := openPWMFn(cfg.LEDs.PWMChip, ch, cfg.LEDs.FrequencyHz)
		if err != nil {
			for _, opened := range outs {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("led pwm channel %d: %w", ch, err)
		}
		outs = append(outs, o)
	}
	hw.lights, err = illumination.New(illumination.Config{
		Step:    cfg.Booth.BreatheStep,
		Gap:     *cfg.Booth.BreatheGap,
		MaxDuty: uint16(cfg.Booth.BreatheMaxDuty),
	}, outs...)
	if err != nil {
		for _, opened := range outs {
			_ = opened.Close()
		}
		return nil, err
	}

	hw.volume = storage.New(storage.Config{
		Mode:       cfg.Storage.Mode,
		Device:     cfg.Storage.Device,
		MountPoint: cfg.Storage.MountPoint,
		FSType:     cfg.Storage.FSType,
		LogName:    cfg.Storage.LogName,
	})
	return hw, nil
}

// Close releases GPIO lines and, if the booth never got to its shutdown
// sequence, the LEDs and the storage medium.
func (hw *hardware) Close() error {
	if hw == nil {
		return nil
	}
	var errs []error
	if hw.buzzer != nil {
		if err := hw.buzzer.Off(); err != nil {
			errs = append(errs, err)
		}
	}
	if hw.lights != nil {
		if err := hw.lights.ShutdownAll(); err != nil {
			errs = append(errs, err)
		}
	}
	if hw.volume != nil {
		if err := hw.volume.Unmount(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(hw.closers) - 1; i >= 0; i-- {
		if err := hw.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	hw.closers = nil
	return errors.Join(errs...)
}
