package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"votebooth/internal/booth"
	"votebooth/internal/config"
)

func main() {
	var configPath string
	var tallyPath string
	flag.StringVar(&configPath, "config", "./votebooth.yaml", "Path to YAML config")
	flag.StringVar(&tallyPath, "tally", "", "Print vote counts for a vote log and exit")
	flag.Parse()

	if tallyPath != "" {
		if err := printTally(os.Stdout, tallyPath); err != nil {
			log.Fatalf("tally failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		cancel()
		log.Fatalf("votebooth stopped: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return fmt.Errorf("hardware init failed: %w", err)
	}
	defer hw.Close()

	b, err := booth.New(boothConfig(cfg), booth.Deps{
		Lights:     hw.lights,
		Inputs:     hw.sampler,
		Ledger:     hw.volume,
		Beeper:     hw.buzzer,
		Transcript: os.Stdout,
	})
	if err != nil {
		return err
	}

	log.Printf("votebooth starting")
	log.Printf("storage mode=%s log=%s", cfg.Storage.Mode, hw.volume.LogPath())

	if err := b.MountStorage(hw.volume.Mount, cfg.Booth.AcceptWithoutStorage); err != nil {
		return err
	}

	err = b.Run(ctx)
	snap := b.Snapshot()
	log.Printf("votebooth stopping state=%s votes=%d last_error=%q", snap.State, snap.VotesCast, snap.LastError)
	return err
}

func boothConfig(cfg config.Config) booth.Config {
	return booth.Config{
		PollInterval:   cfg.Booth.PollInterval(),
		IdleTick:       cfg.Booth.IdleTick(),
		ToneDuration:   cfg.Booth.ToneDuration(),
		ReleaseSamples: cfg.Booth.ReleaseSamples,
		ChimePulses:    *cfg.Booth.ChimePulses,
		ChimePulse:     cfg.Booth.ChimePulse(),
	}
}
