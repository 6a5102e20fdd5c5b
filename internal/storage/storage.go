// Package storage owns the removable medium that holds the vote log.
//
// The log is a single append-only file. Every append is its own
// open/write/fsync/close transaction so a vote is on the medium before the
// call returns and no handle is held between votes.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	ModeMount     = "mount"
	ModeDirectory = "directory"
)

var ErrNotMounted = errors.New("storage: medium not mounted")

var (
	mountFn   = mountFS
	unmountFn = unmountFS
)

type Config struct {
	// Mode is ModeMount (mount Device at MountPoint) or ModeDirectory (use
	// MountPoint as a plain directory, for development rigs).
	Mode       string
	Device     string
	MountPoint string
	FSType     string
	LogName    string
}

// Volume is the mounted vote medium. It is safe for use from one writer;
// the mutex only guards against Unmount racing a late Append.
type Volume struct {
	cfg Config

	mu      sync.Mutex
	mounted bool
}

func New(cfg Config) *Volume {
	if cfg.Mode == "" {
		cfg.Mode = ModeMount
	}
	if cfg.FSType == "" {
		cfg.FSType = "vfat"
	}
	if cfg.LogName == "" {
		cfg.LogName = "votes.txt"
	}
	return &Volume{cfg: cfg}
}

// LogPath is the full path of the vote log.
func (v *Volume) LogPath() string {
	return filepath.Join(v.cfg.MountPoint, v.cfg.LogName)
}

func (v *Volume) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted
}

func (v *Volume) Mount() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mounted {
		return nil
	}
	if strings.TrimSpace(v.cfg.MountPoint) == "" {
		return fmt.Errorf("storage: mount point is empty")
	}

	switch v.cfg.Mode {
	case ModeDirectory:
		if err := os.MkdirAll(v.cfg.MountPoint, 0o755); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	case ModeMount:
		if strings.TrimSpace(v.cfg.Device) == "" {
			return fmt.Errorf("storage: device is empty")
		}
		if err := os.MkdirAll(v.cfg.MountPoint, 0o755); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if err := mountFn(v.cfg.Device, v.cfg.MountPoint, v.cfg.FSType); err != nil {
			return fmt.Errorf("storage: mount %s on %s: %w", v.cfg.Device, v.cfg.MountPoint, err)
		}
	default:
		return fmt.Errorf("storage: unknown mode %q", v.cfg.Mode)
	}
	v.mounted = true
	return nil
}

// Append writes p to the end of the vote log and flushes it to the medium.
func (v *Volume) Append(p []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted {
		return ErrNotMounted
	}

	f, err := os.OpenFile(v.LogPath(), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open log: %w", err)
	}
	_, werr := f.Write(p)
	var serr error
	if werr == nil {
		serr = f.Sync()
	}
	cerr := f.Close()
	if err := errors.Join(werr, serr, cerr); err != nil {
		return fmt.Errorf("storage: append: %w", err)
	}
	return nil
}

// Unmount detaches the medium. Calling it on an unmounted volume is a no-op.
func (v *Volume) Unmount() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted {
		return nil
	}
	v.mounted = false
	if v.cfg.Mode != ModeMount {
		return nil
	}
	if err := unmountFn(v.cfg.MountPoint); err != nil {
		return fmt.Errorf("storage: unmount %s: %w", v.cfg.MountPoint, err)
	}
	return nil
}
