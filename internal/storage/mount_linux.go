//go:build linux

package storage

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	sysMount    = unix.Mount
	mountedAtFn = mountedAt
)

func mountFS(device, target, fstype string) error {
	err := sysMount(device, target, fstype, unix.MS_NOATIME|unix.MS_NODEV|unix.MS_NOEXEC|unix.MS_NOSUID, "")
	if !errors.Is(err, unix.EBUSY) {
		return err
	}
	// EBUSY is fine only if device is already the filesystem at target.
	// Mounted elsewhere, votes would land on whatever backs target.
	ok, serr := mountedAtFn(device, target)
	if serr != nil {
		return errors.Join(err, serr)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not mounted at %s", err, device, target)
	}
	return nil
}

// mountedAt reports whether the filesystem holding target lives on the block
// device at device.
func mountedAt(device, target string) (bool, error) {
	var dst, tst unix.Stat_t
	if err := unix.Stat(device, &dst); err != nil {
		return false, fmt.Errorf("stat %s: %w", device, err)
	}
	if dst.Mode&unix.S_IFMT != unix.S_IFBLK {
		return false, fmt.Errorf("%s is not a block device", device)
	}
	if err := unix.Stat(target, &tst); err != nil {
		return false, fmt.Errorf("stat %s: %w", target, err)
	}
	return uint64(tst.Dev) == uint64(dst.Rdev), nil
}

func unmountFS(target string) error {
	// Flush every dirty buffer before the card can be pulled.
	unix.Sync()
	return unix.Unmount(target, 0)
}
