//go:build !linux

package storage

import "fmt"

func mountFS(device, target, fstype string) error {
	return fmt.Errorf("storage: mount unsupported on this platform")
}

func unmountFS(target string) error {
	return fmt.Errorf("storage: unmount unsupported on this platform")
}
