//go:build !windows

package recording

import (
	"os"
	"syscall"
)

// lockFileExclusive takes an exclusive flock(2) on f, waiting for any
// current holder to release it.
func lockFileExclusive(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX)
}

func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
