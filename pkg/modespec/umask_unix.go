//go:build unix

package modespec

import "syscall"

// Umask reads the process umask. There is no read-only accessor, so it is
// set to zero and immediately restored.
func Umask() uint32 {
	old := syscall.Umask(0)
	syscall.Umask(old)
	return uint32(old)
}
