//go:build !unix

package modespec

// Umask is a no-op on platforms without a process umask.
func Umask() uint32 {
	return 0
}
