//go:build linux || darwin || freebsd || netbsd || openbsd

package codebuf

import (
	"errors"

	"golang.org/x/sys/unix"
)

// mapCode maps anonymous read-write memory (Unix implementation).
func mapCode(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// protectCode flips the mapping to read-execute.
func protectCode(mem []byte) error {
	err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC)
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
		// Hardened kernels refuse executable anonymous memory; the prefix is still sealed read-only.
		return unix.Mprotect(mem, unix.PROT_READ)
	}
	return err
}

// unmapCode unmaps a region returned by mapCode.
func unmapCode(mem []byte) error {
	return unix.Munmap(mem)
}
