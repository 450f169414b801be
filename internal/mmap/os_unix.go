//go:build unix

package mmap

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// osMap maps size bytes of f read-only and shared. Blob readers use it for
// trace files.
func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	return mapRegion(int(f.Fd()), size, unix.PROT_READ, unix.MAP_SHARED)
}

// osMapAnon maps zero-filled private memory for pool storage and large objects.
func osMapAnon(size int) ([]byte, func([]byte) error, error) {
	return mapRegion(-1, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func mapRegion(fd, size, prot, flags int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(fd, 0, size, prot, flags)
	if err != nil {
		return nil, nil, os.NewSyscallError("mmap", err)
	}
	return data, munmap, nil
}

func munmap(data []byte) error {
	return os.NewSyscallError("munmap", unix.Munmap(data))
}

var madvise = [...]int{
	AccessDefault:    unix.MADV_NORMAL,
	AccessSequential: unix.MADV_SEQUENTIAL,
	AccessRandom:     unix.MADV_RANDOM,
	AccessWillNeed:   unix.MADV_WILLNEED,
	AccessDontNeed:   unix.MADV_DONTNEED,
}

func osAdvise(data []byte, pattern AccessPattern) error {
	if len(data) == 0 || pattern < 0 || int(pattern) >= len(madvise) {
		return nil
	}
	err := unix.Madvise(data, madvise[pattern])
	if errors.Is(err, unix.EINVAL) {
		// Unaligned range.
		return nil
	}
	return os.NewSyscallError("madvise", err)
}
