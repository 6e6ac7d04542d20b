//go:build linux

package iidc

import "golang.org/x/sys/unix"

// allocRing maps one anonymous block for every slot of a ring.
func allocRing(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func freeRing(mem []byte) error {
	if mem == nil {
		return nil
	}
	return unix.Munmap(mem)
}
