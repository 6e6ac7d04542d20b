//go:build !linux

package iidc

func allocRing(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func freeRing(mem []byte) error {
	return nil
}
