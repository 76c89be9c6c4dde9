//go:build !unix

package stitch

import "fmt"

func mmapWritable(fd uintptr, size int) ([]byte, error) {
	return nil, fmt.Errorf("stitch: memory mapping is not supported on this platform")
}

func munmap(data []byte) error {
	return nil
}

func msync(data []byte) error {
	return nil
}
