//go:build unix

package stitch

import "golang.org/x/sys/unix"

// mmapWritable maps a file read-write and shared, grounded on the
// teacher's internal/cog/mmap_unix.go (which maps read-only, private);
// the canvas needs MAP_SHARED so placements are visible to a concurrent
// reader and durable across a flush. Uses golang.org/x/sys/unix rather
// than the teacher's bare syscall package, since x/sys is already an
// indirect dependency across the corpus (MeKo, kiesman99-stitch,
// sfomuseum-go-tilepacks, and the teacher itself) and is the more
// portable home for these flag constants going forward.
func mmapWritable(fd uintptr, size int) ([]byte, error) {
	return unix.Mmap(int(fd), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func munmap(data []byte) error {
	return unix.Munmap(data)
}

func msync(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}
