//go:build unix

package asm

import "golang.org/x/sys/unix"

// Map allocates an executable memory mapping of the given size for the
// segment. The mapping is read-write-execute; callers that need W^X
// toggle protections around publication with Protect.
func (seg *CodeSegment) Map(size int) error {
	b, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return err
	}
	copy(b, seg.code[:seg.size])
	seg.code = b
	seg.mapped = true
	return nil
}

// Protect switches the mapping between writable and executable-only,
// for callers enforcing W^X.
func (seg *CodeSegment) Protect(writable bool) error {
	if !seg.mapped {
		return nil
	}
	prot := unix.PROT_READ | unix.PROT_EXEC
	if writable {
		prot = unix.PROT_READ | unix.PROT_WRITE
	}
	return unix.Mprotect(seg.code[:cap(seg.code)], prot)
}

// Unmap releases the mapping, returning the segment to its empty
// heap-backed state.
func (seg *CodeSegment) Unmap() error {
	if seg.mapped {
		if err := unix.Munmap(seg.code[:cap(seg.code)]); err != nil {
			return err
		}
		seg.code = nil
		seg.size = 0
		seg.mapped = false
	}
	return nil
}

func remapCode(code []byte, size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	copy(b, code)
	if err := unix.Munmap(code[:cap(code)]); err != nil {
		return nil, err
	}
	return b, nil
}
