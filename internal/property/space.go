package property

// podSpace is the allocator of one visibility tier. Each bit marks one
// occupied byte of the tier; the tier size is always a multiple of 8.
type podSpace struct {
	bits []uint64
	size int
}

func (s *podSpace) used(pos int) bool {
	return s.bits[pos>>6]&(uint64(1)<<uint(pos&63)) != 0
}

func (s *podSpace) mark(pos int) {
	s.bits[pos>>6] |= uint64(1) << uint(pos&63)
}

func (s *podSpace) free(pos, n int) bool {
	for i := 0; i < n; i++ {
		if s.used(pos + i) {
			return false
		}
	}
	return true
}

// alloc reserves n bytes and returns their tier-relative offset. The scan
// advances in steps of n, so every field lands on its natural alignment.
func (s *podSpace) alloc(n int) int {
	pos := 0
	for pos+n <= s.size && !s.free(pos, n) {
		pos += n
	}

	if end := pos + n; end > s.size {
		if rem := end % 8; rem != 0 {
			end += 8 - rem
		}
		s.size = end
		for len(s.bits)*64 < s.size {
			s.bits = append(s.bits, 0)
		}
	}

	for i := 0; i < n; i++ {
		s.mark(pos + i)
	}
	return pos
}

// occupied returns the number of reserved bytes.
func (s *podSpace) occupied() int {
	n := 0
	for pos := 0; pos < s.size; pos++ {
		if s.used(pos) {
			n++
		}
	}
	return n
}
