package store

// Match reports whether key matches pattern. The syntax is byte oriented and
// has no separator: '*' matches any run of bytes including '/', '?' matches one
// byte, '[abc]', '[a-z]' and '[^abc]' match one byte from a class, and '\'
// quotes the next byte. pattern must satisfy ValidPattern.
func Match(pattern, key string) bool {
	px, kx := 0, 0
	star, starKey := -1, 0
	for kx < len(key) {
		if px < len(pattern) {
			switch pattern[px] {
			case '*':
				star, starKey = px, kx
				px++
				continue
			case '?':
				px++
				kx++
				continue
			case '[':
				if end, ok := matchClass(pattern, px, key[kx]); ok {
					px = end
					kx++
					continue
				}
			case '\\':
				if px+1 < len(pattern) && pattern[px+1] == key[kx] {
					px += 2
					kx++
					continue
				}
			default:
				if pattern[px] == key[kx] {
					px++
					kx++
					continue
				}
			}
		}
		if star < 0 {
			return false
		}
		// retry with the last '*' absorbing one more byte
		starKey++
		px, kx = star+1, starKey
	}
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}

// ValidPattern reports whether every class is closed and no escape dangles.
func ValidPattern(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			if i+1 >= len(pattern) {
				return false
			}
			i++
		case '[':
			end := classEnd(pattern, i)
			if end < 0 {
				return false
			}
			i = end
		}
	}
	return true
}

// classEnd returns the index of the ']' closing the class opened at i, or -1.
func classEnd(pattern string, i int) int {
	j := i + 1
	if j < len(pattern) && pattern[j] == '^' {
		j++
	}
	for ; j < len(pattern); j++ {
		switch pattern[j] {
		case '\\':
			j++
		case ']':
			return j
		}
	}
	return -1
}

// matchClass tests c against the class opened at pattern[i] and returns the
// index just past its closing ']'.
func matchClass(pattern string, i int, c byte) (int, bool) {
	end := classEnd(pattern, i)
	if end < 0 {
		return i, false
	}
	j := i + 1
	negate := pattern[j] == '^'
	if negate {
		j++
	}
	matched := false
	for j < end {
		switch {
		case pattern[j] == '\\' && j+1 < end:
			if pattern[j+1] == c {
				matched = true
			}
			j += 2
		case j+2 < end && pattern[j+1] == '-':
			lo, hi := pattern[j], pattern[j+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			j += 3
		default:
			if pattern[j] == c {
				matched = true
			}
			j++
		}
	}
	return end + 1, matched != negate
}
