package plugin

import (
	"strconv"
	"strings"
)

// ValidVersion reports whether v is dotted numeric ("1", "2.0", "1.10.3.4").
func ValidVersion(v string) bool {
	if v == "" {
		return false
	}
	for _, seg := range strings.Split(v, ".") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// CompareVersions orders dotted numeric versions segment by segment,
// numerically, so "1.10" sorts after "1.9". Missing trailing segments count
// as zero. It returns -1, 0 or +1. Invalid input compares as a string.
func CompareVersions(a, b string) int {
	if !ValidVersion(a) || !ValidVersion(b) {
		return strings.Compare(a, b)
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		x, y := segment(as, i), segment(bs, i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func segment(segs []string, i int) uint64 {
	if i >= len(segs) {
		return 0
	}
	n, err := strconv.ParseUint(segs[i], 10, 64)
	if err != nil {
		// segments beyond uint64 saturate
		return ^uint64(0)
	}
	return n
}
