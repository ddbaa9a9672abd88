package policy

import (
	"strconv"
	"strings"
)

// CompareTLSVersions compares two dotted TLS version strings numerically
// and returns -1, 0 or 1. The comparison is per-component numeric, never
// lexicographic: "1.10" sorts above "1.2". Malformed components count
// as zero.
func CompareTLSVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av := component(as, i)
		bv := component(bs, i)
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

func component(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil {
		return 0
	}
	return v
}
