package lighting

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collators keep internal buffers and are not safe for concurrent use.
var collators = sync.Pool{
	New: func() any {
		return collate.New(language.Italian, collate.IgnoreCase, collate.IgnoreDiacritics, collate.Numeric)
	},
}

// CompareText orders strings the way an Italian reader expects.
func CompareText(a, b string) int {
	c := collators.Get().(*collate.Collator)
	defer collators.Put(c)
	return c.CompareString(a, b)
}

// ComparePole orders pole numbers: purely numeric ones first by value, then
// the rest by collation, then blanks.
func ComparePole(a, b string) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return CompareText(a, b)
}

// SortByPole sorts lps in place by pole number, ties broken by id.
func SortByPole(lps []LightPoint) {
	sort.SliceStable(lps, func(i, j int) bool {
		if c := ComparePole(lps[i].NumeroPalo, lps[j].NumeroPalo); c != 0 {
			return c < 0
		}
		return lps[i].ID < lps[j].ID
	})
}

// PoleKey is the normalized form used by the per-town pole index.
func PoleKey(pole string) string {
	return strings.TrimSpace(pole)
}
