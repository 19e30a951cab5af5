package match

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// indel counts insertions and deletions only; a substitution costs one of each.
var indel = levenshtein.NewParams().SubCost(2)

func indelDistance(a, b string) int {
	return levenshtein.Distance(a, b, indel)
}

func normalizedSimilarity(dist, lensum int) float64 {
	if lensum == 0 {
		return 100
	}
	return 100 * (1 - float64(dist)/float64(lensum))
}

// Ratio is the normalized insertion/deletion similarity of a and b on a
// 0-100 scale.
func Ratio(a, b string) float64 {
	return normalizedSimilarity(indelDistance(a, b), runeLen(a)+runeLen(b))
}

// PartialRatio scores the shorter string against its best aligned window
// of the longer one, including windows that hang off either edge.
func PartialRatio(a, b string) float64 {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) > len(s2) {
		s1, s2 = s2, s1
	}
	if len(s1) == 0 {
		if len(s2) == 0 {
			return 100
		}
		return 0
	}

	needle := string(s1)
	chars := make(map[rune]bool, len(s1))
	for _, r := range s1 {
		chars[r] = true
	}

	best := 0.0
	consider := func(window []rune) bool {
		score := Ratio(needle, string(window))
		if score > best {
			best = score
		}
		return best == 100
	}

	m, n := len(s1), len(s2)
	for i := 1; i < m; i++ {
		if chars[s2[i-1]] && consider(s2[:i]) {
			return best
		}
	}
	for i := 0; i < n-m; i++ {
		if chars[s2[i]] && consider(s2[i:i+m]) {
			return best
		}
	}
	for i := n - m; i < n; i++ {
		if chars[s2[i]] && consider(s2[i:]) {
			return best
		}
	}
	return best
}

// TokenSortRatio compares the whitespace tokens of a and b after sorting.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedJoin(strings.Fields(a)), sortedJoin(strings.Fields(b)))
}

// TokenSetRatio compares the shared token set against each side's
// remainder and keeps the best of the three comparisons.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var sect, diffAB, diffBA []string
	for t := range ta {
		if tb[t] {
			sect = append(sect, t)
		} else {
			diffAB = append(diffAB, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			diffBA = append(diffBA, t)
		}
	}
	if len(sect) > 0 && (len(diffAB) == 0 || len(diffBA) == 0) {
		return 100
	}

	ab, ba := sortedJoin(diffAB), sortedJoin(diffBA)
	abLen, baLen := runeLen(ab), runeLen(ba)
	sectLen := runeLen(sortedJoin(sect))
	sep := 0
	if sectLen > 0 {
		sep = 1
	}
	sectABLen := sectLen + sep + abLen
	sectBALen := sectLen + sep + baLen

	result := normalizedSimilarity(indelDistance(ab, ba), sectABLen+sectBALen)
	if sectLen == 0 {
		return result
	}

	sectAB := normalizedSimilarity(sep+abLen, sectLen+sectABLen)
	sectBA := normalizedSimilarity(sep+baLen, sectLen+sectBALen)
	return max(result, sectAB, sectBA)
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(s)
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}

func sortedJoin(tokens []string) string {
	cp := append([]string(nil), tokens...)
	sort.Strings(cp)
	return strings.Join(cp, " ")
}

func runeLen(s string) int {
	return len([]rune(s))
}
