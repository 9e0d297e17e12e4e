package match

import "strings"

// bestOverlap returns the highest bigram overlap between kw and any window of
// text tokens with the same word count as kw.
func bestOverlap(kw string, tokens []string) float64 {
	words := tokenize(kw)
	if len(words) == 0 || len(tokens) < len(words) {
		return 0
	}
	target := bigrams(strings.Join(words, " "))

	var best float64
	for i := 0; i+len(words) <= len(tokens); i++ {
		window := strings.Join(tokens[i:i+len(words)], " ")
		if d := dice(target, bigrams(window)); d > best {
			best = d
			if best == 1 {
				break
			}
		}
	}
	return best
}

// bigrams returns the multiset of adjacent rune pairs in s. Single-rune
// strings yield themselves so they can still match exactly.
func bigrams(s string) map[string]int {
	r := []rune(s)
	out := make(map[string]int)
	if len(r) == 1 {
		out[s] = 1
		return out
	}
	for i := 0; i+1 < len(r); i++ {
		out[string(r[i:i+2])]++
	}
	return out
}

// dice computes the Sørensen–Dice coefficient of two bigram multisets.
func dice(a, b map[string]int) float64 {
	var na, nb, shared int
	for _, n := range a {
		na += n
	}
	for g, n := range b {
		nb += n
		if m, ok := a[g]; ok {
			shared += min(n, m)
		}
	}
	if na+nb == 0 {
		return 0
	}
	return 2 * float64(shared) / float64(na+nb)
}
