package highlight

import "strings"

// ContextLimit caps the prefix and suffix context stored with an
// annotation.
const ContextLimit = 30

// Context derives the quote and its clipped surrounding context from a
// surface. Out-of-bounds offsets clamp to the text.
func Context(surface *Surface, start, end int) (quote, prefix, suffix string) {
	text := surface.Text
	start = clamp(start, 0, len(text))
	end = clamp(end, start, len(text))

	quote = text[start:end]

	p := start - ContextLimit
	if p < 0 {
		p = 0
	}
	prefix = text[p:start]

	sfx := end + ContextLimit
	if sfx > len(text) {
		sfx = len(text)
	}
	suffix = text[end:sfx]
	return quote, prefix, suffix
}

// Anchor relocates an annotation on a regenerated surface: exact
// occurrences of the quote are the candidates, prefix and suffix
// context rank them, and the candidate nearest the hint offset breaks
// ties. Returns found=false when the quote no longer occurs anywhere.
func Anchor(surface *Surface, quote, prefix, suffix string, hint int) (start, end int, found bool) {
	if quote == "" {
		return 0, 0, false
	}
	text := surface.Text

	var candidates []int
	for from := 0; from <= len(text)-len(quote); {
		i := strings.Index(text[from:], quote)
		if i < 0 {
			break
		}
		candidates = append(candidates, from+i)
		from += i + 1
	}
	if len(candidates) == 0 {
		return 0, 0, false
	}

	best := candidates[0]
	bestScore := -1
	for _, c := range candidates {
		score := 0
		if prefix != "" && strings.HasSuffix(text[:c], prefix) {
			score += 2
		}
		if suffix != "" && strings.HasPrefix(text[c+len(quote):], suffix) {
			score += 2
		}
		switch {
		case score > bestScore:
			best, bestScore = c, score
		case score == bestScore && distance(c, hint) < distance(best, hint):
			best = c
		}
	}
	return best, best + len(quote), true
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
