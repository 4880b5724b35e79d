package render

import "strings"

// MeasureFunc returns the rendered pixel width of s.
type MeasureFunc func(s string) int

// WrapText splits text into lines that each measure at most maxWidth pixels.
// Explicit newlines are hard breaks and blank paragraph lines are preserved.
// Wrapping happens at word boundaries; a single word wider than a full line
// is broken character-wise so that no line ever overflows the canvas.
func WrapText(text string, measure MeasureFunc, maxWidth int) []string {
	var lines []string

	for _, paragraph := range strings.Split(text, "\n") {
		if strings.TrimSpace(paragraph) == "" {
			lines = append(lines, "")
			continue
		}

		var current []string
		for _, word := range strings.Fields(paragraph) {
			if len(current) > 0 {
				joined := strings.Join(current, " ") + " " + word
				if measure(joined) <= maxWidth {
					current = append(current, word)
					continue
				}
				lines = append(lines, strings.Join(current, " "))
				current = nil
			}

			if measure(word) <= maxWidth {
				current = []string{word}
				continue
			}

			full, rest := breakWord(word, measure, maxWidth)
			lines = append(lines, full...)
			if rest != "" {
				current = []string{rest}
			}
		}
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
		}
	}

	return lines
}

// breakWord splits an overlong word into chunks that fit maxWidth. The final
// partial chunk is returned separately so the caller can continue filling
// that line. A single rune wider than maxWidth still gets its own line;
// there is nothing smaller to break it into.
func breakWord(word string, measure MeasureFunc, maxWidth int) (full []string, rest string) {
	var line []rune
	for _, r := range word {
		candidate := string(append(line, r))
		if len(line) == 0 || measure(candidate) <= maxWidth {
			line = append(line, r)
			continue
		}
		full = append(full, string(line))
		line = []rune{r}
	}
	return full, string(line)
}
