package llm

import (
	"strings"
	"unicode/utf8"
)

// charsPerToken is a rough average for mixed French/English markdown.
const charsPerToken = 4

func approxTokens(s string) int {
	return (utf8.RuneCountInString(s) + charsPerToken - 1) / charsPerToken
}

// chunkText splits text on line boundaries into pieces of at most maxTokens,
// repeating the trailing overlap fraction of each chunk at the start of the
// next. A single line longer than the limit becomes its own chunk.
func chunkText(text string, maxTokens int, overlap float64) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxTokens <= 0 || approxTokens(text) <= maxTokens {
		return []string{text}
	}

	overlapTokens := int(float64(maxTokens) * overlap)
	lines := strings.Split(text, "\n")

	var (
		chunks []string
		cur    []string
		size   int
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(cur, "\n"))

		var carry []string
		carried := 0
		for i := len(cur) - 1; i >= 0; i-- {
			t := approxTokens(cur[i]) + 1
			if carried+t > overlapTokens {
				break
			}
			carry = append([]string{cur[i]}, carry...)
			carried += t
		}
		cur, size = carry, carried
	}

	for _, line := range lines {
		t := approxTokens(line) + 1
		if size+t > maxTokens && size > 0 {
			before := len(chunks)
			flush()
			if size+t > maxTokens && len(chunks) > before {
				cur, size = nil, 0
			}
		}
		cur = append(cur, line)
		size += t
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, "\n"))
	}
	return chunks
}
