package bot

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the longest single message sent on any platform
const MaxMessageLength = 2000

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// SplitMessage cuts text into pieces of at most max characters, preferring
// paragraph breaks, then sentence ends, then a hard split.
func SplitMessage(text string, max int) []string {
	if max <= 0 {
		max = MaxMessageLength
	}
	if utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var chunks []string
	current := ""

	flush := func() {
		if s := strings.TrimSpace(current); s != "" {
			chunks = append(chunks, s)
		}
		current = ""
	}

	add := func(piece, sep string) {
		if current == "" {
			current = piece
			return
		}
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(sep)+utf8.RuneCountInString(piece) <= max {
			current += sep + piece
			return
		}
		flush()
		current = piece
	}

	for _, para := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= max {
			add(para, "\n\n")
			continue
		}

		for _, sentence := range splitSentences(para) {
			if utf8.RuneCountInString(sentence) <= max {
				add(sentence, " ")
				continue
			}

			// urls or unbroken text
			flush()
			r := []rune(sentence)
			for len(r) > max {
				chunks = append(chunks, string(r[:max]))
				r = r[max:]
			}
			current = string(r)
		}
	}
	flush()

	return chunks
}

// splitSentences splits after . ! or ? followed by whitespace, keeping the punctuation
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}

	return string(r[:max]) + "..."
}
