package predict

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// InsertSuggestion replaces the word fragment in front of the caret with word.
//
// before and after are the text on either side of the caret. A word that
// starts with an apostrophe ("'re") is joined to the previous word. When the
// caret sits inside a word, the rest of that word is dropped. Exactly one
// space follows the inserted word. The returned caret is a byte offset just
// past that space.
func InsertSuggestion(before, after, word string) (string, int) {
	spaceBeforeCaret := strings.HasSuffix(before, " ")

	start := strings.LastIndex(before, " ")
	if !strings.HasPrefix(word, "'") {
		start++
	}
	if start < 0 {
		start = 0
	}
	newBefore := before[:start] + word

	var rest string
	if spaceBeforeCaret {
		rest = after
	} else if i := strings.Index(after, " "); i >= 0 {
		rest = after[i:]
	}
	if !strings.HasPrefix(rest, " ") {
		rest = " " + rest
	}

	return newBefore + rest, len(newBefore) + 1
}

// LastWord returns the last completed word of text with punctuation removed.
// It is used to detect when the user has moved on to a new word.
func LastWord(text string) string {
	words := whitespace.Split(text, -1)
	for i := len(words) - 1; i >= 0; i-- {
		if words[i] != "" {
			return nonAlphanumeric.ReplaceAllString(words[i], "")
		}
	}
	return ""
}
