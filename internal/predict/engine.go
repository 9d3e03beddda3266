package predict

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxSuggestions is used when Suggestions is called with max <= 0.
const DefaultMaxSuggestions = 5

// minDictionaryWordLength excludes very short words from plain prefix completion.
const minDictionaryWordLength = 3

// contextOrders is the number of n-gram tables consulted (bigrams through 5-grams).
const contextOrders = 4

// whitespace separates words. Go's \s is ASCII only, so Unicode space
// separators and the byte order mark are listed too.
var whitespace = regexp.MustCompile(`[\s\p{Zs}\x{FEFF}]+`)

// WordEntry is a candidate word and its corpus frequency.
type WordEntry struct {
	Word string  `json:"word"`
	Freq float64 `json:"freq"`
}

// NgramTable maps a space-joined lowercase context to the words that follow it.
type NgramTable map[string][]WordEntry

// Corpus holds the raw input tables for an Engine.
type Corpus struct {
	Bigrams   NgramTable
	Trigrams  NgramTable
	Fourgrams NgramTable
	Fivegrams NgramTable
	Words     []WordEntry
}

// Engine produces ranked word completions. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	// ngrams[i] is keyed by contexts of i+1 words
	ngrams     [contextOrders]NgramTable
	dictionary []WordEntry
}

// NewEngine builds an engine from corpus. The corpus tables are copied; the
// caller may keep using or mutating them.
func NewEngine(corpus Corpus) *Engine {
	e := &Engine{}
	for i, table := range []NgramTable{corpus.Bigrams, corpus.Trigrams, corpus.Fourgrams, corpus.Fivegrams} {
		e.ngrams[i] = prepareTable(table)
	}

	// Sort once, then filter the sorted copy
	words := sortByFreq(corpus.Words)
	e.dictionary = make([]WordEntry, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w.Word) >= minDictionaryWordLength {
			e.dictionary = append(e.dictionary, w)
		}
	}

	return e
}

func prepareTable(table NgramTable) NgramTable {
	out := make(NgramTable, len(table))
	for key, entries := range table {
		out[key] = unique(sortByFreq(entries))
	}
	return out
}

// sortByFreq returns a copy of entries ordered by descending frequency.
// Ties keep their input order.
func sortByFreq(entries []WordEntry) []WordEntry {
	sorted := make([]WordEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Freq > sorted[j].Freq
	})
	return sorted
}

// DictionarySize reports how many words are eligible for prefix completion.
func (e *Engine) DictionarySize() int {
	return len(e.dictionary)
}

// Suggestions returns up to max completions for the word being typed at the
// end of input, using the preceding words as n-gram context. The result is
// never empty: when nothing matches, the typed fragment is echoed back with
// frequency 0.
func (e *Engine) Suggestions(input string, max int) []WordEntry {
	if max <= 0 {
		max = DefaultMaxSuggestions
	}

	words := whitespace.Split(strings.ToLower(input), -1)
	lastWord := words[len(words)-1]
	words = words[:len(words)-1]

	suggestions := e.matchContext(words, lastWord)
	if len(suggestions) < max {
		suggestions = unique(append(suggestions, e.wordsStartingWith(lastWord, max*2)...))
	}

	if len(suggestions) == 0 {
		suggestions = []WordEntry{{Word: lastWord, Freq: 0}}
	}

	if len(suggestions) > max {
		suggestions = suggestions[:max]
	}
	result := make([]WordEntry, len(suggestions))
	copy(result, suggestions)

	switch {
	case lastWord != "":
		typed := whitespace.Split(input, -1)
		fragment := typed[len(typed)-1]
		for i := range result {
			result[i].Word = strings.Replace(result[i].Word, lastWord, fragment, 1)
		}
	case len(words) == 0 || strings.HasSuffix(words[len(words)-1], "."):
		for i := range result {
			result[i].Word = capitalize(result[i].Word)
		}
	}

	return result
}

// matchContext collects n-gram continuations of words that start with
// lastWord. Longer contexts are placed first.
func (e *Engine) matchContext(words []string, lastWord string) []WordEntry {
	var matches []WordEntry
	for i := 0; i < len(words) && i < contextOrders; i++ {
		key := strings.Join(words[len(words)-(i+1):], " ")
		candidates, ok := e.ngrams[i][key]
		if !ok {
			continue
		}

		var next []WordEntry
		for _, c := range candidates {
			if strings.HasPrefix(c.Word, lastWord) {
				next = append(next, c)
			}
		}
		if len(next) > 0 {
			matches = append(next, matches...)
		}
	}
	return unique(matches)
}

// wordsStartingWith returns at most limit dictionary words with the given
// prefix, in frequency order.
func (e *Engine) wordsStartingWith(fragment string, limit int) []WordEntry {
	if fragment == "" {
		if len(e.dictionary) < limit {
			limit = len(e.dictionary)
		}
		return e.dictionary[:limit]
	}

	var matches []WordEntry
	for _, w := range e.dictionary {
		if strings.HasPrefix(w.Word, fragment) {
			matches = append(matches, w)
			if len(matches) == limit {
				break
			}
		}
	}
	return matches
}

// unique drops entries whose word (case-insensitively) was already seen.
func unique(entries []WordEntry) []WordEntry {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0:0]
	for _, w := range entries {
		key := strings.ToLower(w.Word)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
	}
	return out
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}
