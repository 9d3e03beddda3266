package predict

import (
	"reflect"
	"strings"
	"testing"
)

func testCorpus() Corpus {
	return Corpus{
		Bigrams: NgramTable{
			"am": {
				{Word: "fine", Freq: 50},
				{Word: "grand", Freq: 100},
				{Word: "great", Freq: 5},
			},
			"to": {
				{Word: "go", Freq: 10},
				{Word: "eat", Freq: 30},
			},
		},
		Trigrams: NgramTable{
			"i am": {{Word: "great", Freq: 10}},
			"want to": {
				{Word: "go", Freq: 5},
				{Word: "go", Freq: 1},
			},
		},
		Fourgrams: NgramTable{
			"i want to": {{Word: "giggle", Freq: 1}},
		},
		Fivegrams: NgramTable{},
		Words: []WordEntry{
			{Word: "it", Freq: 1000},
			{Word: "the", Freq: 900},
			{Word: "hello", Freq: 40},
			{Word: "help", Freq: 60},
			{Word: "world", Freq: 30},
			{Word: "work", Freq: 35},
			{Word: "ice", Freq: 5},
			{Word: "and", Freq: 800},
		},
	}
}

func words(entries []WordEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Word
	}
	return out
}

func TestEngine_Suggestions(t *testing.T) {
	engine := NewEngine(testCorpus())

	tests := []struct {
		name  string
		input string
		max   int
		want  []string
	}{
		{
			name:  "larger context first",
			input: "I am gr",
			max:   5,
			want:  []string{"great", "grand"},
		},
		{
			name:  "context without prefix falls back to sorted bigram list",
			input: "i am ",
			max:   2,
			want:  []string{"great", "grand"},
		},
		{
			name:  "longest context ahead of shorter ones",
			input: "i want to g",
			max:   3,
			want:  []string{"giggle", "go"},
		},
		{
			name:  "case mirrored from typed fragment",
			input: "Hel",
			max:   5,
			want:  []string{"Help", "Hello"},
		},
		{
			name:  "mixed case fragment",
			input: "say WOr",
			max:   5,
			want:  []string{"WOrk", "WOrld"},
		},
		{
			name:  "start of input capitalises",
			input: "",
			max:   3,
			want:  []string{"The", "And", "Help"},
		},
		{
			name:  "after full stop capitalises",
			input: "hello. ",
			max:   2,
			want:  []string{"The", "And"},
		},
		{
			name:  "mid sentence stays lowercase",
			input: "hello ",
			max:   2,
			want:  []string{"the", "and"},
		},
		{
			name:  "unknown fragment echoed",
			input: "zzq",
			max:   5,
			want:  []string{"zzq"},
		},
		{
			name:  "echo keeps typed case",
			input: "the Zzq",
			max:   5,
			want:  []string{"Zzq"},
		},
		{
			name:  "short words excluded from dictionary",
			input: "i",
			max:   5,
			want:  []string{"ice"},
		},
		{
			name:  "no-break space separates words",
			input: "hello\u00a0wor",
			max:   5,
			want:  []string{"work", "world"},
		},
		{
			name:  "ideographic space separates words",
			input: "hello\u3000wor",
			max:   5,
			want:  []string{"work", "world"},
		},
		{
			name:  "byte order mark separates words",
			input: "\ufeffhel",
			max:   5,
			want:  []string{"help", "hello"},
		},
		{
			name:  "trailing no-break space starts a new word",
			input: "hello\u00a0",
			max:   2,
			want:  []string{"the", "and"},
		},
		{
			name:  "truncated to max",
			input: "he",
			max:   1,
			want:  []string{"help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := words(engine.Suggestions(tt.input, tt.max))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Suggestions(%q, %d) = %v, want %v", tt.input, tt.max, got, tt.want)
			}
		})
	}
}

func TestEngine_SuggestionsProperties(t *testing.T) {
	engine := NewEngine(testCorpus())

	inputs := []string{
		"", " ", "   ", "\t", "i", "I am", "I am ", "i am g", "want to", "want to g",
		"Hello wor", "the end.", "the end. ", "x y z", "ÄÖÜ", "hel\nwo", "  leading", "\u00a0", "a\u2009b",
	}

	for _, input := range inputs {
		for _, max := range []int{1, 2, 5, 10} {
			got := engine.Suggestions(input, max)
			if len(got) < 1 || len(got) > max {
				t.Errorf("Suggestions(%q, %d) returned %d entries", input, max, len(got))
			}

			fields := whitespace.Split(strings.ToLower(input), -1)
			last := fields[len(fields)-1]
			seen := make(map[string]bool)
			for _, s := range got {
				lower := strings.ToLower(s.Word)
				if !strings.HasPrefix(lower, last) {
					t.Errorf("Suggestions(%q, %d) word %q does not start with %q", input, max, s.Word, last)
				}
				if seen[lower] {
					t.Errorf("Suggestions(%q, %d) duplicate word %q", input, max, s.Word)
				}
				seen[lower] = true
			}
		}
	}
}

func TestEngine_DefaultMax(t *testing.T) {
	engine := NewEngine(testCorpus())

	got := engine.Suggestions("", 0)
	if len(got) != DefaultMaxSuggestions {
		t.Errorf("Suggestions(\"\", 0) returned %d entries, want %d", len(got), DefaultMaxSuggestions)
	}
}

func TestEngine_FrequenciesPreserved(t *testing.T) {
	engine := NewEngine(testCorpus())

	got := engine.Suggestions("zzq", 5)
	if got[0].Freq != 0 {
		t.Errorf("echo entry freq = %v, want 0", got[0].Freq)
	}

	got = engine.Suggestions("i am gr", 1)
	if got[0].Word != "great" || got[0].Freq != 10 {
		t.Errorf("Suggestions() = %+v, want great with trigram freq 10", got[0])
	}
}

func TestNewEngine_DoesNotMutateCorpus(t *testing.T) {
	corpus := testCorpus()
	before := words(corpus.Bigrams["am"])
	wordsBefore := words(corpus.Words)

	engine := NewEngine(corpus)
	results := engine.Suggestions("Hel", 5)
	results[0].Word = "mutated"

	if got := words(corpus.Bigrams["am"]); !reflect.DeepEqual(got, before) {
		t.Errorf("bigram list reordered: %v, want %v", got, before)
	}
	if got := words(corpus.Words); !reflect.DeepEqual(got, wordsBefore) {
		t.Errorf("word list reordered: %v, want %v", got, wordsBefore)
	}
	if got := engine.Suggestions("Hel", 5); got[0].Word != "Help" {
		t.Errorf("engine state changed through result slice: %v", got)
	}
}

func TestNewEngine_Dictionary(t *testing.T) {
	engine := NewEngine(testCorpus())

	// "it" is filtered out, the rest stays in descending frequency order
	if got := engine.DictionarySize(); got != 7 {
		t.Errorf("DictionarySize() = %d, want 7", got)
	}
	want := []string{"the", "and", "help", "hello", "work", "world", "ice"}
	if got := words(engine.dictionary); !reflect.DeepEqual(got, want) {
		t.Errorf("dictionary = %v, want %v", got, want)
	}
}

func TestNewEngine_DeduplicatesContextLists(t *testing.T) {
	engine := NewEngine(testCorpus())

	got := engine.ngrams[1]["want to"]
	if len(got) != 1 || got[0].Freq != 5 {
		t.Errorf("trigram list = %+v, want single highest-frequency go", got)
	}
}

func TestLoadStarterCorpus(t *testing.T) {
	corpus, err := LoadStarterCorpus()
	if err != nil {
		t.Fatalf("LoadStarterCorpus() error = %v", err)
	}

	for i, n := range corpus.Entries() {
		if n == 0 {
			t.Errorf("starter table %d is empty", i)
		}
	}

	engine := NewEngine(corpus)
	got := engine.Suggestions("I want to go out", 3)
	if got[0].Word != "outside" {
		t.Errorf("Suggestions() = %v, want outside first", words(got))
	}
}
