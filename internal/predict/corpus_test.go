package predict

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestLoadCorpusFS(t *testing.T) {
	fsys := fstest.MapFS{
		"corpus/bigrams.json": {Data: []byte(`{"thank": [{"word": "you", "freq": 12}]}`)},
		"corpus/words.json":   {Data: []byte(`[{"word": "thanks", "Freq": 3}, {"word": "you", "freq": 9}]`)},
	}

	corpus, err := LoadCorpusFS(fsys, "corpus")
	if err != nil {
		t.Fatalf("LoadCorpusFS() error = %v", err)
	}

	if got := corpus.Bigrams["thank"]; len(got) != 1 || got[0].Word != "you" || got[0].Freq != 12 {
		t.Errorf("Bigrams[thank] = %+v", got)
	}
	if corpus.Trigrams == nil || len(corpus.Trigrams) != 0 {
		t.Errorf("missing trigram file should give an empty table, got %v", corpus.Trigrams)
	}
	if len(corpus.Words) != 2 || corpus.Words[0].Freq != 3 {
		t.Errorf("Words = %+v, want capitalised Freq key accepted", corpus.Words)
	}
}

func TestLoadCorpusFS_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "missing words",
			fsys: fstest.MapFS{
				"c/bigrams.json": {Data: []byte(`{}`)},
			},
		},
		{
			name: "malformed words",
			fsys: fstest.MapFS{
				"c/words.json": {Data: []byte(`{"word": "x"}`)},
			},
		},
		{
			name: "malformed n-gram table",
			fsys: fstest.MapFS{
				"c/trigrams.json": {Data: []byte(`[1, 2]`)},
				"c/words.json":    {Data: []byte(`[]`)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadCorpusFS(tt.fsys, "c"); err == nil {
				t.Error("LoadCorpusFS() expected error, got nil")
			}
		})
	}
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, WordsFile), []byte(`[{"word": "hello", "freq": 1}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	corpus, err := LoadCorpus(dir)
	if err != nil {
		t.Fatalf("LoadCorpus() error = %v", err)
	}
	if got := NewEngine(corpus).Suggestions("he", 5); got[0].Word != "hello" {
		t.Errorf("Suggestions() = %v, want hello", got)
	}
}
