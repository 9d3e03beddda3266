package predict

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
)

// Corpus file names, one per table.
const (
	BigramsFile   = "bigrams.json"
	TrigramsFile  = "trigrams.json"
	FourgramsFile = "4grams.json"
	FivegramsFile = "5grams.json"
	WordsFile     = "words.json"
)

//go:embed starter/*.json
var starterFS embed.FS

// LoadCorpus reads a corpus directory from disk.
func LoadCorpus(dir string) (Corpus, error) {
	return LoadCorpusFS(os.DirFS(dir), ".")
}

// LoadStarterCorpus returns the small corpus compiled into the binary. It is
// used when no corpus directory is configured.
func LoadStarterCorpus() (Corpus, error) {
	return LoadCorpusFS(starterFS, "starter")
}

// LoadCorpusFS reads the corpus tables from dir within fsys. The n-gram files
// are optional and yield empty tables when absent; words.json is required.
func LoadCorpusFS(fsys fs.FS, dir string) (Corpus, error) {
	var corpus Corpus

	tables := []struct {
		name  string
		table *NgramTable
	}{
		{BigramsFile, &corpus.Bigrams},
		{TrigramsFile, &corpus.Trigrams},
		{FourgramsFile, &corpus.Fourgrams},
		{FivegramsFile, &corpus.Fivegrams},
	}

	for _, t := range tables {
		data, err := fs.ReadFile(fsys, path.Join(dir, t.name))
		if errors.Is(err, fs.ErrNotExist) {
			*t.table = NgramTable{}
			continue
		}
		if err != nil {
			return Corpus{}, fmt.Errorf("failed to read %s: %w", t.name, err)
		}
		if err := json.Unmarshal(data, t.table); err != nil {
			return Corpus{}, fmt.Errorf("failed to parse %s: %w", t.name, err)
		}
	}

	data, err := fs.ReadFile(fsys, path.Join(dir, WordsFile))
	if err != nil {
		return Corpus{}, fmt.Errorf("failed to read %s: %w", WordsFile, err)
	}
	if err := json.Unmarshal(data, &corpus.Words); err != nil {
		return Corpus{}, fmt.Errorf("failed to parse %s: %w", WordsFile, err)
	}

	return corpus, nil
}

// Entries reports the number of context keys per table, bigrams first.
func (c Corpus) Entries() [contextOrders]int {
	return [contextOrders]int{len(c.Bigrams), len(c.Trigrams), len(c.Fourgrams), len(c.Fivegrams)}
}
