// Package predict implements the word completion engine behind the on-screen
// keyboard's suggestion bar.
//
// Suggestions are drawn first from n-gram tables (bigrams through 5-grams)
// keyed by the words already typed, longest matching context first, and then
// from a frequency-ordered dictionary by prefix. The result always holds at
// least one entry and mirrors the capitalisation the user typed:
//
//	corpus, err := predict.LoadCorpus("/usr/share/squidly/corpus")
//	if err != nil {
//	    return err
//	}
//	engine := predict.NewEngine(corpus)
//	engine.Suggestions("I want to g", 5) // [go ...]
//
// An Engine never mutates its input tables and may be shared between
// goroutines.
package predict
