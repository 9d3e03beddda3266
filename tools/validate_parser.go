//go:build ignore

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/muurk/squidly/internal/protocol"
	"github.com/muurk/squidly/internal/server"
)

// Statistics tracks parsing results
type Statistics struct {
	TotalMessages  int
	TotalFiles     int
	ParseSuccess   int
	ParseFailure   int
	MessageTypes   map[protocol.MessageType]int
	FailedMessages []FailedMessage
	Sizes          map[string]int
}

// FailedMessage stores information about parsing failures
type FailedMessage struct {
	File       string
	LineNumber int
	MessageNum int
	Direction  string
	Payload    string
	Error      string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_parser <directory-or-file>")
		fmt.Println("Example: validate_parser analysis/messages/")
		fmt.Println("         validate_parser capture-20261016-101500.jsonl")
		os.Exit(1)
	}

	path := os.Args[1]

	stats := Statistics{
		MessageTypes: make(map[protocol.MessageType]int),
		Sizes:        make(map[string]int),
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Error accessing path: %v\n", err)
		os.Exit(1)
	}

	var files []string
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.jsonl"))
		if err != nil {
			fmt.Printf("Error finding JSONL files: %v\n", err)
			os.Exit(1)
		}
		if len(files) == 0 {
			fmt.Printf("No JSONL files found in %s\n", path)
			os.Exit(1)
		}
	} else {
		files = []string{path}
	}

	fmt.Printf("=== Squidly Protocol Validator ===\n")
	fmt.Printf("Files to process: %d\n\n", len(files))

	for _, file := range files {
		processFile(file, &stats)
	}

	printStatistics(&stats)
	if stats.ParseFailure > 0 {
		os.Exit(2)
	}
}

func processFile(filename string, stats *Statistics) {
	stats.TotalFiles++

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Printf("Error reading file %s: %v\n", filename, err)
		return
	}

	for lineNum, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		var rec server.MessageRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			fmt.Printf("Error parsing JSON in %s line %d: %v\n", filename, lineNum+1, err)
			continue
		}

		stats.TotalMessages++
		stats.Sizes[sizeBucket(rec.PayloadLen)]++

		fail := func(format string, args ...any) {
			payload := string(rec.Payload)
			if payload == "" {
				payload = rec.PayloadAscii
			}
			stats.ParseFailure++
			stats.FailedMessages = append(stats.FailedMessages, FailedMessage{
				File:       filename,
				LineNumber: lineNum + 1,
				MessageNum: rec.MessageNum,
				Direction:  rec.Direction,
				Payload:    payload,
				Error:      fmt.Sprintf(format, args...),
			})
		}

		if len(rec.Payload) == 0 {
			fail("frame is not JSON")
			continue
		}

		msg, err := protocol.ParseMessage(rec.Payload)
		if err != nil {
			fail("parse error: %v", err)
			continue
		}

		// Re-encoding must round trip to the same frame type and path.
		encoded, err := protocol.Encode(msg)
		if err != nil {
			fail("encode error: %v", err)
			continue
		}
		again, err := protocol.ParseMessage(encoded)
		if err != nil || again.Type != msg.Type || again.Path != msg.Path {
			fail("re-encoded frame differs: %s", encoded)
			continue
		}

		stats.ParseSuccess++
		stats.MessageTypes[msg.Type]++
	}
}

func sizeBucket(n int) string {
	switch {
	case n < 128:
		return "< 128 B"
	case n < 1024:
		return "128 B - 1 KiB"
	case n < 16*1024:
		return "1 - 16 KiB"
	default:
		return ">= 16 KiB"
	}
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func printStatistics(stats *Statistics) {
	fmt.Printf("\n========================================\n")
	fmt.Printf("VALIDATION RESULTS\n")
	fmt.Printf("========================================\n\n")

	fmt.Printf("Files Processed:    %d\n", stats.TotalFiles)
	fmt.Printf("Total Messages:     %d\n", stats.TotalMessages)
	fmt.Printf("Parse Success:      %d (%.2f%%)\n", stats.ParseSuccess, percent(stats.ParseSuccess, stats.TotalMessages))
	fmt.Printf("Parse Failure:      %d (%.2f%%)\n", stats.ParseFailure, percent(stats.ParseFailure, stats.TotalMessages))

	fmt.Printf("\n----------------------------------------\n")
	fmt.Printf("MESSAGE TYPE DISTRIBUTION\n")
	fmt.Printf("----------------------------------------\n")
	types := make([]string, 0, len(stats.MessageTypes))
	for t := range stats.MessageTypes {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		count := stats.MessageTypes[protocol.MessageType(t)]
		fmt.Printf("%-12s %6d (%.2f%%)\n", t, count, percent(count, stats.ParseSuccess))
	}

	fmt.Printf("\n----------------------------------------\n")
	fmt.Printf("FRAME SIZE DISTRIBUTION\n")
	fmt.Printf("----------------------------------------\n")
	for _, b := range []string{"< 128 B", "128 B - 1 KiB", "1 - 16 KiB", ">= 16 KiB"} {
		if count := stats.Sizes[b]; count > 0 {
			fmt.Printf("%-14s %6d (%.2f%%)\n", b, count, percent(count, stats.TotalMessages))
		}
	}

	if len(stats.FailedMessages) > 0 {
		fmt.Printf("\n----------------------------------------\n")
		fmt.Printf("PARSE FAILURES (%d total)\n", len(stats.FailedMessages))
		fmt.Printf("----------------------------------------\n")

		maxShow := 10
		if len(stats.FailedMessages) > maxShow {
			fmt.Printf("(Showing first %d of %d failures)\n\n", maxShow, len(stats.FailedMessages))
		}

		for i, failed := range stats.FailedMessages {
			if i >= maxShow {
				break
			}
			fmt.Printf("\nFailure #%d:\n", i+1)
			fmt.Printf("  File: %s (line %d, msg #%d, %s)\n", failed.File, failed.LineNumber, failed.MessageNum, failed.Direction)
			fmt.Printf("  Error: %s\n", failed.Error)
			preview := failed.Payload
			if len(preview) > 80 {
				preview = preview[:80] + "..."
			}
			fmt.Printf("  Payload: %s\n", preview)
		}
	}

	fmt.Printf("\n========================================\n")
	if stats.ParseFailure == 0 {
		fmt.Printf("✅ SUCCESS: All frames parsed successfully!\n")
	} else {
		fmt.Printf("⚠️  ISSUES FOUND: %d frames failed to parse\n", stats.ParseFailure)
	}
	fmt.Printf("========================================\n")
}
