//go:build ignore

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/muurk/squidly/internal/protocol"
	"github.com/muurk/squidly/internal/server"
	"github.com/muurk/squidly/internal/session"
	"github.com/muurk/squidly/internal/setupflow"
	"github.com/muurk/squidly/internal/walkthrough"
)

// sessionStats summarises the frames of one session in a capture.
type sessionStats struct {
	frames  int
	bytes   int
	types   map[string]int
	paths   map[string]int
	clients map[string]bool
	errors  []string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: analyze-messages <jsonl-file>")
		fmt.Println("Example: analyze-messages analysis/messages/capture-20261016-101500.jsonl")
		os.Exit(1)
	}

	filename := os.Args[1]
	f, err := os.Open(filename)
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("=== Squidly Relay Capture Analyzer ===\n")
	fmt.Printf("File: %s\n\n", filename)

	stats := map[string]*sessionStats{}
	stepPath := session.WalkthroughFrame + "/" + walkthrough.StatePath
	setupPath := session.WalkthroughFrame + "/" + setupflow.StatePath

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}

		var rec server.MessageRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			fmt.Printf("Error parsing line %d: %v\n", line, err)
			continue
		}

		st := stats[rec.Session]
		if st == nil {
			st = &sessionStats{types: map[string]int{}, paths: map[string]int{}, clients: map[string]bool{}}
			stats[rec.Session] = st
		}
		st.frames++
		st.bytes += rec.PayloadLen
		st.types[rec.Direction+" "+rec.Type]++
		if rec.Path != "" {
			st.paths[rec.Path]++
		}
		st.clients[rec.RemoteAddr] = true
		if rec.Type == string(protocol.TypeError) {
			st.errors = append(st.errors, fmt.Sprintf("#%d %s", rec.MessageNum, rec.PayloadAscii))
		}

		// Only relayed values show what peers actually saw.
		if rec.Direction != server.DirectionOutbound || rec.Type != string(protocol.TypeValue) {
			continue
		}
		msg, err := protocol.ParseMessage(rec.Payload)
		if err != nil {
			fmt.Printf("Error parsing frame #%d: %v\n", rec.MessageNum, err)
			continue
		}
		switch rec.Path {
		case stepPath:
			printStep(&rec, msg.Value)
		case setupPath:
			printSetup(&rec, msg.Value)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	printSummary(stats)
}

func printStep(rec *server.MessageRecord, value json.RawMessage) {
	st := walkthrough.DecodeState(value)
	ts := rec.Timestamp.Format("15:04:05.000")
	if st == nil || !st.IsActive {
		fmt.Printf("%s  %-12s  walkthrough ended (to %s)\n", ts, rec.Session, rec.RemoteAddr)
		return
	}
	fmt.Printf("%s  %-12s  step %-24s back=%-5t next=%-5t hash=%s (to %s)\n",
		ts, rec.Session, st.CurrentStepID,
		st.ButtonStates.CanGoBack, st.ButtonStates.CanGoNext, st.ContentHash, rec.RemoteAddr)
}

func printSetup(rec *server.MessageRecord, value json.RawMessage) {
	ts := rec.Timestamp.Format("15:04:05.000")
	var st *setupflow.State
	if len(value) == 0 || json.Unmarshal(value, &st) != nil || st == nil {
		fmt.Printf("%s  %-12s  setup cleared (to %s)\n", ts, rec.Session, rec.RemoteAddr)
		return
	}
	detail := st.SelectedProfile
	if st.ProfileName != "" {
		detail = st.ProfileName
	}
	if st.SelectedMethod != "" {
		detail += " / " + string(st.SelectedMethod)
	}
	if st.StartStepID != "" {
		detail += " -> " + st.StartStepID
	}
	fmt.Printf("%s  %-12s  setup %-10s %s (to %s)\n", ts, rec.Session, st.Screen, detail, rec.RemoteAddr)
}

func printSummary(stats map[string]*sessionStats) {
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println("=== Sessions ===")
	for _, id := range ids {
		st := stats[id]
		fmt.Printf("\nSession %s: %d frames, %d payload bytes, %d client(s)\n",
			id, st.frames, st.bytes, len(st.clients))

		fmt.Println("  Frames by type:")
		for _, k := range sortedKeys(st.types) {
			fmt.Printf("    %-18s %6d\n", k, st.types[k])
		}

		fmt.Println("  Frames by path:")
		for _, k := range sortedKeys(st.paths) {
			fmt.Printf("    %-32s %6d\n", k, st.paths[k])
		}

		if len(st.errors) > 0 {
			fmt.Println("  Errors:")
			for _, e := range st.errors {
				fmt.Printf("    %s\n", e)
			}
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
