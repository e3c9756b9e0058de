package backendsim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"

	"github.com/muurk/relaynode/internal/protocol"
)

// CaptureSummary aggregates a capture file.
type CaptureSummary struct {
	Messages  int
	Binary    int
	Malformed int            // lines that are not capture records
	Unparsed  int            // text payloads without a message envelope
	ByType    map[string]int // message type -> count
	ByDevice  map[string]int // device id ("" before identify) -> count
	First     time.Time
	Last      time.Time
}

// ReadCaptures parses a JSONL capture file written by the simulator. Bad
// lines are counted in the summary and skipped.
func ReadCaptures(fs afero.Fs, path string) ([]MessageCapture, CaptureSummary, error) {
	summary := CaptureSummary{
		ByType:   make(map[string]int),
		ByDevice: make(map[string]int),
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, summary, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []MessageCapture
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*maxMessageSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec MessageCapture
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			summary.Malformed++
			continue
		}
		records = append(records, rec)
		summary.add(rec)
	}
	if err := scanner.Err(); err != nil {
		return records, summary, fmt.Errorf("failed to read capture file: %w", err)
	}

	return records, summary, nil
}

func (s *CaptureSummary) add(rec MessageCapture) {
	s.Messages++
	s.ByDevice[rec.DeviceID]++
	if s.First.IsZero() || rec.Timestamp.Before(s.First) {
		s.First = rec.Timestamp
	}
	if rec.Timestamp.After(s.Last) {
		s.Last = rec.Timestamp
	}

	if rec.MessageType != websocket.TextMessage {
		s.Binary++
		return
	}
	env, err := protocol.Parse([]byte(rec.PayloadASCII))
	if err != nil {
		s.Unparsed++
		return
	}
	s.ByType[env.Type]++
}

// Types returns the message types seen, most frequent first.
func (s CaptureSummary) Types() []string {
	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if s.ByType[types[i]] != s.ByType[types[j]] {
			return s.ByType[types[i]] > s.ByType[types[j]]
		}
		return types[i] < types[j]
	})
	return types
}
