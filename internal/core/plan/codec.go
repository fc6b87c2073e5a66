package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/colonyops/hive-review/internal/core/anchor"
)

// File is the canonical on-disk shape of comments.json.
type File struct {
	Threads []Thread `json:"threads"`
}

// RawThread accepts every historical on-disk shape of a thread: a flat
// "line" instead of "range", replies as bare strings, a "resolved" value
// that is not a boolean, and timestamps as strings or epoch milliseconds.
type RawThread struct {
	ID        string          `json:"id"`
	Line      *int            `json:"line,omitempty"`
	Range     *anchor.Range   `json:"range,omitempty"`
	Body      string          `json:"body"`
	Author    Author          `json:"author"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Resolved  json.RawMessage `json:"resolved,omitempty"`
	Replies   json.RawMessage `json:"replies,omitempty"`
}

type rawFile struct {
	Threads []RawThread `json:"threads"`
}

type rawReply struct {
	ID        string          `json:"id"`
	Body      string          `json:"body"`
	Author    Author          `json:"author"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// Decode parses comments.json in any supported shape and returns canonical
// threads. Both {"threads": [...]} and a bare top-level array are accepted.
func Decode(data []byte) ([]Thread, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []Thread{}, nil
	}

	var raws []RawThread
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("decode comments: %w", err)
		}
	} else {
		var f rawFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode comments: %w", err)
		}
		raws = f.Threads
	}

	threads := make([]Thread, 0, len(raws))
	for i, raw := range raws {
		t, err := Normalize(raw, i)
		if err != nil {
			return nil, fmt.Errorf("decode comment %d: %w", i, err)
		}
		threads = append(threads, t)
	}
	return threads, nil
}

// Encode serialises threads in the canonical shape only.
func Encode(threads []Thread) ([]byte, error) {
	if threads == nil {
		threads = []Thread{}
	}
	return json.MarshalIndent(File{Threads: threads}, "", "  ")
}

// Normalize upgrades a raw thread to the canonical shape. index is the
// thread's position in the file and is used to derive stable IDs for legacy
// entries that were stored without one.
func Normalize(raw RawThread, index int) (Thread, error) {
	t := Thread{
		ID:     raw.ID,
		Body:   raw.Body,
		Author: raw.Author,
	}
	if t.ID == "" {
		t.ID = fmt.Sprintf("c_legacy_%d", index)
	}
	if t.Author == "" {
		t.Author = AuthorHuman
	}

	switch {
	case raw.Range != nil:
		t.Range = *raw.Range
	case raw.Line != nil:
		t.Range = anchor.Line(*raw.Line)
	}

	ts, err := decodeTimestamp(raw.Timestamp)
	if err != nil {
		return Thread{}, err
	}
	t.Timestamp = ts

	// Only a literal JSON true resolves a thread; absent, false, null, 0,
	// "" or any other value leaves it unresolved.
	t.Resolved = bytes.Equal(bytes.TrimSpace(raw.Resolved), []byte("true"))

	replies, err := decodeReplies(raw.Replies, t)
	if err != nil {
		return Thread{}, err
	}
	t.Replies = replies

	return t, nil
}

func decodeReplies(data json.RawMessage, parent Thread) ([]Reply, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("replies: %w", err)
	}

	replies := make([]Reply, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var body string
			if err := json.Unmarshal(item, &body); err != nil {
				return nil, fmt.Errorf("reply %d: %w", i, err)
			}
			replies = append(replies, Reply{
				ID:        fmt.Sprintf("%s-reply-%d", parent.ID, i),
				Body:      body,
				Author:    AuthorHuman,
				Timestamp: parent.Timestamp,
			})
			continue
		}

		var rr rawReply
		if err := json.Unmarshal(item, &rr); err != nil {
			return nil, fmt.Errorf("reply %d: %w", i, err)
		}
		ts, err := decodeTimestamp(rr.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("reply %d: %w", i, err)
		}
		r := Reply{ID: rr.ID, Body: rr.Body, Author: rr.Author, Timestamp: ts}
		if r.ID == "" {
			r.ID = fmt.Sprintf("%s-reply-%d", parent.ID, i)
		}
		if r.Author == "" {
			r.Author = AuthorHuman
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = parent.Timestamp
		}
		replies = append(replies, r)
	}
	return replies, nil
}

// decodeTimestamp accepts an RFC 3339 string or epoch milliseconds.
func decodeTimestamp(data json.RawMessage) (time.Time, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return time.Time{}, nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %w", err)
		}
		if s == "" {
			return time.Time{}, nil
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %w", err)
		}
		return ts, nil
	}

	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
