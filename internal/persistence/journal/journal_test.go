package journal

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"ps2map.live/internal/bus"
	"ps2map.live/internal/protocol"
)

func readEntries(t *testing.T, dir string) []Entry {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("journal files = %v (err %v), want exactly 1", matches, err)
	}
	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var entries []Entry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return entries
}

func TestWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "events")

	if err := w.Write(protocol.TopicMapPoll, map[string]int{"zone": 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(protocol.TopicMapUpdate, map[string]int{"facility": 2201}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Topic != protocol.TopicMapPoll || entries[1].Topic != protocol.TopicMapUpdate {
		t.Fatalf("topics = %s, %s", entries[0].Topic, entries[1].Topic)
	}
	if entries[0].Time.IsZero() {
		t.Fatal("entry missing timestamp")
	}
}

func TestAttach_RecordsBusTraffic(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "events")
	b := bus.New(log.New(io.Discard, "", 0))
	Attach(b, w, log.New(io.Discard, "", 0))

	b.Emit(protocol.TopicMapPoll, protocol.MapPollEvent{ServerID: 13, ZoneID: 2})
	b.Emit(protocol.TopicMapUpdate, protocol.MapUpdateEvent{ServerID: 13, ZoneID: 2, FacilityID: 2201})
	b.Flush()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.Topic] = true
	}
	if !seen[protocol.TopicMapPoll] || !seen[protocol.TopicMapUpdate] {
		t.Fatalf("topics = %v", seen)
	}
}
