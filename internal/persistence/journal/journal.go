// Package journal appends every bus event to hour-rotated,
// zstd-compressed JSONL files for replay and debugging. The journal is
// best-effort: a write failure is logged by the caller and never stalls
// ingestion.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"ps2map.live/internal/bus"
	"ps2map.live/internal/protocol"
)

// Entry is one journaled event.
type Entry struct {
	Time    time.Time `json:"time"`
	Topic   string    `json:"topic"`
	Payload any       `json:"payload"`
}

// Writer appends JSON lines to <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst,
// rotating when the UTC hour changes.
type Writer struct {
	dir    string
	prefix string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(dir, prefix string) *Writer {
	return &Writer{dir: dir, prefix: prefix}
}

func (w *Writer) Write(topic string, payload any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(Entry{Time: time.Now().UTC(), Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Attach subscribes the journal to every tracker topic.
func Attach(b *bus.Bus, w *Writer, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	record := func(topic string) bus.Handler {
		return func(payload any) {
			if err := w.Write(topic, payload); err != nil {
				logger.Printf("journal write (%s): %v", topic, err)
			}
		}
	}
	b.Subscribe(protocol.TopicMapPoll, record(protocol.TopicMapPoll))
	b.Subscribe(protocol.TopicMapUpdate, record(protocol.TopicMapUpdate))
	b.Subscribe(protocol.TopicMapStatus, record(protocol.TopicMapStatus))
}
