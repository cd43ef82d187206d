package paper

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"lpmaker-go/internal/execution"
)

// journalEntry is one JSONL line: the receipt fields plus a per-file sequence number.
type journalEntry struct {
	Seq uint64 `json:"seq"`
	execution.Receipt
}

// JSONLRecorder appends receipts as JSON lines so every liquidity change can be audited later.
// Sequence numbers continue across restarts.
type JSONLRecorder struct {
	mu   sync.Mutex
	path string
	file *os.File
	enc  *json.Encoder
	seq  uint64
}

// NewJSONLRecorder creates or appends to the journal at path.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	existing, err := ReadJournal(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		path: path,
		file: file,
		enc:  json.NewEncoder(file),
		seq:  uint64(len(existing)),
	}, nil
}

// Path returns the journal location.
func (r *JSONLRecorder) Path() string { return r.path }

// Record writes a single receipt. Writes after Close are dropped.
func (r *JSONLRecorder) Record(receipt execution.Receipt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}
	r.seq++
	_ = r.enc.Encode(journalEntry{Seq: r.seq, Receipt: receipt})
}

// Close closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.enc = nil
	return err
}

// ReadJournal loads every receipt from a journal file in write order.
func ReadJournal(path string) ([]execution.Receipt, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return decodeJournal(file)
}

func decodeJournal(r io.Reader) ([]execution.Receipt, error) {
	var out []execution.Receipt
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return out, fmt.Errorf("journal line %d: %w", line, err)
		}
		out = append(out, entry.Receipt)
	}
	return out, scanner.Err()
}
