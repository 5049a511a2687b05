// Copyright 2025 Traceprompt
//
// Outbox is the crash-safe, append-only JSON-lines log of undelivered
// records: an O_APPEND writer with mutex-serialized appends and
// scanner-based replay. It verifies the hash chain via record.PrevHash/
// LeafHash on reopen, enforces a file-size backpressure limit, and
// supports crash-safe prefix truncation via write-temp-then-rename.
package outbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/traceprompt/audit-go/internal/metrics"
	"github.com/traceprompt/audit-go/internal/record"
)

// MaxFileBytes bounds the outbox file size.
const MaxFileBytes = 5 * 1024 * 1024

// warnFraction is the fraction of MaxFileBytes at which a warning metric
// fires.
const warnFraction = 0.8

// maxLineBytes bounds a single scanned line; records are small, so 10 MiB
// comfortably covers any static_meta blob in practice.
const maxLineBytes = 10 * 1024 * 1024

// Outbox is a single-writer, crash-safe append-only log of pending Records.
// Create one with Open; do not copy after first use.
type Outbox struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64
	count    int
	draining bool
	metrics  *metrics.Registry
	logger   *log.Logger
}

// Open opens (or creates) the outbox file at path, replaying and verifying
// its hash chain (ChainReplay) so the caller can seed internal/chain.Chain
// with the head leaf_hash. Returns the Outbox and the replayed chain head
// (empty string if the file is new or empty).
func Open(path string, reg *metrics.Registry) (*Outbox, string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, "", fmt.Errorf("outbox: create queue dir: %w", err)
	}

	head, count, err := ChainReplay(path)
	if err != nil {
		return nil, "", err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, "", fmt.Errorf("outbox: open %q for appending: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("outbox: stat %q: %w", path, err)
	}

	ob := &Outbox{
		path:    path,
		file:    f,
		size:    info.Size(),
		count:   count,
		metrics: reg,
		logger:  log.New(log.Writer(), "[Outbox] ", log.LstdFlags),
	}
	if reg != nil {
		reg.SetOutboxPending(count)
	}
	return ob, head, nil
}

// BeginShutdown makes subsequent Append calls fail fast with ShutdownError.
func (o *Outbox) BeginShutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.draining = true
}

// Append durably persists rec as one JSON line. It fsyncs before returning
// so the write survives a crash. If the outbox is already saturated (at or
// past MaxFileBytes from a prior append), Append refuses the record with a
// *BackpressureError without writing anything, so the file size stays
// unchanged across repeated calls while saturated — only the append that
// first crosses MaxFileBytes pays for the write before reporting it.
func (o *Outbox) Append(ctx context.Context, rec *record.Record) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.draining {
		return &ShutdownError{}
	}

	if o.size >= MaxFileBytes {
		return &BackpressureError{SizeBytes: o.size}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("outbox: marshal record %s: %w", rec.ID, err)
	}
	line = append(line, '\n')

	n, err := o.file.Write(line)
	if err != nil {
		return fmt.Errorf("outbox: write record %s: %w", rec.ID, err)
	}
	if err := o.file.Sync(); err != nil {
		return fmt.Errorf("outbox: fsync after record %s: %w", rec.ID, err)
	}
	o.size += int64(n)
	o.count++

	if o.metrics != nil {
		o.metrics.OutboxBytes.Set(float64(o.size))
		o.metrics.SetOutboxPending(o.count)
	}

	if o.size > MaxFileBytes {
		return &BackpressureError{SizeBytes: o.size}
	}
	if float64(o.size) > warnFraction*float64(MaxFileBytes) {
		o.logger.Printf("outbox at %.0f%% of capacity (%d/%d bytes)", 100*float64(o.size)/float64(MaxFileBytes), o.size, MaxFileBytes)
		if o.metrics != nil {
			o.metrics.BackpressureTrips.Inc()
		}
	}
	return nil
}

// StreamHead returns the first n parsed records from the outbox. Only the
// parsed records are returned, not their raw serialized lines. Fewer than n
// may be returned if the file has fewer lines.
func (o *Outbox) StreamHead(n int) ([]*record.Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return readHead(o.path, n)
}

func readHead(path string, n int) ([]*record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("outbox: open %q for reading: %w", path, err)
	}
	defer f.Close()

	var out []*record.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() && len(out) < n {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("outbox: malformed line: %w", err)
		}
		out = append(out, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("outbox: scanning %q: %w", path, err)
	}
	return out, nil
}

// TruncatePrefix crash-safely removes the first k lines from the outbox
// file: it writes the remainder to a temp file in the same directory,
// fsyncs it, then renames it over the original. k=0 is a no-op; k >= line
// count empties the file.
func (o *Outbox) TruncatePrefix(k int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if k <= 0 {
		return nil
	}

	if err := o.file.Close(); err != nil {
		return fmt.Errorf("outbox: close before truncate: %w", err)
	}

	remaining, err := dropPrefix(o.path, k)
	if err != nil {
		f, reopenErr := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if reopenErr == nil {
			o.file = f
		}
		return err
	}

	tmpPath := o.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("outbox: create temp truncation file: %w", err)
	}
	var size int64
	for _, line := range remaining {
		n, err := tmp.Write(line)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("outbox: write temp truncation file: %w", err)
		}
		size += int64(n)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("outbox: fsync temp truncation file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("outbox: close temp truncation file: %w", err)
	}
	if err := os.Rename(tmpPath, o.path); err != nil {
		return fmt.Errorf("outbox: rename temp truncation file over outbox: %w", err)
	}

	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("outbox: reopen %q for appending after truncate: %w", o.path, err)
	}
	o.file = f
	o.size = size
	o.count = len(remaining)
	if o.metrics != nil {
		o.metrics.OutboxBytes.Set(float64(size))
		o.metrics.SetOutboxPending(o.count)
	}
	return nil
}

// dropPrefix reads path and returns the raw lines (each including its
// trailing newline) after skipping the first k.
func dropPrefix(path string, k int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("outbox: open %q for truncation read: %w", path, err)
	}
	defer f.Close()

	var all [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := append([]byte{}, scanner.Bytes()...)
		line = append(line, '\n')
		all = append(all, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("outbox: scanning %q for truncation: %w", path, err)
	}
	if k >= len(all) {
		return nil, nil
	}
	return all[k:], nil
}

// Size reports the current outbox file size in bytes.
func (o *Outbox) Size() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.size
}

// Close syncs and closes the underlying file.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.file.Sync(); err != nil {
		_ = o.file.Close()
		return fmt.Errorf("outbox: sync on close: %w", err)
	}
	return o.file.Close()
}

// ChainReplay reads the outbox file at path (if any) and verifies that each
// record's PrevHash matches the previous record's LeafHash. The first
// record's PrevHash is not checked: after TruncatePrefix it names a record
// that has already been delivered and removed. It returns the
// final LeafHash (empty if the file is absent or empty) and the record
// count, or a *ChainError describing the first break.
func ChainReplay(path string) (headLeafHash string, count int, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("outbox: stat %q: %w", path, statErr)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("outbox: open %q for replay: %w", path, err)
	}
	defer f.Close()

	var head string
	line := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return "", 0, &ChainError{Line: line, Reason: fmt.Sprintf("malformed record: %v", err)}
		}
		if count > 0 && (rec.PrevHash == nil || *rec.PrevHash != head) {
			return "", 0, &ChainError{Line: line, Reason: "prev_hash does not match preceding leaf_hash"}
		}
		if rec.LeafHash == "" {
			return "", 0, &ChainError{Line: line, Reason: "missing leaf_hash"}
		}
		head = rec.LeafHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return "", 0, fmt.Errorf("outbox: scanning %q for replay: %w", path, err)
	}
	return head, count, nil
}
