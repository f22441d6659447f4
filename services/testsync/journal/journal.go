// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal persists the diff operation log so a collection can be
// rebuilt after a restart.
//
// Each appended batch becomes one entry keyed by a zero-padded sequence
// number under the stream's prefix:
//
//	Key:   "journal:{stream}:{seq:016d}"
//	Value: [4-byte CRC32][JSON array of diff.Wire]
//
// Replay returns the batches in sequence order. Compact writes a reviver
// batch that reproduces the current state and drops everything before it.
// A base marker ("journal-base:{stream}") records where replay starts, so
// a crash in the middle of a compaction never loses state.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/testsync/services/testsync/diff"
	"github.com/AleutianAI/testsync/services/testsync/storage/badger"
	dgbadger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("testsync.journal")

// =============================================================================
// Configuration
// =============================================================================

// Config configures a Journal.
type Config struct {
	// Path is the BadgerDB directory. Required unless InMemory.
	Path string

	// Stream names the op log within the database. Required.
	Stream string

	// SyncWrites fsyncs every append.
	SyncWrites bool

	// MaxJournalBytes rejects appends once the stored entries reach this
	// size. Zero disables the limit.
	MaxJournalBytes int64

	// SkipCorrupted makes Replay log and skip corrupted entries and gaps
	// instead of failing.
	SkipCorrupted bool

	// InMemory keeps the journal in RAM.
	InMemory bool

	// GCInterval is the BadgerDB value log GC period. Zero disables GC.
	GCInterval time.Duration

	// Logger for journal operations. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns durable defaults for the "default" stream.
func DefaultConfig() Config {
	return Config{
		Stream:          "default",
		SyncWrites:      true,
		MaxJournalBytes: 256 << 20,
		GCInterval:      5 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Stream == "" {
		return errors.New("stream must not be empty")
	}
	if strings.ContainsRune(c.Stream, ':') {
		return errors.New("stream must not contain ':'")
	}
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for persistent journal")
	}
	if c.MaxJournalBytes < 0 {
		return errors.New("max_journal_bytes must be non-negative")
	}
	return nil
}

// =============================================================================
// Types
// =============================================================================

// Batch is one replayed entry.
type Batch struct {
	// Seq is the entry's sequence number.
	Seq uint64

	// Ops are the operations in log order.
	Ops []diff.Op
}

// Stats describes the journal.
type Stats struct {
	// Batches is the number of live entries.
	Batches int64

	// TotalBytes is the encoded size of live entries.
	TotalBytes int64

	// BaseSeq is the first sequence number replay returns.
	BaseSeq uint64

	// LastSeq is the most recent sequence number.
	LastSeq uint64

	// Corrupted counts corrupted entries seen by Replay.
	Corrupted int64

	// LastCompaction is when Compact last succeeded, or zero.
	LastCompaction time.Time

	// DiskBytes is the store's LSM plus value log size as last measured
	// by BadgerDB. Zero for in-memory or closed journals.
	DiskBytes int64
}

// Journal is a durable, append-only log of diff batches.
//
// Thread Safety:
//
//	Safe for concurrent use. Appends are serialized so sequence order
//	equals write order.
type Journal struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	seq     uint64
	baseSeq uint64

	batches        atomic.Int64
	totalBytes     atomic.Int64
	corrupted      atomic.Int64
	lastCompaction atomic.Int64
	closed         atomic.Bool
}

// Open opens or creates the journal described by cfg.
//
// Description:
//
//	Opens the BadgerDB store and scans the stream to restore the sequence
//	counter, base marker and size accounting.
//
// Outputs:
//
//	*Journal - The open journal. Call Close when done.
//	error - Non-nil on invalid configuration or storage failure.
func Open(ctx context.Context, cfg Config) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dbCfg := badger.DefaultConfig()
	dbCfg.Path = cfg.Path
	dbCfg.InMemory = cfg.InMemory
	dbCfg.SyncWrites = cfg.SyncWrites
	dbCfg.GCInterval = cfg.GCInterval
	dbCfg.Logger = cfg.Logger
	db, err := badger.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open journal store: %w", err)
	}

	j := &Journal{
		db:     db,
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "journal"), slog.String("stream", cfg.Stream)),
	}
	if err := j.load(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load journal state: %w", err)
	}

	j.logger.Info("journal opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Uint64("last_seq", j.seq),
		slog.Int64("batches", j.batches.Load()),
	)
	return j, nil
}

func (j *Journal) load(ctx context.Context) error {
	base, err := j.readBase(ctx)
	if err != nil {
		return err
	}
	j.baseSeq = base

	last, err := j.db.LastKey(ctx, j.entryPrefix())
	if err != nil {
		return err
	}
	if last != nil {
		seq, ok := j.parseSeq(last)
		if !ok {
			return fmt.Errorf("%w: malformed key %q", ErrJournalCorrupted, last)
		}
		j.seq = seq
	}

	return j.db.ScanPrefix(ctx, j.entryPrefix(), func(key, value []byte) error {
		if seq, ok := j.parseSeq(key); ok && seq >= j.baseSeq {
			j.batches.Add(1)
			j.totalBytes.Add(int64(len(value)))
		}
		return nil
	})
}

// =============================================================================
// Keys and Encoding
// =============================================================================

func (j *Journal) entryPrefix() []byte {
	return []byte("journal:" + j.cfg.Stream + ":")
}

func (j *Journal) entryKey(seq uint64) []byte {
	return fmt.Appendf(j.entryPrefix(), "%016d", seq)
}

func (j *Journal) baseKey() []byte {
	return []byte("journal-base:" + j.cfg.Stream)
}

func (j *Journal) parseSeq(key []byte) (uint64, bool) {
	prefix := j.entryPrefix()
	if len(key) <= len(prefix) {
		return 0, false
	}
	seq, err := strconv.ParseUint(string(key[len(prefix):]), 10, 64)
	return seq, err == nil
}

func (j *Journal) readBase(ctx context.Context) (uint64, error) {
	var base uint64
	err := j.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(j.baseKey())
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("%w: base marker has %d bytes", ErrJournalCorrupted, len(val))
			}
			base = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	return base, err
}

// encodeEntry serializes ops and prefixes the CRC32 of the payload.
func encodeEntry(ops []diff.Op) ([]byte, error) {
	wires, err := diff.SerializeBatch(ops)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(wires)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(payload))
	copy(out[4:], payload)
	return out, nil
}

// decodeEntry verifies the checksum and revives the batch.
func decodeEntry(data []byte) ([]diff.Op, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: entry too short", ErrJournalCorrupted)
	}
	stored := binary.BigEndian.Uint32(data[:4])
	payload := data[4:]
	if computed := crc32.ChecksumIEEE(payload); stored != computed {
		return nil, fmt.Errorf("%w: stored=%08x computed=%08x", ErrJournalCorrupted, stored, computed)
	}

	var wires []diff.Wire
	if err := json.Unmarshal(payload, &wires); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJournalCorrupted, err)
	}
	ops, err := diff.DeserializeBatch(wires)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJournalCorrupted, err)
	}
	return ops, nil
}

// =============================================================================
// Operations
// =============================================================================

// Append stores ops as the next entry.
//
// Outputs:
//
//	uint64 - The entry's sequence number.
//	error - ErrEmptyBatch, diff.ErrNilOp, ErrJournalFull, ErrJournalClosed,
//	        or a storage error.
func (j *Journal) Append(ctx context.Context, ops []diff.Op) (uint64, error) {
	if j.closed.Load() {
		return 0, ErrJournalClosed
	}
	if len(ops) == 0 {
		return 0, ErrEmptyBatch
	}
	if err := diff.Validate(ops); err != nil {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "Journal.Append",
		trace.WithAttributes(
			attribute.String("stream", j.cfg.Stream),
			attribute.Int("ops", len(ops)),
		),
	)
	defer span.End()

	if limit := j.cfg.MaxJournalBytes; limit > 0 && j.totalBytes.Load() >= limit {
		span.SetStatus(codes.Error, "journal full")
		return 0, ErrJournalFull
	}

	data, err := encodeEntry(ops)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return 0, fmt.Errorf("encode entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.seq + 1
	if err := j.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(j.entryKey(seq), data)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return 0, fmt.Errorf("write entry: %w", err)
	}
	j.seq = seq
	j.batches.Add(1)
	j.totalBytes.Add(int64(len(data)))

	span.SetAttributes(
		attribute.Int64("seq", int64(seq)),
		attribute.Int("entry_bytes", len(data)),
	)
	j.logger.Debug("batch appended",
		slog.Uint64("seq", seq),
		slog.Int("ops", len(ops)),
		slog.Int("bytes", len(data)),
	)
	return seq, nil
}

// Replay returns every live batch in sequence order.
//
// Description:
//
//	Entries before the base marker are skipped. A missing sequence number
//	fails with ErrJournalSequenceGap and a bad entry with
//	ErrJournalCorrupted, unless SkipCorrupted is set, in which case both
//	are logged and replay continues.
func (j *Journal) Replay(ctx context.Context) ([]Batch, error) {
	if j.closed.Load() {
		return nil, ErrJournalClosed
	}

	ctx, span := tracer.Start(ctx, "Journal.Replay",
		trace.WithAttributes(attribute.String("stream", j.cfg.Stream)),
	)
	defer span.End()

	j.mu.Lock()
	base := j.baseSeq
	j.mu.Unlock()

	var (
		batches   []Batch
		lastSeq   uint64
		corrupted int
	)
	err := j.db.ScanPrefix(ctx, j.entryPrefix(), func(key, value []byte) error {
		seq, ok := j.parseSeq(key)
		if !ok || seq < base {
			return nil
		}

		if lastSeq > 0 && seq != lastSeq+1 {
			if !j.cfg.SkipCorrupted {
				return fmt.Errorf("%w: expected %d, got %d", ErrJournalSequenceGap, lastSeq+1, seq)
			}
			j.logger.Warn("sequence gap detected",
				slog.Uint64("expected", lastSeq+1),
				slog.Uint64("got", seq),
			)
		}
		lastSeq = seq

		ops, err := decodeEntry(value)
		if err != nil {
			corrupted++
			j.corrupted.Add(1)
			if j.cfg.SkipCorrupted {
				j.logger.Warn("skipping corrupted entry",
					slog.Uint64("seq", seq),
					slog.String("error", err.Error()),
				)
				return nil
			}
			return fmt.Errorf("entry %d: %w", seq, err)
		}
		batches = append(batches, Batch{Seq: seq, Ops: ops})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replay failed")
		return nil, fmt.Errorf("replay: %w", err)
	}

	span.SetAttributes(
		attribute.Int("batches", len(batches)),
		attribute.Int("corrupted", corrupted),
		attribute.Int64("base_seq", int64(base)),
	)
	j.logger.Info("replay completed",
		slog.Int("batches", len(batches)),
		slog.Int("corrupted", corrupted),
	)
	return batches, nil
}

// Compact replaces the journal history with reviver, a batch that
// rebuilds the current state on an empty collection.
//
// Description:
//
//	The reviver is written as a new entry together with an updated base
//	marker in one transaction. Older entries are deleted afterwards; if
//	that step is interrupted, replay still starts at the new base.
func (j *Journal) Compact(ctx context.Context, reviver []diff.Op) error {
	if j.closed.Load() {
		return ErrJournalClosed
	}
	if len(reviver) == 0 {
		return ErrEmptyBatch
	}
	if err := diff.Validate(reviver); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "Journal.Compact",
		trace.WithAttributes(
			attribute.String("stream", j.cfg.Stream),
			attribute.Int("reviver_ops", len(reviver)),
		),
	)
	defer span.End()

	data, err := encodeEntry(reviver)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encode reviver: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.seq + 1
	var baseVal [8]byte
	binary.BigEndian.PutUint64(baseVal[:], seq)
	if err := j.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if err := txn.Set(j.entryKey(seq), data); err != nil {
			return err
		}
		return txn.Set(j.baseKey(), baseVal[:])
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write reviver failed")
		return fmt.Errorf("write reviver: %w", err)
	}
	j.seq = seq
	j.baseSeq = seq
	j.batches.Store(1)
	j.totalBytes.Store(int64(len(data)))
	j.lastCompaction.Store(time.Now().UnixNano())

	var stale [][]byte
	if err := j.db.ScanPrefix(ctx, j.entryPrefix(), func(key, _ []byte) error {
		if s, ok := j.parseSeq(key); ok && s < seq {
			stale = append(stale, key)
			return nil
		}
		return badger.ErrStopScan
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("scan stale entries: %w", err)
	}
	if err := j.db.DeleteKeys(ctx, stale); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete stale entries: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("base_seq", int64(seq)),
		attribute.Int("deleted", len(stale)),
	)
	j.logger.Info("journal compacted",
		slog.Uint64("base_seq", seq),
		slog.Int("deleted", len(stale)),
		slog.Int("reviver_ops", len(reviver)),
	)
	return nil
}

// Stats returns a snapshot of journal statistics.
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	seq, base := j.seq, j.baseSeq
	j.mu.Unlock()

	var last time.Time
	if ns := j.lastCompaction.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	var disk int64
	if !j.closed.Load() && !j.db.InMemory() {
		lsm, vlog := j.db.Size()
		disk = lsm + vlog
	}
	return Stats{
		Batches:        j.batches.Load(),
		TotalBytes:     j.totalBytes.Load(),
		BaseSeq:        base,
		LastSeq:        seq,
		Corrupted:      j.corrupted.Load(),
		LastCompaction: last,
		DiskBytes:      disk,
	}
}

// Close syncs and closes the journal. Safe to call more than once.
func (j *Journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.db.Sync(); err != nil {
		j.logger.Warn("journal sync on close failed", slog.String("error", err.Error()))
	}
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close journal store: %w", err)
	}
	j.logger.Info("journal closed", slog.Uint64("last_seq", j.seq))
	return nil
}
