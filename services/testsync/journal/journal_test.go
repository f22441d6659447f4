// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/AleutianAI/testsync/services/testsync/collection"
	"github.com/AleutianAI/testsync/services/testsync/diff"
	"github.com/AleutianAI/testsync/services/testsync/ident"
	"github.com/AleutianAI/testsync/services/testsync/model"
	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memConfig() Config {
	return Config{Stream: "test", InMemory: true}
}

func openJournal(t *testing.T, cfg Config) *Journal {
	t.Helper()
	j, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func addOp(segments ...string) diff.Op {
	id := ident.MustNew(segments...)
	return diff.Add{Item: model.NewInternalItem(model.Item{ID: id, Label: id.LocalID()}, model.Expandable)}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, memConfig().Validate())

	cfg := memConfig()
	cfg.Stream = ""
	assert.Error(t, cfg.Validate())

	cfg = memConfig()
	cfg.Stream = "a:b"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	assert.Error(t, cfg.Validate(), "path required on disk")
}

func TestAppendReplay(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, memConfig())

	first := []diff.Op{diff.AddTag{Tag: model.Tag{ID: "slow"}}, addOp("c")}
	second := []diff.Op{addOp("c", "t"), diff.Remove{ID: ident.MustNew("c", "t")}}

	seq, err := j.Append(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	seq, err = j.Append(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	batches, err := j.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, Batch{Seq: 1, Ops: first}, batches[0])
	assert.Equal(t, Batch{Seq: 2, Ops: second}, batches[1])

	stats := j.Stats()
	assert.Equal(t, int64(2), stats.Batches)
	assert.Equal(t, uint64(2), stats.LastSeq)
	assert.Positive(t, stats.TotalBytes)
	assert.Zero(t, stats.DiskBytes, "in-memory journals report no disk usage")
}

func TestAppendRejects(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, memConfig())

	_, err := j.Append(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = j.Append(ctx, []diff.Op{nil})
	assert.ErrorIs(t, err, diff.ErrNilOp)
}

func TestJournalFull(t *testing.T) {
	ctx := context.Background()
	cfg := memConfig()
	cfg.MaxJournalBytes = 1
	j := openJournal(t, cfg)

	_, err := j.Append(ctx, []diff.Op{addOp("c")})
	require.NoError(t, err)
	_, err = j.Append(ctx, []diff.Op{addOp("d")})
	assert.ErrorIs(t, err, ErrJournalFull)
}

func TestCompactReplacesHistory(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, memConfig())
	coll := collection.New()

	for _, batch := range [][]diff.Op{
		{diff.IncrementPendingRoots{Delta: 1}, addOp("c")},
		{addOp("c", "a"), addOp("c", "b")},
		{diff.Remove{ID: ident.MustNew("c", "a")}},
	} {
		_, err := j.Append(ctx, batch)
		require.NoError(t, err)
		_, err = coll.Apply(ctx, batch)
		require.NoError(t, err)
	}

	require.NoError(t, j.Compact(ctx, coll.ReviverDiff()))

	stats := j.Stats()
	assert.Equal(t, int64(1), stats.Batches)
	assert.Equal(t, uint64(4), stats.BaseSeq)
	assert.False(t, stats.LastCompaction.IsZero())

	batches, err := j.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, uint64(4), batches[0].Seq)

	rebuilt := collection.New()
	_, err = rebuilt.Apply(ctx, batches[0].Ops)
	require.NoError(t, err)
	assert.Equal(t, coll.ReviverDiff(), rebuilt.ReviverDiff())

	seq, err := j.Append(ctx, []diff.Op{addOp("c", "z")})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq)

	assert.ErrorIs(t, j.Compact(ctx, nil), ErrEmptyBatch)
}

func TestReopenRestoresState(t *testing.T) {
	ctx := context.Background()
	cfg := memConfig()
	cfg.InMemory = false
	cfg.Path = t.TempDir()

	j, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, err = j.Append(ctx, []diff.Op{addOp("c")})
	require.NoError(t, err)
	require.NoError(t, j.Compact(ctx, []diff.Op{addOp("c")}))
	_, err = j.Append(ctx, []diff.Op{addOp("c", "t")})
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	j = openJournal(t, cfg)
	stats := j.Stats()
	assert.Equal(t, uint64(3), stats.LastSeq)
	assert.Equal(t, uint64(2), stats.BaseSeq)
	assert.Equal(t, int64(2), stats.Batches)
	assert.GreaterOrEqual(t, stats.DiskBytes, int64(0))

	batches, err := j.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, uint64(2), batches[0].Seq)
}

func TestClosedJournal(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, memConfig())
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = j.Append(ctx, []diff.Op{addOp("c")})
	assert.ErrorIs(t, err, ErrJournalClosed)
	_, err = j.Replay(ctx)
	assert.ErrorIs(t, err, ErrJournalClosed)
	assert.ErrorIs(t, j.Compact(ctx, []diff.Op{addOp("c")}), ErrJournalClosed)
}

// corrupt overwrites the entry at seq with a payload whose CRC does not match.
func corrupt(t *testing.T, j *Journal, seq uint64) {
	t.Helper()
	bad := make([]byte, 8)
	binary.BigEndian.PutUint32(bad[:4], crc32.ChecksumIEEE([]byte("good"))+1)
	copy(bad[4:], "junk")
	require.NoError(t, j.db.WithTxn(context.Background(), func(txn *dgbadger.Txn) error {
		return txn.Set(j.entryKey(seq), bad)
	}))
}

func TestReplayCorruption(t *testing.T) {
	ctx := context.Background()

	t.Run("fails fast", func(t *testing.T) {
		j := openJournal(t, memConfig())
		_, err := j.Append(ctx, []diff.Op{addOp("c")})
		require.NoError(t, err)
		corrupt(t, j, 1)

		_, err = j.Replay(ctx)
		assert.ErrorIs(t, err, ErrJournalCorrupted)
	})

	t.Run("skips when configured", func(t *testing.T) {
		cfg := memConfig()
		cfg.SkipCorrupted = true
		j := openJournal(t, cfg)
		_, err := j.Append(ctx, []diff.Op{addOp("c")})
		require.NoError(t, err)
		_, err = j.Append(ctx, []diff.Op{addOp("d")})
		require.NoError(t, err)
		corrupt(t, j, 1)

		batches, err := j.Replay(ctx)
		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.Equal(t, uint64(2), batches[0].Seq)
		assert.Equal(t, int64(1), j.Stats().Corrupted)
	})
}

func TestReplayDetectsGap(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, memConfig())
	for _, name := range []string{"a", "b", "c"} {
		_, err := j.Append(ctx, []diff.Op{addOp(name)})
		require.NoError(t, err)
	}
	require.NoError(t, j.db.DeleteKeys(ctx, [][]byte{j.entryKey(2)}))

	_, err := j.Replay(ctx)
	assert.ErrorIs(t, err, ErrJournalSequenceGap)
}

func TestEntryEncoding(t *testing.T) {
	ops := []diff.Op{diff.Retire{ID: "x"}}
	data, err := encodeEntry(ops)
	require.NoError(t, err)

	back, err := decodeEntry(data)
	require.NoError(t, err)
	assert.Equal(t, ops, back)

	_, err = decodeEntry(data[:3])
	assert.ErrorIs(t, err, ErrJournalCorrupted)
}
