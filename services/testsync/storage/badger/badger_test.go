// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func put(t *testing.T, db *DB, key, value string) {
	t.Helper()
	require.NoError(t, db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	}))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, InMemoryConfig().Validate())
	assert.Error(t, DefaultConfig().Validate(), "path required")

	cfg := DefaultConfig()
	cfg.Path = "/tmp/x"
	cfg.GCDiscardRatio = 1.5
	assert.Error(t, cfg.Validate())
}

func TestOpenPersistentReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = time.Hour

	db, err := Open(cfg)
	require.NoError(t, err)
	put(t, db, "k", "v")
	require.NoError(t, db.Sync())
	require.NoError(t, db.Close())

	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, dir, db.Path())
	assert.False(t, db.InMemory())
	lsm, vlog := db.Size()
	assert.GreaterOrEqual(t, lsm, int64(0))
	assert.GreaterOrEqual(t, vlog, int64(0))
	var got string
	require.NoError(t, db.ScanPrefix(context.Background(), []byte("k"), func(_, v []byte) error {
		got = string(v)
		return nil
	}))
	assert.Equal(t, "v", got)
}

func TestScanPrefix(t *testing.T) {
	db := openMemory(t)
	for i := 3; i >= 1; i-- {
		put(t, db, fmt.Sprintf("a:%02d", i), fmt.Sprint(i))
	}
	put(t, db, "b:01", "other")

	var keys []string
	require.NoError(t, db.ScanPrefix(context.Background(), []byte("a:"), func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	}))
	assert.Equal(t, []string{"a:01", "a:02", "a:03"}, keys)

	keys = nil
	require.NoError(t, db.ScanPrefix(context.Background(), []byte("a:"), func(k, _ []byte) error {
		keys = append(keys, string(k))
		return ErrStopScan
	}))
	assert.Equal(t, []string{"a:01"}, keys)
}

func TestLastKey(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	last, err := db.LastKey(ctx, []byte("a:"))
	require.NoError(t, err)
	assert.Nil(t, last)

	put(t, db, "a:01", "1")
	put(t, db, "a:07", "7")
	put(t, db, "b:99", "x")

	last, err = db.LastKey(ctx, []byte("a:"))
	require.NoError(t, err)
	assert.Equal(t, "a:07", string(last))
}

func TestDeletePrefix(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	put(t, db, "a:1", "1")
	put(t, db, "a:2", "2")
	put(t, db, "b:1", "1")

	n, err := db.DeletePrefix(ctx, []byte("a:"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count := 0
	require.NoError(t, db.ScanPrefix(ctx, nil, func(_, _ []byte) error {
		count++
		return nil
	}))
	assert.Equal(t, 1, count)
}

func TestCancelledContext(t *testing.T) {
	db := openMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, db.WithTxn(ctx, func(*badger.Txn) error { return nil }), context.Canceled)
	assert.ErrorIs(t, db.WithReadTxn(ctx, func(*badger.Txn) error { return nil }), context.Canceled)
}

func TestGCRunnerStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = 10 * time.Millisecond

	db, err := Open(cfg)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	db.gc.stop()
	require.NoError(t, db.Close())
}
