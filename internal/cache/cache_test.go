package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"

	"github.com/Cryptex-github/Terbium/internal/bytecode"
)

func sample() *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{bytecode.IntConst(7)}
	m.Code = []bytecode.Instruction{{Op: bytecode.OpConstant}, {Op: bytecode.OpReturn}}
	m.Functions = []bytecode.Function{{Name: "<main>", End: 2, MaxStack: 1}}
	return m
}

func openTemp(t *testing.T, driver string) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(context.Background(), driver, path)
	be.Err(t, err, nil)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t, "sqlite")

	_, ok, err := c.Get(ctx, "7")
	be.Err(t, err, nil)
	be.Equal(t, ok, false)

	m := sample()
	be.Err(t, c.Put(ctx, "seven.tb", "7", m), nil)
	got, ok, err := c.Get(ctx, "7")
	be.Err(t, err, nil)
	be.True(t, ok)
	be.Equal(t, got.ID, m.ID)
	be.Equal(t, got.Code, m.Code)

	// Replacing keeps one row per key.
	be.Err(t, c.Put(ctx, "seven.tb", "7", sample()), nil)
	n, err := c.Purge(ctx)
	be.Err(t, err, nil)
	be.Equal(t, n, int64(1))

	be.Equal(t, c.Stats(), Stats{Hits: 1, Misses: 1})
}

func TestCorruptRowIsMiss(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t, "sqlite")
	_, err := c.db.ExecContext(ctx, c.dialect.upsert, Key("x"), "x.tb", []byte("garbage"), 0)
	be.Err(t, err, nil)
	_, ok, err := c.Get(ctx, "x")
	be.Err(t, err, nil)
	be.Equal(t, ok, false)
}

func TestKey(t *testing.T) {
	be.Equal(t, len(Key("a")), 64)
	be.Equal(t, Key("a"), Key("a"))
	be.True(t, Key("a") != Key("b"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	be.True(t, err != nil)
}

func TestDialectPlaceholders(t *testing.T) {
	be.Equal(t, dialects["postgres"].param(2), "$2")
	be.Equal(t, dialects["sqlserver"].param(1), "@p1")
	be.Equal(t, dialects["mysql"].param(1), "?")
}
