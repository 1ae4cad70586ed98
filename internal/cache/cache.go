// Package cache stores encoded modules in a SQL database, keyed by a hash
// of their source.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/Cryptex-github/Terbium/internal/bytecode"
)

// dialect holds what differs between the supported databases.
type dialect struct {
	driver string
	blob   string
	text   string
	upsert string
	param  func(n int) string
}

func question(int) string { return "?" }
func dollar(n int) string { return fmt.Sprintf("$%d", n) }
func atParam(n int) string { return fmt.Sprintf("@p%d", n) }

var dialects = map[string]dialect{
	"sqlite": {
		driver: "sqlite", blob: "BLOB", text: "TEXT", param: question,
		upsert: "INSERT OR REPLACE INTO terbium_modules (cache_key, name, module, created_at) VALUES (?, ?, ?, ?)",
	},
	"sqlite3": {
		driver: "sqlite3", blob: "BLOB", text: "TEXT", param: question,
		upsert: "INSERT OR REPLACE INTO terbium_modules (cache_key, name, module, created_at) VALUES (?, ?, ?, ?)",
	},
	"postgres": {
		driver: "postgres", blob: "BYTEA", text: "VARCHAR(64)", param: dollar,
		upsert: "INSERT INTO terbium_modules (cache_key, name, module, created_at) VALUES ($1, $2, $3, $4) " +
			"ON CONFLICT (cache_key) DO UPDATE SET name = EXCLUDED.name, module = EXCLUDED.module, created_at = EXCLUDED.created_at",
	},
	"mysql": {
		driver: "mysql", blob: "LONGBLOB", text: "VARCHAR(64)", param: question,
		upsert: "REPLACE INTO terbium_modules (cache_key, name, module, created_at) VALUES (?, ?, ?, ?)",
	},
	"sqlserver": {
		driver: "sqlserver", blob: "VARBINARY(MAX)", text: "NVARCHAR(64)", param: atParam,
		upsert: "MERGE terbium_modules AS t USING (SELECT @p1 AS cache_key) AS s ON t.cache_key = s.cache_key " +
			"WHEN MATCHED THEN UPDATE SET name = @p2, module = @p3, created_at = @p4 " +
			"WHEN NOT MATCHED THEN INSERT (cache_key, name, module, created_at) VALUES (@p1, @p2, @p3, @p4);",
	},
}

// Cache is safe for concurrent use.
type Cache struct {
	db      *sql.DB
	dialect dialect

	mu     sync.Mutex
	hits   int
	misses int
}

// Stats counts lookups since Open.
type Stats struct {
	Hits   int
	Misses int
}

// Open connects to the database and creates the modules table if needed.
func Open(ctx context.Context, driver, dsn string) (*Cache, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, errors.Errorf("cache: unsupported database type: %s", driver)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "cache: failed to connect")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "cache: failed to ping database")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	c := &Cache{db: db, dialect: d}
	if err := c.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS terbium_modules ("+
		"cache_key %s PRIMARY KEY, name %s NOT NULL, module %s NOT NULL, created_at BIGINT NOT NULL)",
		c.dialect.text, c.dialect.text, c.dialect.blob)
	if c.dialect.driver == "sqlserver" {
		ddl = "IF OBJECT_ID('terbium_modules', 'U') IS NULL CREATE TABLE terbium_modules (" +
			"cache_key NVARCHAR(64) PRIMARY KEY, name NVARCHAR(256) NOT NULL, module VARBINARY(MAX) NOT NULL, created_at BIGINT NOT NULL)"
	}
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "cache: create table")
	}
	return nil
}

// Key identifies source compiled by the current bytecode format.
func Key(source string) string {
	h := sha256.New()
	var v [2]byte
	binary.LittleEndian.PutUint16(v[:], bytecode.FormatVersion)
	h.Write(v[:])
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the module cached for source. A row that no longer decodes
// is treated as a miss.
func (c *Cache) Get(ctx context.Context, source string) (*bytecode.Module, bool, error) {
	query := "SELECT module FROM terbium_modules WHERE cache_key = " + c.dialect.param(1)
	var data []byte
	err := c.db.QueryRowContext(ctx, query, Key(source)).Scan(&data)
	if err == sql.ErrNoRows {
		c.count(false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "cache: query failed")
	}
	m, err := bytecode.Decode(data)
	if err != nil {
		c.count(false)
		return nil, false, nil
	}
	c.count(true)
	return m, true, nil
}

// Put stores m under the key of source, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, name, source string, m *bytecode.Module) error {
	data, err := bytecode.Encode(m)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, c.dialect.upsert, Key(source), name, data, time.Now().Unix()); err != nil {
		return errors.Wrap(err, "cache: execution failed")
	}
	return nil
}

// Purge deletes every cached module and reports how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	result, err := c.db.ExecContext(ctx, "DELETE FROM terbium_modules")
	if err != nil {
		return 0, errors.Wrap(err, "cache: execution failed")
	}
	return result.RowsAffected()
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}

func (c *Cache) Close() error {
	return c.db.Close()
}
