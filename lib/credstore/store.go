// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore is the client's single owned record of session
// credentials: at most one bearer token, one cached identity snapshot,
// and one admin-authenticated flag.
//
// Every mutation goes through [Store.Update] or [Store.Clear]. The
// in-memory record and its on-disk mirror are always written as a
// whole: a save replaces every row in one SQLite IMMEDIATE transaction,
// so a reader (including a restarted process) never observes a token
// without the identity saved alongside it, or the reverse.
//
// Clear empties the in-memory record before touching the disk and does
// so even if the disk write fails. A failure to persist a logout must
// never leave the running process believing it is still logged in.
package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/studybuddy/lib/codec"
	"github.com/bureau-foundation/studybuddy/lib/schema"
	"github.com/bureau-foundation/studybuddy/lib/sqlitepool"
)

// Row keys. These names match the browser storage keys the web client
// used, so an exported store is recognizable.
const (
	keyToken = "token"
	keyUser  = "user"
	keyAdmin = "adminAuthenticated"
)

const createTable = `CREATE TABLE IF NOT EXISTS credentials (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// Snapshot is a copy of the credential record. Mutating a Snapshot has
// no effect on the store until it is passed back through Update.
type Snapshot struct {
	Token              string
	User               *schema.Identity
	AdminAuthenticated bool
}

// HasEvidence reports whether any trace of a prior session exists. A
// client with no evidence must not probe identity endpoints.
func (s Snapshot) HasEvidence() bool {
	return s.Token != "" || s.User != nil || s.AdminAuthenticated
}

func (s Snapshot) clone() Snapshot {
	if s.User != nil {
		user := *s.User
		if user.Active != nil {
			active := *user.Active
			user.Active = &active
		}
		s.User = &user
	}
	return s
}

// Config holds the parameters for Open.
type Config struct {
	// Path is the SQLite database file holding the record.
	Path string

	// Logger receives load and persistence warnings. Nil uses
	// slog.Default().
	Logger *slog.Logger
}

// Store holds the credential record. Safe for concurrent use; writers
// are serialized so the disk always reflects the latest in-memory
// record.
type Store struct {
	mu      sync.Mutex
	current Snapshot
	pool    *sqlitepool.Pool
	logger  *slog.Logger
}

// NewMemory returns a store with no persistence. Used by tests and by
// callers that want credentials to die with the process.
func NewMemory() *Store {
	return &Store{logger: slog.Default()}
}

// Open opens (creating if needed) the SQLite-backed store at
// config.Path and loads the persisted record.
func Open(ctx context.Context, config Config) (*Store, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   config.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, createTable, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("credstore: %w", err)
	}

	store := &Store{pool: pool, logger: logger}
	if err := store.load(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database. The in-memory record remains readable.
func (s *Store) Close() error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Token returns the cached bearer token, or "".
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Token
}

// Update applies mutate to a copy of the record and commits the result
// as a whole. The in-memory record changes only after the disk write
// succeeds; on error the store is unchanged.
func (s *Store) Update(ctx context.Context, mutate func(*Snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.clone()
	mutate(&next)
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.current = next
	return nil
}

// Replace overwrites the whole record.
func (s *Store) Replace(ctx context.Context, snapshot Snapshot) error {
	return s.Update(ctx, func(current *Snapshot) { *current = snapshot.clone() })
}

// Clear removes the token, the cached identity, and the admin flag
// together. The in-memory record is cleared unconditionally; a
// returned error only means the disk mirror could not be emptied.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = Snapshot{}
	if err := s.persist(ctx, Snapshot{}); err != nil {
		s.logger.Warn("credential store: clearing persisted credentials failed", "error", err)
		return err
	}
	return nil
}

// persist writes snapshot as the complete on-disk record. Caller holds
// s.mu.
func (s *Store) persist(ctx context.Context, snapshot Snapshot) (err error) {
	if s.pool == nil {
		return nil
	}

	rows := make(map[string][]byte, 3)
	if snapshot.Token != "" {
		rows[keyToken] = []byte(snapshot.Token)
	}
	if snapshot.User != nil {
		encoded, err := codec.Marshal(snapshot.User)
		if err != nil {
			return fmt.Errorf("credstore: encoding user: %w", err)
		}
		rows[keyUser] = encoded
	}
	if snapshot.AdminAuthenticated {
		rows[keyAdmin] = []byte("true")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("credstore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err = sqlitex.Execute(conn, "DELETE FROM credentials", nil); err != nil {
		return fmt.Errorf("credstore: clearing rows: %w", err)
	}
	for key, value := range rows {
		err = sqlitex.Execute(conn, "INSERT INTO credentials (key, value) VALUES (?, ?)", &sqlitex.ExecOptions{
			Args: []any{key, value},
		})
		if err != nil {
			return fmt.Errorf("credstore: writing %s: %w", key, err)
		}
	}
	return nil
}

// load reads the persisted record into memory. An undecodable identity
// row is dropped with a warning; the token and flag still count as
// evidence and will be verified by the session bootstrap.
func (s *Store) load(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("credstore: %w", err)
	}
	defer s.pool.Put(conn)

	var loaded Snapshot
	err = sqlitex.Execute(conn, "SELECT key, value FROM credentials", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			key := stmt.ColumnText(0)
			value := make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, value)

			switch key {
			case keyToken:
				loaded.Token = string(value)
			case keyUser:
				var user schema.Identity
				if err := codec.Unmarshal(value, &user); err != nil {
					s.logger.Warn("credential store: discarding undecodable cached user", "error", err)
					return nil
				}
				loaded.User = &user
			case keyAdmin:
				loaded.AdminAuthenticated = string(value) == "true"
			default:
				s.logger.Debug("credential store: ignoring unknown key", "key", key)
			}
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("credstore: loading: %w", err)
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}
