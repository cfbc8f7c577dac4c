// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package store implements the relational persistence layer on SQLite.
// It owns the schema, the meetup lifecycle bulk transitions, notification
// and receipt persistence, push subscription management, and the
// retention sweeps. Row mutations are reported through an optional change
// hook so the change feed can publish them without the store knowing
// about transports.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ChangeType labels a row mutation for the change hook.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeHook receives one call per committed row mutation on the tables
// that participate in view reconciliation. Row carries the mutated
// entity for INSERT/UPDATE; for DELETE it carries whatever identifying
// fields the store still had at deletion time.
type ChangeHook func(table string, typ ChangeType, row any)

// Store wraps the SQLite handle and exposes typed queries. Safe for
// concurrent use; SQLite serializes writers internally and the busy
// timeout pragma absorbs short lock contention.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	hookMu sync.RWMutex
	hook   ChangeHook
}

// New opens (creating if needed) the SQLite database at path and
// bootstraps the schema. Use ":memory:" for an ephemeral database.
func New(path string, logger zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY churn under the
	// scheduler's bulk updates.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("Database ready")
	return s, nil
}

// SetChangeHook installs the change hook. Pass nil to detach. Intended
// to be called once during wiring, before traffic starts.
func (s *Store) SetChangeHook(hook ChangeHook) {
	s.hookMu.Lock()
	s.hook = hook
	s.hookMu.Unlock()
}

func (s *Store) emit(table string, typ ChangeType, row any) {
	s.hookMu.RLock()
	hook := s.hook
	s.hookMu.RUnlock()
	if hook != nil {
		hook(table, typ, row)
	}
}

// Ping verifies the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// nullTime converts an optional time for storage.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
