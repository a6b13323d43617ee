// Package journal records shadow sessions and their replayed changes in a
// SQLite database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"shadowfs/internal/shadow"
	"shadowfs/internal/util"
)

// Journal is a session history database. It implements shadow.Observer.
type Journal struct {
	path string
	db   *sql.DB
	bun  *bun.DB
}

var _ shadow.Observer = (*Journal)(nil)

// Open opens the journal at path, creating it and its schema if needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("libsql", BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := execStatements(db, journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	j := &Journal{
		path: path,
		db:   db,
		bun:  bun.NewDB(db, sqlitedialect.New()),
	}
	ctx := context.Background()
	if err := j.setSchemaInfo(ctx, "version", SchemaVersion); err != nil {
		j.Close()
		return nil, fmt.Errorf("failed to write schema info: %w", err)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.bun.Close()
}

// Path returns the database file.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) setSchemaInfo(ctx context.Context, key, value string) error {
	_, err := j.bun.NewInsert().
		Model(&SchemaInfoModel{Key: key, Value: value}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

// SchemaInfo returns a schema_info value, or "" when unset.
func (j *Journal) SchemaInfo(ctx context.Context, key string) (string, error) {
	var info SchemaInfoModel
	err := j.bun.NewSelect().Model(&info).Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return info.Value, err
}

// retry runs fn with the database retry policy.
func (j *Journal) retry(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, fn, util.DatabaseRetryOptions(ctx)...)
}

// BeginSession records a new active session.
func (j *Journal) BeginSession(ctx context.Context, id string, at time.Time) error {
	return j.retry(ctx, func() error {
		_, err := j.bun.NewInsert().
			Model(&SessionModel{ID: id, Status: StatusActive, StartedAt: at.Unix()}).
			Exec(ctx)
		return err
	})
}

// RecordChange records one replay step of a session.
func (j *Journal) RecordChange(ctx context.Context, id, filesystem string, change shadow.Change, changeErr error, at time.Time) error {
	m := &ChangeModel{
		SessionID:  id,
		Filesystem: filesystem,
		Path:       change.Path,
		Op:         string(change.Op),
		AppliedAt:  at.Unix(),
	}
	if changeErr != nil {
		m.Error = changeErr.Error()
	}
	return j.retry(ctx, func() error {
		// RETURNING keeps the generated id; libsql does not support LastInsertId.
		_, err := j.bun.NewInsert().Model(m).Returning("id").Exec(ctx)
		return err
	})
}

// EndSession marks a session committed, aborted or failed.
func (j *Journal) EndSession(ctx context.Context, id string, completed bool, endErr error, at time.Time) error {
	status := StatusAborted
	if completed {
		status = StatusCommitted
	}
	var failures int64
	var msg string
	if endErr != nil {
		status = StatusFailed
		msg = endErr.Error()
		var applyErr *shadow.ApplyError
		if errors.As(endErr, &applyErr) {
			failures = int64(len(applyErr.Failures))
		}
	}
	return j.retry(ctx, func() error {
		q := j.bun.NewUpdate().
			Model((*SessionModel)(nil)).
			Set("status = ?", status).
			Set("ended_at = ?", at.Unix()).
			Set("failures = ?", failures).
			Where("id = ?", id)
		if msg != "" {
			q = q.Set("error = ?", msg)
		}
		_, err := q.Exec(ctx)
		return err
	})
}

// MarkInterrupted marks still-active sessions among ids as interrupted and
// returns how many were updated.
func (j *Journal) MarkInterrupted(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := j.bun.NewUpdate().
		Model((*SessionModel)(nil)).
		Set("status = ?", StatusInterrupted).
		Set("ended_at = ?", time.Now().Unix()).
		Where("id IN (?)", bun.In(ids)).
		Where("status = ?", StatusActive).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Sessions returns the most recent sessions, newest first. limit <= 0
// returns all.
func (j *Journal) Sessions(ctx context.Context, limit int) ([]SessionModel, error) {
	return util.RetryWithResult(ctx, func() ([]SessionModel, error) {
		var sessions []SessionModel
		q := j.bun.NewSelect().Model(&sessions).Order("started_at DESC", "id DESC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		if err := q.Scan(ctx); err != nil {
			return nil, err
		}
		return sessions, nil
	}, util.DatabaseRetryOptions(ctx)...)
}

// Session returns one session.
func (j *Journal) Session(ctx context.Context, id string) (*SessionModel, error) {
	var s SessionModel
	err := j.bun.NewSelect().Model(&s).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Changes returns the recorded changes of a session in replay order.
func (j *Journal) Changes(ctx context.Context, id string) ([]ChangeModel, error) {
	var changes []ChangeModel
	err := j.bun.NewSelect().
		Model(&changes).
		Where("session_id = ?", id).
		Order("id ASC").
		Scan(ctx)
	return changes, err
}

// Observer methods. Errors cannot be returned to the manager and are logged.

func (j *Journal) SessionStarted(id string) {
	if err := j.BeginSession(context.Background(), id, time.Now()); err != nil {
		log.WithError(err).Warnf("[Journal] failed to record session %s", id)
	}
}

func (j *Journal) ChangeApplied(id, filesystem string, change shadow.Change, err error) {
	if rerr := j.RecordChange(context.Background(), id, filesystem, change, err, time.Now()); rerr != nil {
		log.WithError(rerr).Warnf("[Journal] failed to record %s %s:%s", change.Op, filesystem, change.Path)
	}
}

func (j *Journal) SessionEnded(id string, completed bool, err error) {
	if rerr := j.EndSession(context.Background(), id, completed, err, time.Now()); rerr != nil {
		log.WithError(rerr).Warnf("[Journal] failed to end session %s", id)
	}
}
