package journal

import (
	"time"

	"github.com/uptrace/bun"
)

// Bun models for the journal tables. Times are Unix timestamps.

// SchemaInfoModel represents the schema_info table
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// SessionModel represents the sessions table
type SessionModel struct {
	bun.BaseModel `bun:"table:sessions"`

	ID        string `bun:"id,pk"`
	Status    string `bun:"status,notnull"`
	StartedAt int64  `bun:"started_at,notnull"`
	EndedAt   int64  `bun:"ended_at,nullzero"` // NULL while active
	Failures  int64  `bun:"failures,notnull"`
	Error     string `bun:"error,nullzero"`
}

// ChangeModel represents the changes table
type ChangeModel struct {
	bun.BaseModel `bun:"table:changes"`

	ID         int64  `bun:"id,pk,autoincrement"`
	SessionID  string `bun:"session_id,notnull"`
	Filesystem string `bun:"filesystem,notnull"`
	Path       string `bun:"path,notnull"`
	Op         string `bun:"op,notnull"`
	Error      string `bun:"error,nullzero"`
	AppliedAt  int64  `bun:"applied_at,notnull"`
}

// Started returns the session start time.
func (m *SessionModel) Started() time.Time {
	return time.Unix(m.StartedAt, 0)
}

// Ended returns the session end time, or the zero time while active.
func (m *SessionModel) Ended() time.Time {
	if m.EndedAt == 0 {
		return time.Time{}
	}
	return time.Unix(m.EndedAt, 0)
}
