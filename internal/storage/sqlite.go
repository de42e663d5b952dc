package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"alarmd/internal/alarm"
	"alarmd/internal/trigger"
	logx "alarmd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps indexed columns next to the JSON encoded record so the
// schema does not change every time the record grows a field.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Insert(ctx context.Context, r *alarm.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alarms(id, hour, minute, enabled, created_at, updated_at, data)
		 VALUES(?,?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING`,
		r.ID, r.Hour, r.Minute, boolInt(r.Enabled), r.CreatedAt.Format(time.RFC3339Nano), r.UpdatedAt.Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (s *sqliteStore) Save(ctx context.Context, r *alarm.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alarms SET hour = ?, minute = ?, enabled = ?, updated_at = ?, data = ? WHERE id = ?`,
		r.Hour, r.Minute, boolInt(r.Enabled), r.UpdatedAt.Format(time.RFC3339Nano), string(data), r.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*alarm.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM alarms WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r alarm.Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("storage: decode alarm %s: %w", id, err)
	}
	return &r, nil
}

func (s *sqliteStore) List(ctx context.Context) ([]*alarm.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM alarms ORDER BY hour, minute, created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*alarm.Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var r alarm.Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			s.log.Warn("skipping undecodable alarm", logx.String("id", id), logx.Err(err))
			continue
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutPending(ctx context.Context, r trigger.Request) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending(id, fire_at, data) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET fire_at = excluded.fire_at, data = excluded.data`,
		r.ID.String(), r.FireAt.UTC().Format(time.RFC3339Nano), string(data),
	)
	return err
}

func (s *sqliteStore) DeletePending(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending WHERE id = ?`, id.String())
	return err
}

func (s *sqliteStore) ListPending(ctx context.Context) ([]trigger.Request, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM pending ORDER BY fire_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []trigger.Request
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var r trigger.Request
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			s.log.Warn("skipping undecodable pending request", logx.String("id", id), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
