package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stellarlinkco/agent-evals/internal/state"
)

const defaultListLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	upsertRunStmt    *sql.Stmt
	runByKeyStmt     *sql.Stmt
	runByIDStmt      *sql.Stmt
	listRunsStmt     *sql.Stmt
	listRunsByDSStmt *sql.Stmt
}

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	// Foreign keys go through the DSN so the driver enables them on every
	// pooled connection; a PRAGMA exec would only cover the connection that
	// happened to run it.
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS eval_runs (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL UNIQUE,
			dataset_key TEXT NOT NULL,
			scenario_key TEXT NOT NULL,
			status TEXT NOT NULL,
			config_json TEXT NOT NULL,
			transcript_json TEXT,
			state_before_json TEXT,
			state_after_json TEXT,
			issues_json TEXT,
			suggestions_json TEXT,
			metrics_json TEXT,
			error_msg TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_eval_runs_dataset ON eval_runs(dataset_key, created_at)`,
		`CREATE TABLE IF NOT EXISTS test_identities (
			id TEXT PRIMARY KEY,
			onboarding_done INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content_json BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(user_id) REFERENCES test_identities(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS tracked_items (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			plan_id TEXT,
			title TEXT NOT NULL,
			kind TEXT NOT NULL,
			tracking TEXT NOT NULL,
			target_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			is_vital INTEGER NOT NULL DEFAULT 0,
			scheduled_days_json TEXT,
			FOREIGN KEY(user_id) REFERENCES test_identities(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tracked_items_user ON tracked_items(user_id, position)`,
		`CREATE TABLE IF NOT EXISTS action_entries (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			entry_date TEXT NOT NULL,
			status TEXT NOT NULL,
			FOREIGN KEY(item_id) REFERENCES tracked_items(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS state_snapshots (
			user_id TEXT PRIMARY KEY,
			snapshot_json BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY(user_id) REFERENCES test_identities(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			FOREIGN KEY(user_id) REFERENCES test_identities(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_user ON conversation_turns(user_id, seq)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

const runColumns = `id, request_id, dataset_key, scenario_key, status, config_json,
	transcript_json, state_before_json, state_after_json, issues_json,
	suggestions_json, metrics_json, error_msg, created_at, updated_at`

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	ctx := context.Background()
	type stmtSpec struct {
		dst   **sql.Stmt
		query string
	}

	specs := []stmtSpec{
		{&s.upsertRunStmt, `
			INSERT INTO eval_runs (` + runColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(request_id) DO UPDATE SET
				status = excluded.status,
				config_json = excluded.config_json,
				transcript_json = excluded.transcript_json,
				state_before_json = excluded.state_before_json,
				state_after_json = excluded.state_after_json,
				issues_json = excluded.issues_json,
				suggestions_json = excluded.suggestions_json,
				metrics_json = excluded.metrics_json,
				error_msg = excluded.error_msg,
				updated_at = excluded.updated_at
		`},
		{&s.runByKeyStmt, `SELECT ` + runColumns + ` FROM eval_runs WHERE request_id = ?`},
		{&s.runByIDStmt, `SELECT ` + runColumns + ` FROM eval_runs WHERE id = ?`},
		{&s.listRunsStmt, `SELECT ` + runColumns + ` FROM eval_runs ORDER BY created_at DESC LIMIT ?`},
		{&s.listRunsByDSStmt, `SELECT ` + runColumns + ` FROM eval_runs WHERE dataset_key = ? ORDER BY created_at DESC LIMIT ?`},
	}

	for _, spec := range specs {
		stmt, err := s.db.PrepareContext(ctx, spec.query)
		if err != nil {
			return fmt.Errorf("store: prepare statement: %w", err)
		}
		*spec.dst = stmt
	}
	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	for _, stmt := range []*sql.Stmt{
		s.upsertRunStmt, s.runByKeyStmt, s.runByIDStmt, s.listRunsStmt, s.listRunsByDSStmt,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Upsert inserts a run row or, when the deterministic request id already
// exists, updates that row in place.
func (s *SQLiteStore) Upsert(ctx context.Context, run *EvalRun) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if run == nil {
		return errors.New("store: nil run")
	}
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("store: empty run id")
	}
	if strings.TrimSpace(run.Config.RequestID) == "" {
		return errors.New("store: empty request id")
	}

	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	cols, err := marshalRun(run)
	if err != nil {
		return err
	}

	_, err = s.upsertRunStmt.ExecContext(ctx,
		run.ID, run.Config.RequestID, run.DatasetKey, run.ScenarioKey, run.Status,
		cols.config, cols.transcript, cols.before, cols.after, cols.issues,
		cols.suggestions, cols.metrics, run.Error,
		run.CreatedAt.Unix(), run.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: upsert run: %w", err)
	}
	return nil
}

// FindByKey returns the run row with the given deterministic request id.
func (s *SQLiteStore) FindByKey(ctx context.Context, requestID string) (*EvalRun, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	return scanRun(s.runByKeyStmt.QueryRowContext(ctx, strings.TrimSpace(requestID)))
}

// GetRun returns a run row by primary id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*EvalRun, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	return scanRun(s.runByIDStmt.QueryRowContext(ctx, strings.TrimSpace(id)))
}

// ListRuns returns recent run rows, optionally filtered by dataset key.
func (s *SQLiteStore) ListRuns(ctx context.Context, datasetKey string, limit int) ([]*EvalRun, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	var rows *sql.Rows
	var err error
	if strings.TrimSpace(datasetKey) == "" {
		rows, err = s.listRunsStmt.QueryContext(ctx, limit)
	} else {
		rows, err = s.listRunsByDSStmt.QueryContext(ctx, strings.TrimSpace(datasetKey), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*EvalRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type runColumnsJSON struct {
	config      []byte
	transcript  []byte
	before      []byte
	after       []byte
	issues      []byte
	suggestions []byte
	metrics     []byte
}

func marshalRun(run *EvalRun) (*runColumnsJSON, error) {
	out := &runColumnsJSON{}
	var err error
	if out.config, err = json.Marshal(run.Config); err != nil {
		return nil, fmt.Errorf("store: marshal run config: %w", err)
	}
	if out.transcript, err = json.Marshal(run.Transcript); err != nil {
		return nil, fmt.Errorf("store: marshal transcript: %w", err)
	}
	if out.before, err = json.Marshal(run.StateBefore); err != nil {
		return nil, fmt.Errorf("store: marshal state before: %w", err)
	}
	if out.after, err = json.Marshal(run.StateAfter); err != nil {
		return nil, fmt.Errorf("store: marshal state after: %w", err)
	}
	if out.issues, err = json.Marshal(run.Issues); err != nil {
		return nil, fmt.Errorf("store: marshal issues: %w", err)
	}
	if out.suggestions, err = json.Marshal(run.Suggestions); err != nil {
		return nil, fmt.Errorf("store: marshal suggestions: %w", err)
	}
	if out.metrics, err = json.Marshal(run.Metrics); err != nil {
		return nil, fmt.Errorf("store: marshal metrics: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*EvalRun, error) {
	var run EvalRun
	var cfg, transcript, before, after, issues, suggestions, metrics sql.NullString
	var errMsg sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&run.ID, &run.Config.RequestID, &run.DatasetKey, &run.ScenarioKey, &run.Status,
		&cfg, &transcript, &before, &after, &issues, &suggestions, &metrics,
		&errMsg, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan run: %w", err)
	}

	if cfg.Valid {
		if err := json.Unmarshal([]byte(cfg.String), &run.Config); err != nil {
			return nil, fmt.Errorf("store: unmarshal run config: %w", err)
		}
	}
	if transcript.Valid && transcript.String != "null" {
		if err := json.Unmarshal([]byte(transcript.String), &run.Transcript); err != nil {
			return nil, fmt.Errorf("store: unmarshal transcript: %w", err)
		}
	}
	if before.Valid && before.String != "null" {
		run.StateBefore = &state.Snapshot{}
		if err := json.Unmarshal([]byte(before.String), run.StateBefore); err != nil {
			return nil, fmt.Errorf("store: unmarshal state before: %w", err)
		}
	}
	if after.Valid && after.String != "null" {
		run.StateAfter = &state.Snapshot{}
		if err := json.Unmarshal([]byte(after.String), run.StateAfter); err != nil {
			return nil, fmt.Errorf("store: unmarshal state after: %w", err)
		}
	}
	if issues.Valid && issues.String != "null" {
		if err := json.Unmarshal([]byte(issues.String), &run.Issues); err != nil {
			return nil, fmt.Errorf("store: unmarshal issues: %w", err)
		}
	}
	if suggestions.Valid && suggestions.String != "null" {
		if err := json.Unmarshal([]byte(suggestions.String), &run.Suggestions); err != nil {
			return nil, fmt.Errorf("store: unmarshal suggestions: %w", err)
		}
	}
	if metrics.Valid && metrics.String != "null" {
		if err := json.Unmarshal([]byte(metrics.String), &run.Metrics); err != nil {
			return nil, fmt.Errorf("store: unmarshal metrics: %w", err)
		}
	}
	run.Error = errMsg.String
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	run.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &run, nil
}

// CreateIdentity inserts a new ephemeral test identity.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, ident *Identity) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if ident == nil || strings.TrimSpace(ident.ID) == "" {
		return errors.New("store: empty identity id")
	}
	if ident.CreatedAt.IsZero() {
		ident.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO test_identities (id, onboarding_done, created_at) VALUES (?, ?, ?)`,
		ident.ID, boolToInt(ident.OnboardingDone), ident.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: create identity: %w", err)
	}
	return nil
}

// GetIdentity returns an identity by id.
func (s *SQLiteStore) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}

	var ident Identity
	var onboarding int
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, onboarding_done, created_at FROM test_identities WHERE id = ?`, id,
	).Scan(&ident.ID, &onboarding, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get identity: %w", err)
	}
	ident.OnboardingDone = onboarding != 0
	ident.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &ident, nil
}

// DeleteIdentity removes an identity and cascades every fixture row it owns.
func (s *SQLiteStore) DeleteIdentity(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM test_identities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete identity: %w", err)
	}
	return nil
}

// MarkOnboardingComplete flags the identity's onboarding/setup as done.
func (s *SQLiteStore) MarkOnboardingComplete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE test_identities SET onboarding_done = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: mark onboarding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertPlan stores the top-level plan record.
func (s *SQLiteStore) InsertPlan(ctx context.Context, plan *PlanRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if plan == nil || strings.TrimSpace(plan.ID) == "" {
		return errors.New("store: empty plan id")
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plans (id, user_id, title, content_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		plan.ID, plan.UserID, plan.Title, []byte(plan.Content), plan.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: insert plan: %w", err)
	}
	return nil
}

// PlanContent returns a plan's content JSON.
func (s *SQLiteStore) PlanContent(ctx context.Context, id string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT content_json FROM plans WHERE id = ?`, id).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: plan content: %w", err)
	}
	return b, nil
}

// InsertTrackedItems stores tracked items in one transaction.
func (s *SQLiteStore) InsertTrackedItems(ctx context.Context, items []state.TrackedItem) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		days, err := json.Marshal(item.ScheduledDays)
		if err != nil {
			return fmt.Errorf("store: marshal scheduled days: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tracked_items (
				id, user_id, plan_id, title, kind, tracking, target_count,
				status, position, is_vital, scheduled_days_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.UserID, item.PlanID, item.Title, item.Kind, item.Tracking,
			item.TargetCount, item.Status, item.Position, boolToInt(item.IsVital), string(days),
		)
		if err != nil {
			return fmt.Errorf("store: insert tracked item %q: %w", item.Title, err)
		}
	}
	return tx.Commit()
}

// ListTrackedItems returns an identity's tracked items in position order.
func (s *SQLiteStore) ListTrackedItems(ctx context.Context, userID string) ([]state.TrackedItem, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, plan_id, title, kind, tracking, target_count,
			status, position, is_vital, scheduled_days_json
		FROM tracked_items WHERE user_id = ? ORDER BY position ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list tracked items: %w", err)
	}
	defer rows.Close()

	var out []state.TrackedItem
	for rows.Next() {
		var item state.TrackedItem
		var planID sql.NullString
		var isVital int
		var days sql.NullString
		err := rows.Scan(&item.ID, &item.UserID, &planID, &item.Title, &item.Kind,
			&item.Tracking, &item.TargetCount, &item.Status, &item.Position, &isVital, &days)
		if err != nil {
			return nil, fmt.Errorf("store: scan tracked item: %w", err)
		}
		item.PlanID = planID.String
		item.IsVital = isVital != 0
		if days.Valid && days.String != "null" {
			if err := json.Unmarshal([]byte(days.String), &item.ScheduledDays); err != nil {
				return nil, fmt.Errorf("store: unmarshal scheduled days: %w", err)
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// InsertActionEntries stores history entries in one transaction.
func (s *SQLiteStore) InsertActionEntries(ctx context.Context, entries []state.ActionEntry) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO action_entries (id, item_id, entry_date, status) VALUES (?, ?, ?, ?)`,
			e.ID, e.ItemID, e.Date, e.Status,
		)
		if err != nil {
			return fmt.Errorf("store: insert action entry: %w", err)
		}
	}
	return tx.Commit()
}

// SaveStateSnapshot replaces the identity's state-machine snapshot.
func (s *SQLiteStore) SaveStateSnapshot(ctx context.Context, userID string, snap *state.Snapshot) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO state_snapshots (user_id, snapshot_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			snapshot_json = excluded.snapshot_json,
			updated_at = excluded.updated_at`,
		userID, b, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

// GetStateSnapshot returns the identity's snapshot, or ErrNotFound.
func (s *SQLiteStore) GetStateSnapshot(ctx context.Context, userID string) (*state.Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}

	var b []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot_json FROM state_snapshots WHERE user_id = ?`, userID,
	).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get snapshot: %w", err)
	}

	var snap state.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("store: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// AppendTurns appends turns to the identity's persisted transcript.
func (s *SQLiteStore) AppendTurns(ctx context.Context, userID string, turns []state.Turn) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range turns {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_turns (user_id, role, content) VALUES (?, ?, ?)`,
			userID, t.Role, t.Content,
		)
		if err != nil {
			return fmt.Errorf("store: append turn: %w", err)
		}
	}
	return tx.Commit()
}

// GetTranscript returns the identity's persisted transcript in order.
func (s *SQLiteStore) GetTranscript(ctx context.Context, userID string) ([]state.Turn, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM conversation_turns WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: get transcript: %w", err)
	}
	defer rows.Close()

	var out []state.Turn
	for rows.Next() {
		var t state.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("store: scan turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
