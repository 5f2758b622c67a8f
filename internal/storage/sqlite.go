package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for the team data tables, the
// interaction log, and the audit trail.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "opsdesk.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for packages that manage their own
// tables (the vector store).
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Team data ---

func (s *Store) InsertEmployee(e Employee) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO employees (id, name, email, role, team, tracker_username)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Email, e.Role, e.Team, e.TrackerUsername)
	if err != nil {
		return fmt.Errorf("inserting employee %d: %w", e.ID, err)
	}
	return nil
}

func (s *Store) ListEmployees() ([]Employee, error) {
	rows, err := s.db.Query(`SELECT id, name, email, role, team, tracker_username FROM employees ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying employees: %w", err)
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.Team, &e.TrackerUsername); err != nil {
			return nil, fmt.Errorf("scanning employee: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) InsertTicket(t Ticket) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO tickets (id, summary, assignee, status, priority)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Summary, t.Assignee, t.Status, t.Priority)
	if err != nil {
		return fmt.Errorf("inserting ticket %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) ListTickets() ([]Ticket, error) {
	rows, err := s.db.Query(`SELECT id, summary, assignee, status, priority FROM tickets ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying tickets: %w", err)
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.Summary, &t.Assignee, &t.Status, &t.Priority); err != nil {
			return nil, fmt.Errorf("scanning ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) InsertDeployment(d Deployment) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO deployments (service, version, status, date, deployed_by)
		VALUES (?, ?, ?, ?, ?)`,
		d.Service, d.Version, d.Status, d.Date, d.DeployedBy)
	if err != nil {
		return 0, fmt.Errorf("inserting deployment %s %s: %w", d.Service, d.Version, err)
	}
	return res.LastInsertId()
}

func (s *Store) ListDeployments() ([]Deployment, error) {
	rows, err := s.db.Query(`SELECT id, service, version, status, date, deployed_by FROM deployments ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying deployments: %w", err)
	}
	defer rows.Close()

	var out []Deployment
	for rows.Next() {
		var d Deployment
		if err := rows.Scan(&d.ID, &d.Service, &d.Version, &d.Status, &d.Date, &d.DeployedBy); err != nil {
			return nil, fmt.Errorf("scanning deployment: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Interaction log ---

// AppendLog inserts a log entry and returns its assigned id. Ids come from
// the AUTOINCREMENT rowid and are never reused, even after deletes.
func (s *Store) AppendLog(e LogEntry) (int64, error) {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO logs (created_at, query, response, sources, query_type, processing_secs, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		createdAt.UTC().Format(time.RFC3339), e.Query, e.Response,
		encodeSources(e.Sources), e.QueryType, e.ProcessingSecs, e.UserID)
	if err != nil {
		return 0, fmt.Errorf("inserting log entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading log entry id: %w", err)
	}
	return id, nil
}

// SetFeedback attaches feedback to an existing log entry, replacing any
// previous feedback on that entry. Returns ErrNotFound for an unknown id.
func (s *Store) SetFeedback(id int64, fb Feedback) error {
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now().UTC()
	}
	blob, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshaling feedback: %w", err)
	}

	res, err := s.db.Exec(`UPDATE logs SET feedback = ? WHERE id = ?`, string(blob), id)
	if err != nil {
		return fmt.Errorf("updating feedback for log %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLog returns a single log entry by id, or ErrNotFound.
func (s *Store) GetLog(id int64) (LogEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, query, response, sources, query_type, processing_secs, user_id, feedback
		FROM logs WHERE id = ?`, id)
	e, err := scanLogEntry(row)
	if err == sql.ErrNoRows {
		return LogEntry{}, ErrNotFound
	}
	if err != nil {
		return LogEntry{}, fmt.Errorf("querying log %d: %w", id, err)
	}
	return e, nil
}

// RecentLogs returns up to limit log entries, most recent first. An empty
// userID returns entries for all users.
func (s *Store) RecentLogs(limit int, userID string) ([]LogEntry, error) {
	query := `
		SELECT id, created_at, query, response, sources, query_type, processing_secs, user_id, feedback
		FROM logs`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recent logs: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountLogs returns the total number of log entries for the user ("" = all).
func (s *Store) CountLogs(userID string) (int, error) {
	var count int
	var err error
	if userID == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM logs`).Scan(&count)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM logs WHERE user_id = ?`, userID).Scan(&count)
	}
	return count, err
}

// CountLogsSince returns the number of log entries created at or after t.
func (s *Store) CountLogsSince(userID string, t time.Time) (int, error) {
	ts := t.UTC().Format(time.RFC3339)
	var count int
	var err error
	if userID == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM logs WHERE created_at >= ?`, ts).Scan(&count)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM logs WHERE user_id = ? AND created_at >= ?`, userID, ts).Scan(&count)
	}
	return count, err
}

// QueryTypeCounts returns the number of log entries per query type.
func (s *Store) QueryTypeCounts(userID string) (map[string]int, error) {
	query := `SELECT query_type, COUNT(*) FROM logs`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY query_type`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying query type counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var qt string
		var n int
		if err := rows.Scan(&qt, &n); err != nil {
			return nil, fmt.Errorf("scanning query type count: %w", err)
		}
		counts[qt] = n
	}
	return counts, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLogEntry(sc scanner) (LogEntry, error) {
	var e LogEntry
	var createdAt, sources string
	var feedback sql.NullString
	if err := sc.Scan(&e.ID, &createdAt, &e.Query, &e.Response, &sources, &e.QueryType, &e.ProcessingSecs, &e.UserID, &feedback); err != nil {
		return LogEntry{}, err
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return LogEntry{}, fmt.Errorf("parsing created_at: %w", err)
	}
	e.CreatedAt = t
	e.Sources = decodeSources(sources)

	if feedback.Valid && feedback.String != "" {
		var fb Feedback
		if err := json.Unmarshal([]byte(feedback.String), &fb); err != nil {
			return LogEntry{}, fmt.Errorf("unmarshaling feedback for log %d: %w", e.ID, err)
		}
		e.Feedback = &fb
	}
	return e, nil
}

// encodeSources flattens a source list to the comma-joined form stored in
// the sources column.
func encodeSources(sources []string) string {
	return strings.Join(sources, ", ")
}

func decodeSources(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- Audit trail ---

func (s *Store) AppendAudit(ev AuditEvent) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO audit_events (id, created_at, action, query, result, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, createdAt.UTC().Format(time.RFC3339), ev.Action, ev.Query, ev.Result, ev.Error, ev.DurationMs)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// RecentAudit returns up to limit audit events, most recent first.
func (s *Store) RecentAudit(limit int) ([]AuditEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, action, query, result, error, duration_ms
		FROM audit_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var createdAt string
		if err := rows.Scan(&ev.ID, &createdAt, &ev.Action, &ev.Query, &ev.Result, &ev.Error, &ev.DurationMs); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		ev.CreatedAt = t
		out = append(out, ev)
	}
	return out, rows.Err()
}
