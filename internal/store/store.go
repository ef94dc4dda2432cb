// Package store archives finished patterns and field states to SQLite.
// The engine only ever writes to it; nothing in the core reads it back.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/pattern"
	"github.com/abelbrown/collective/internal/signal"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for file-based DBs.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		strength REAL NOT NULL,
		impact REAL NOT NULL,
		participants TEXT NOT NULL,
		members INTEGER NOT NULL,
		start_at DATETIME NOT NULL,
		end_at DATETIME NOT NULL,
		detected_at DATETIME NOT NULL,
		signature TEXT NOT NULL,
		archetypes TEXT,
		sources TEXT,
		progression TEXT,
		support TEXT,
		timing TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_patterns_detected ON patterns(detected_at DESC);
	CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(type);

	CREATE TABLE IF NOT EXISTS field_states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at DATETIME NOT NULL,
		total_participants INTEGER NOT NULL,
		active_count INTEGER NOT NULL,
		balance TEXT NOT NULL,
		awareness REAL NOT NULL,
		coherence REAL NOT NULL,
		complexity REAL NOT NULL,
		healing REAL NOT NULL,
		growth REAL NOT NULL,
		breakthrough REAL NOT NULL,
		integration_need REAL NOT NULL,
		recomputes INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_field_states_recorded ON field_states(recorded_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// ArchivePatterns stores patterns, returning the count of new rows.
// Re-archiving an id is silently ignored via INSERT OR IGNORE.
func (s *Store) ArchivePatterns(ctx context.Context, ps []pattern.Pattern) (int, error) {
	if len(ps) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO patterns (
			id, type, strength, impact, participants, members,
			start_at, end_at, detected_at, signature, archetypes, sources,
			progression, support, timing
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	newCount := 0
	for _, p := range ps {
		result, err := stmt.ExecContext(ctx,
			p.ID,
			string(p.Type),
			p.Strength,
			p.Impact,
			encode(p.ParticipantIDs),
			p.Members,
			p.Timeframe.Start.UTC(),
			p.Timeframe.End.UTC(),
			p.DetectedAt.UTC(),
			encode(p.Signature),
			encode(p.Archetypes),
			encode(p.Sources),
			p.ProgressionNote,
			encode(p.SupportNeeds),
			p.TimingNote,
		)
		if err != nil {
			return 0, fmt.Errorf("insert pattern %s: %w", p.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			newCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newCount, nil
}

// ArchiveFieldState appends one field state row.
func (s *Store) ArchiveFieldState(ctx context.Context, st field.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO field_states (
			recorded_at, total_participants, active_count, balance, awareness,
			coherence, complexity, healing, growth, breakthrough,
			integration_need, recomputes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		st.Timestamp.UTC(),
		st.TotalParticipants,
		st.ActiveCount,
		encode(st.ElementalBalance),
		st.AverageAwareness,
		st.Coherence,
		st.Complexity,
		st.HealingCapacity,
		st.GrowthRate,
		st.BreakthroughPotential,
		st.IntegrationNeed,
		int64(st.Recomputes),
	)
	if err != nil {
		return fmt.Errorf("insert field state: %w", err)
	}
	return nil
}

// RecentPatterns returns up to limit patterns, newest detection first.
func (s *Store) RecentPatterns(ctx context.Context, limit int) ([]pattern.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, strength, impact, participants, members,
			start_at, end_at, detected_at, signature, archetypes, sources,
			progression, support, timing
		FROM patterns
		ORDER BY detected_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pattern.Pattern
	for rows.Next() {
		var (
			p                                    pattern.Pattern
			typ, people, sig                     string
			arch, sources, progress, sup, timing sql.NullString
		)
		err := rows.Scan(
			&p.ID, &typ, &p.Strength, &p.Impact, &people, &p.Members,
			&p.Timeframe.Start, &p.Timeframe.End, &p.DetectedAt,
			&sig, &arch, &sources, &progress, &sup, &timing,
		)
		if err != nil {
			return nil, err
		}
		p.Type = pattern.Type(typ)
		p.ProgressionNote = progress.String
		p.TimingNote = timing.String
		if err := decode(people, &p.ParticipantIDs); err != nil {
			return nil, fmt.Errorf("pattern %s participants: %w", p.ID, err)
		}
		if err := decode(sig, &p.Signature); err != nil {
			return nil, fmt.Errorf("pattern %s signature: %w", p.ID, err)
		}
		if err := decode(arch.String, &p.Archetypes); err != nil {
			return nil, fmt.Errorf("pattern %s archetypes: %w", p.ID, err)
		}
		if err := decode(sources.String, &p.Sources); err != nil {
			return nil, fmt.Errorf("pattern %s sources: %w", p.ID, err)
		}
		if err := decode(sup.String, &p.SupportNeeds); err != nil {
			return nil, fmt.Errorf("pattern %s support: %w", p.ID, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PatternTypeCounts returns how many archived patterns exist per type.
func (s *Store) PatternTypeCounts(ctx context.Context) (map[pattern.Type]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM patterns GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[pattern.Type]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[pattern.Type(typ)] = n
	}
	return counts, rows.Err()
}

// FieldStates returns archived field states recorded at or after since,
// newest first, up to limit.
func (s *Store) FieldStates(ctx context.Context, since time.Time, limit int) ([]field.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT recorded_at, total_participants, active_count, balance, awareness,
			coherence, complexity, healing, growth, breakthrough,
			integration_need, recomputes
		FROM field_states
		WHERE recorded_at >= ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []field.State
	for rows.Next() {
		var (
			st         field.State
			balance    string
			recomputes int64
		)
		err := rows.Scan(
			&st.Timestamp, &st.TotalParticipants, &st.ActiveCount, &balance,
			&st.AverageAwareness, &st.Coherence, &st.Complexity,
			&st.HealingCapacity, &st.GrowthRate, &st.BreakthroughPotential,
			&st.IntegrationNeed, &recomputes,
		)
		if err != nil {
			return nil, err
		}
		var sig signal.Signature
		if err := decode(balance, &sig); err != nil {
			return nil, fmt.Errorf("field state balance: %w", err)
		}
		st.ElementalBalance = sig
		st.Recomputes = uint64(recomputes)
		st.LastRecompute = st.Timestamp
		out = append(out, st)
	}
	return out, rows.Err()
}

// encode renders v as a JSON column value. Nil slices and maps become "".
func encode(v any) string {
	switch x := v.(type) {
	case []string:
		if x == nil {
			return ""
		}
	case map[string]float64:
		if x == nil {
			return ""
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func decode(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
