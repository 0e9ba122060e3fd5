package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteStorage{
		db:   db,
		path: dbPath,
	}, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Initialize creates the database schema.
func (s *SQLiteStorage) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_instructions (
		agent_id TEXT PRIMARY KEY,
		instructions TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_bindings (
		agent_id TEXT PRIMARY KEY,
		backend TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS debates (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		num_agents INTEGER NOT NULL,
		num_rounds INTEGER NOT NULL,
		status TEXT NOT NULL,
		manager TEXT NOT NULL,
		final_round_mode TEXT NOT NULL DEFAULT 'fixed',
		agents_json TEXT NOT NULL,
		rounds_json TEXT NOT NULL,
		synthesis_json TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_debates_created_at ON debates(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// LoadCustomInstructions returns the saved per-agent instructions.
func (s *SQLiteStorage) LoadCustomInstructions() (map[string]string, error) {
	return s.loadMap("SELECT agent_id, instructions FROM agent_instructions")
}

// SaveCustomInstructions replaces all saved instructions. Blank entries are dropped.
func (s *SQLiteStorage) SaveCustomInstructions(instructions map[string]string) error {
	return s.replaceMap("agent_instructions", "instructions", instructions)
}

// LoadModelBindings returns the saved agent to backend bindings.
func (s *SQLiteStorage) LoadModelBindings() (map[string]string, error) {
	return s.loadMap("SELECT agent_id, backend FROM agent_bindings")
}

// SaveModelBindings replaces all saved bindings. Blank entries are dropped.
func (s *SQLiteStorage) SaveModelBindings(bindings map[string]string) error {
	return s.replaceMap("agent_bindings", "backend", bindings)
}

func (s *SQLiteStorage) loadMap(query string) (map[string]string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// replaceMap swaps the table contents inside one transaction so readers
// never see a partial mapping.
func (s *SQLiteStorage) replaceMap(table, column string, values map[string]string) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec("DELETE FROM " + table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	query := fmt.Sprintf("INSERT INTO %s (agent_id, %s, updated_at) VALUES (?, ?, ?)", table, column)
	now := time.Now()
	for agentID, value := range values {
		value = strings.TrimSpace(value)
		if agentID == "" || value == "" {
			continue
		}
		if _, err = tx.Exec(query, agentID, value, now); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}
	return nil
}

// SaveDebate inserts or replaces an archived debate.
func (s *SQLiteStorage) SaveDebate(session *core.Session) error {
	if session == nil || session.ID == "" {
		return errors.New("cannot archive a session without an id")
	}

	agentsJSON, err := json.Marshal(session.Agents)
	if err != nil {
		return fmt.Errorf("failed to marshal agents: %w", err)
	}

	roundsJSON, err := json.Marshal(session.Rounds)
	if err != nil {
		return fmt.Errorf("failed to marshal rounds: %w", err)
	}

	var synthesisJSON *string
	if session.Synthesis != nil {
		data, err := json.Marshal(session.Synthesis)
		if err != nil {
			return fmt.Errorf("failed to marshal synthesis: %w", err)
		}
		str := string(data)
		synthesisJSON = &str
	}

	query := `
	INSERT INTO debates (id, topic, num_agents, num_rounds, status, manager, final_round_mode, agents_json, rounds_json, synthesis_json, created_at, updated_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		agents_json = excluded.agents_json,
		rounds_json = excluded.rounds_json,
		synthesis_json = excluded.synthesis_json,
		updated_at = excluded.updated_at,
		completed_at = excluded.completed_at
	`

	_, err = s.db.Exec(query,
		session.ID,
		session.Topic,
		session.NumAgents,
		session.NumRounds,
		session.Status,
		session.Manager,
		session.FinalRoundMode,
		string(agentsJSON),
		string(roundsJSON),
		synthesisJSON,
		session.CreatedAt,
		session.UpdatedAt,
		session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save debate: %w", err)
	}

	return nil
}

// GetDebate retrieves an archived debate by ID. It returns nil when not found.
func (s *SQLiteStorage) GetDebate(id string) (*core.Session, error) {
	query := `
	SELECT id, topic, num_agents, num_rounds, status, manager, final_round_mode, agents_json, rounds_json, synthesis_json, created_at, updated_at, completed_at
	FROM debates
	WHERE id = ?
	`

	var session core.Session
	var agentsJSON, roundsJSON string
	var synthesisJSON sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRow(query, id).Scan(
		&session.ID,
		&session.Topic,
		&session.NumAgents,
		&session.NumRounds,
		&session.Status,
		&session.Manager,
		&session.FinalRoundMode,
		&agentsJSON,
		&roundsJSON,
		&synthesisJSON,
		&session.CreatedAt,
		&session.UpdatedAt,
		&completedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get debate: %w", err)
	}

	if err := json.Unmarshal([]byte(agentsJSON), &session.Agents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agents: %w", err)
	}

	if err := json.Unmarshal([]byte(roundsJSON), &session.Rounds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rounds: %w", err)
	}

	if synthesisJSON.Valid {
		var synthesis core.Synthesis
		if err := json.Unmarshal([]byte(synthesisJSON.String), &synthesis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal synthesis: %w", err)
		}
		session.Synthesis = &synthesis
	}

	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	session.CurrentRound = len(session.Rounds)

	return &session, nil
}

// ListDebates returns archived debates, newest first.
func (s *SQLiteStorage) ListDebates(limit, offset int) ([]*core.DebateSummary, error) {
	query := `
	SELECT id, topic, num_agents, num_rounds, status, manager, created_at
	FROM debates
	ORDER BY created_at DESC
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list debates: %w", err)
	}
	defer rows.Close()

	var summaries []*core.DebateSummary
	for rows.Next() {
		var summary core.DebateSummary
		err := rows.Scan(
			&summary.ID,
			&summary.Topic,
			&summary.NumAgents,
			&summary.NumRounds,
			&summary.Status,
			&summary.Manager,
			&summary.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debate summary: %w", err)
		}
		summaries = append(summaries, &summary)
	}

	return summaries, rows.Err()
}

// DeleteDebate deletes an archived debate.
func (s *SQLiteStorage) DeleteDebate(id string) error {
	_, err := s.db.Exec("DELETE FROM debates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete debate: %w", err)
	}
	return nil
}
