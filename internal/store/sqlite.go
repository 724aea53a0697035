package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/foundersync/internal/domain"
	"github.com/ashureev/foundersync/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var _ Repository = (*SQLiteStore)(nil)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
	now   func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Pragmas apply to every pooled connection. Immediate transactions take
	// the write lock at BEGIN so busy_timeout covers read-then-write updates.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS simulations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		startup_name TEXT NOT NULL,
		description TEXT NOT NULL,
		industry TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_simulations_user ON simulations(user_id, created_at);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
		agent_name TEXT NOT NULL,
		user_message TEXT NOT NULL,
		agent_response TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_sim ON conversations(simulation_id, created_at);

	CREATE TABLE IF NOT EXISTS agent_outputs (
		simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
		agent_name TEXT NOT NULL,
		output TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL,
		last_updated INTEGER NOT NULL,
		PRIMARY KEY (simulation_id, agent_name)
	);

	CREATE TABLE IF NOT EXISTS change_logs (
		id TEXT PRIMARY KEY,
		simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
		agent_name TEXT NOT NULL,
		field TEXT NOT NULL,
		old_value TEXT NOT NULL,
		new_value TEXT NOT NULL,
		modified_by TEXT NOT NULL,
		type TEXT NOT NULL,
		modified_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_change_logs_sim ON change_logs(simulation_id, modified_at);

	CREATE TABLE IF NOT EXISTS documentation (
		id TEXT PRIMARY KEY,
		simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL,
		generated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documentation_sim ON documentation(simulation_id, generated_at);

	CREATE TABLE IF NOT EXISTS chat_interactions (
		id TEXT PRIMARY KEY,
		simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
		agent_name TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT user_id, email, last_seen_at, created_at FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&user.UserID, &user.Email, &lastSeen, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.UnixMilli(lastSeen)
	user.CreatedAt = time.UnixMilli(createdAt)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	now := s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.LastSeenAt.IsZero() {
		user.LastSeenAt = now
	}

	query := `
	INSERT INTO users (user_id, email, last_seen_at, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		email = CASE WHEN excluded.email != '' THEN excluded.email ELSE users.email END,
		last_seen_at = excluded.last_seen_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Email, user.LastSeenAt.UnixMilli(), user.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET last_seen_at = ? WHERE user_id = ?`,
		lastSeen.UnixMilli(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// CreateSimulation stores a new simulation.
func (s *SQLiteStore) CreateSimulation(ctx context.Context, sim *domain.Simulation) error {
	if sim.ID == "" {
		sim.ID = uuid.NewString()
	}
	if sim.CreatedAt.IsZero() {
		sim.CreatedAt = s.now()
	}
	sim.UpdatedAt = sim.CreatedAt
	if sim.Version == 0 {
		sim.Version = 1
	}

	query := `
	INSERT INTO simulations (id, user_id, startup_name, description, industry, version, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sim.ID, sim.UserID, sim.StartupName, sim.Description, sim.Industry,
		sim.Version, sim.CreatedAt.UnixMilli(), sim.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert simulation: %w", err)
	}
	return nil
}

const simulationColumns = `id, user_id, startup_name, description, industry, version, created_at, updated_at`

// GetSimulation retrieves a simulation by ID.
func (s *SQLiteStore) GetSimulation(ctx context.Context, id string) (*domain.Simulation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+simulationColumns+` FROM simulations WHERE id = ?`, id)
	sim, err := scanSimulation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("simulation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return sim, nil
}

// ListSimulations returns the user's simulations, newest first.
func (s *SQLiteStore) ListSimulations(ctx context.Context, userID string) ([]*domain.Simulation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+simulationColumns+` FROM simulations WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query simulations: %w", err)
	}
	defer closeRows(rows, "simulations")

	var sims []*domain.Simulation
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, err
		}
		sims = append(sims, sim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate simulations: %w", err)
	}
	return sims, nil
}

// SaveConversation appends one exchange to a simulation.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.now()
	}

	reply, err := json.Marshal(conv.AgentResponse)
	if err != nil {
		return fmt.Errorf("marshal agent response: %w", err)
	}

	query := `
	INSERT INTO conversations (id, simulation_id, agent_name, user_message, agent_response, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	err = shared.RetryOnConflict(ctx, "save_conversation", s.retry, func() error {
		_, err := s.db.ExecContext(ctx, query,
			conv.ID, conv.SimulationID, conv.AgentName, conv.UserMessage, string(reply), conv.CreatedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

const conversationColumns = `id, simulation_id, agent_name, user_message, agent_response, created_at`

// ListConversations returns one agent's conversations in chronological order.
func (s *SQLiteStore) ListConversations(ctx context.Context, simulationID, agentName string) ([]*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE simulation_id = ? AND agent_name = ?
		ORDER BY created_at ASC, rowid ASC`
	return s.queryConversations(ctx, query, simulationID, agentName)
}

// RecentConversations returns the latest limit conversations, oldest first.
func (s *SQLiteStore) RecentConversations(ctx context.Context, simulationID string, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `SELECT ` + conversationColumns + ` FROM (
			SELECT ` + conversationColumns + `, rowid AS seq FROM conversations
			WHERE simulation_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC`
	return s.queryConversations(ctx, query, simulationID, limit)
}

func (s *SQLiteStore) queryConversations(ctx context.Context, query string, args ...any) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer closeRows(rows, "conversations")

	var convs []*domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		var reply string
		var createdAt int64
		if err := rows.Scan(&conv.ID, &conv.SimulationID, &conv.AgentName,
			&conv.UserMessage, &reply, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		if err := json.Unmarshal([]byte(reply), &conv.AgentResponse); err != nil {
			return nil, fmt.Errorf("decode agent response %s: %w", conv.ID, err)
		}
		conv.CreatedAt = time.UnixMilli(createdAt)
		convs = append(convs, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

// ListAgentOutputs returns the current output of every agent of a simulation.
func (s *SQLiteStore) ListAgentOutputs(ctx context.Context, simulationID string) ([]*domain.AgentOutput, error) {
	query := `
		SELECT simulation_id, agent_name, output, context, version, last_updated
		FROM agent_outputs WHERE simulation_id = ? ORDER BY agent_name`

	rows, err := s.db.QueryContext(ctx, query, simulationID)
	if err != nil {
		return nil, fmt.Errorf("query agent outputs: %w", err)
	}
	defer closeRows(rows, "agent outputs")

	var outputs []*domain.AgentOutput
	for rows.Next() {
		var out domain.AgentOutput
		var updated int64
		if err := rows.Scan(&out.SimulationID, &out.AgentName, &out.Output,
			&out.Context, &out.Version, &updated); err != nil {
			return nil, fmt.Errorf("scan agent output row: %w", err)
		}
		out.LastUpdated = time.UnixMilli(updated)
		outputs = append(outputs, &out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent outputs: %w", err)
	}
	return outputs, nil
}

// outputContext is stored in agent_outputs.context.
type outputContext struct {
	Field        string `json:"field"`
	ManualUpdate bool   `json:"manual_update"`
}

// UpdateAgentOutput writes the new output and its change log atomically,
// retrying on SQLite lock contention.
func (s *SQLiteStore) UpdateAgentOutput(ctx context.Context, u domain.AgentOutputUpdate) (*domain.AgentOutput, *domain.ChangeLog, error) {
	if u.Type == "" {
		u.Type = domain.ChangeManual
	}
	if !u.Type.Valid() {
		return nil, nil, fmt.Errorf("invalid change type %q", u.Type)
	}

	var out *domain.AgentOutput
	var change *domain.ChangeLog
	err := shared.RetryOnConflict(ctx, "update_agent_output", s.retry, func() error {
		var err error
		out, change, err = s.updateAgentOutputOnce(ctx, u)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return out, change, nil
}

func (s *SQLiteStore) updateAgentOutputOnce(ctx context.Context, u domain.AgentOutputUpdate) (*domain.AgentOutput, *domain.ChangeLog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back agent output update", "error", rbErr)
		}
	}()

	var oldValue string
	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT output, version FROM agent_outputs WHERE simulation_id = ? AND agent_name = ?`,
		u.SimulationID, u.AgentName,
	).Scan(&oldValue, &version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("read agent output: %w", err)
	}

	if u.ExpectedVersion != 0 && u.ExpectedVersion != version {
		return nil, nil, fmt.Errorf("agent output %s/%s at version %d, expected %d: %w",
			u.SimulationID, u.AgentName, version, u.ExpectedVersion, ErrVersionConflict)
	}

	ctxJSON, err := json.Marshal(outputContext{Field: u.Field, ManualUpdate: u.Type == domain.ChangeManual})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal output context: %w", err)
	}

	now := s.now()
	out := &domain.AgentOutput{
		SimulationID: u.SimulationID,
		AgentName:    u.AgentName,
		Output:       u.Value,
		Context:      string(ctxJSON),
		Version:      version + 1,
		LastUpdated:  now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agent_outputs (simulation_id, agent_name, output, context, version, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(simulation_id, agent_name) DO UPDATE SET
			output = excluded.output,
			context = excluded.context,
			version = excluded.version,
			last_updated = excluded.last_updated`,
		out.SimulationID, out.AgentName, out.Output, out.Context, out.Version, now.UnixMilli(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert agent output: %w", err)
	}

	change := &domain.ChangeLog{
		ID:           uuid.NewString(),
		SimulationID: u.SimulationID,
		AgentName:    u.AgentName,
		Field:        u.Field,
		OldValue:     oldValue,
		NewValue:     u.Value,
		ModifiedBy:   u.ModifiedBy,
		Type:         u.Type,
		ModifiedAt:   now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO change_logs (id, simulation_id, agent_name, field, old_value, new_value, modified_by, type, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ID, change.SimulationID, change.AgentName, change.Field,
		change.OldValue, change.NewValue, change.ModifiedBy, string(change.Type), now.UnixMilli(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert change log: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE simulations SET updated_at = ? WHERE id = ?`, now.UnixMilli(), u.SimulationID); err != nil {
		return nil, nil, fmt.Errorf("touch simulation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit agent output update: %w", err)
	}
	return out, change, nil
}

// ListChangeLogs returns change logs, newest first.
func (s *SQLiteStore) ListChangeLogs(ctx context.Context, simulationID, agentName string) ([]*domain.ChangeLog, error) {
	query := `
		SELECT id, simulation_id, agent_name, field, old_value, new_value, modified_by, type, modified_at
		FROM change_logs WHERE simulation_id = ?`
	args := []any{simulationID}
	if agentName != "" {
		query += ` AND agent_name = ?`
		args = append(args, agentName)
	}
	query += ` ORDER BY modified_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query change logs: %w", err)
	}
	defer closeRows(rows, "change logs")

	var logs []*domain.ChangeLog
	for rows.Next() {
		var cl domain.ChangeLog
		var typ string
		var modified int64
		if err := rows.Scan(&cl.ID, &cl.SimulationID, &cl.AgentName, &cl.Field,
			&cl.OldValue, &cl.NewValue, &cl.ModifiedBy, &typ, &modified); err != nil {
			return nil, fmt.Errorf("scan change log row: %w", err)
		}
		cl.Type = domain.ChangeType(typ)
		cl.ModifiedAt = time.UnixMilli(modified)
		logs = append(logs, &cl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change logs: %w", err)
	}
	return logs, nil
}

// SaveDocumentation stores a generated document.
func (s *SQLiteStore) SaveDocumentation(ctx context.Context, doc *domain.Documentation) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = s.now()
	}

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal documentation metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documentation (id, simulation_id, content, metadata, generated_at)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.SimulationID, doc.Content, string(meta), doc.GeneratedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert documentation: %w", err)
	}
	return nil
}

// ListDocumentation returns a simulation's documents, newest first.
func (s *SQLiteStore) ListDocumentation(ctx context.Context, simulationID string) ([]*domain.Documentation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, simulation_id, content, metadata, generated_at
		FROM documentation WHERE simulation_id = ?
		ORDER BY generated_at DESC, rowid DESC`, simulationID)
	if err != nil {
		return nil, fmt.Errorf("query documentation: %w", err)
	}
	defer closeRows(rows, "documentation")

	var docs []*domain.Documentation
	for rows.Next() {
		var doc domain.Documentation
		var meta string
		var generated int64
		if err := rows.Scan(&doc.ID, &doc.SimulationID, &doc.Content, &meta, &generated); err != nil {
			return nil, fmt.Errorf("scan documentation row: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode documentation metadata %s: %w", doc.ID, err)
		}
		doc.GeneratedAt = time.UnixMilli(generated)
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documentation: %w", err)
	}
	return docs, nil
}

// SaveChatInteraction stores a free-form question and answer.
func (s *SQLiteStore) SaveChatInteraction(ctx context.Context, chat *domain.ChatInteraction) error {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_interactions (id, simulation_id, agent_name, question, answer, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.SimulationID, chat.AgentName, chat.Question, chat.Answer, chat.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert chat interaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSimulation(row rowScanner) (*domain.Simulation, error) {
	var sim domain.Simulation
	var createdAt, updatedAt int64
	err := row.Scan(&sim.ID, &sim.UserID, &sim.StartupName, &sim.Description,
		&sim.Industry, &sim.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan simulation row: %w", err)
	}
	sim.CreatedAt = time.UnixMilli(createdAt)
	sim.UpdatedAt = time.UnixMilli(updatedAt)
	return &sim, nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "table", what, "error", err)
	}
}
