package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/storage"
)

// Store is a SQLite implementation of InteractionStore
type Store struct {
	db *sql.DB
}

var _ storage.InteractionStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			operation TEXT NOT NULL,
			family TEXT NOT NULL,
			effort TEXT,
			model TEXT,
			request TEXT,
			prompt TEXT,
			completion TEXT,
			parsed TEXT,
			error_type TEXT,
			error_message TEXT,
			status TEXT NOT NULL,
			duration_ns INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_family ON interactions(family)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_operation ON interactions(operation)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) SaveInteraction(ctx context.Context, interaction *domain.Interaction) error {
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now()
	}

	var parsed sql.NullString
	if interaction.Parsed != nil {
		data, err := json.Marshal(interaction.Parsed)
		if err != nil {
			return fmt.Errorf("failed to marshal parsed completion: %w", err)
		}
		parsed = sql.NullString{String: string(data), Valid: true}
	}

	var errType, errMessage sql.NullString
	if interaction.Error != nil {
		errType = sql.NullString{String: interaction.Error.Type, Valid: true}
		errMessage = sql.NullString{String: interaction.Error.Message, Valid: true}
	}

	query := `INSERT INTO interactions (
		id, request_id, operation, family, effort, model, request, prompt,
		completion, parsed, error_type, error_message, status, duration_ns, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		interaction.ID,
		interaction.RequestID,
		string(interaction.Operation),
		interaction.Family,
		string(interaction.Effort),
		interaction.Model,
		string(interaction.Request),
		interaction.Prompt,
		interaction.Completion,
		parsed,
		errType,
		errMessage,
		string(interaction.Status),
		int64(interaction.Duration),
		interaction.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save interaction: %w", err)
	}

	return nil
}

func (s *Store) GetInteraction(ctx context.Context, id string) (*domain.Interaction, error) {
	query := `SELECT id, request_id, operation, family, effort, model, request, prompt,
		completion, parsed, error_type, error_message, status, duration_ns, created_at
		FROM interactions WHERE id = ?`

	var (
		interaction                 domain.Interaction
		requestID, effort, model    sql.NullString
		request, prompt, completion sql.NullString
		parsed, errType, errMessage sql.NullString
		operation, status           string
		durationNS                  sql.NullInt64
		createdAt                   int64
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&interaction.ID, &requestID, &operation, &interaction.Family, &effort, &model,
		&request, &prompt, &completion, &parsed, &errType, &errMessage,
		&status, &durationNS, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interaction: %w", err)
	}

	interaction.RequestID = requestID.String
	interaction.Operation = domain.Operation(operation)
	interaction.Effort = domain.Effort(effort.String)
	interaction.Model = model.String
	if request.String != "" {
		interaction.Request = json.RawMessage(request.String)
	}
	interaction.Prompt = prompt.String
	interaction.Completion = completion.String
	interaction.Status = domain.InteractionStatus(status)
	interaction.Duration = time.Duration(durationNS.Int64)
	interaction.CreatedAt = time.Unix(0, createdAt)

	if parsed.Valid {
		var p domain.ParsedCompletion
		if err := json.Unmarshal([]byte(parsed.String), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parsed completion: %w", err)
		}
		interaction.Parsed = &p
	}
	if errType.Valid {
		interaction.Error = &domain.InteractionError{Type: errType.String, Message: errMessage.String}
	}

	return &interaction, nil
}

func (s *Store) ListInteractions(ctx context.Context, opts domain.InteractionListOptions) ([]*domain.InteractionSummary, error) {
	var (
		where []string
		args  []any
	)
	if opts.Family != "" {
		where = append(where, "family = ?")
		args = append(args, opts.Family)
	}
	if opts.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, string(opts.Operation))
	}

	query := `SELECT id, operation, family, status, duration_ns, created_at FROM interactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"

	limit := opts.Limit
	if limit == 0 {
		limit = 100 // default limit
	}
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	result := []*domain.InteractionSummary{}
	for rows.Next() {
		var (
			summary           domain.InteractionSummary
			operation, status string
			durationNS        sql.NullInt64
			createdAt         int64
		)
		if err := rows.Scan(&summary.ID, &operation, &summary.Family, &status, &durationNS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		summary.Operation = domain.Operation(operation)
		summary.Status = domain.InteractionStatus(status)
		summary.Duration = time.Duration(durationNS.Int64)
		summary.CreatedAt = time.Unix(0, createdAt)
		result = append(result, &summary)
	}

	return result, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
