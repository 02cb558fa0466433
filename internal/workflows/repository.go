package workflows

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/pkg/pagination"
	"github.com/JaimeStill/arbiter/pkg/repository"
)

// PgStore is a PostgreSQL-backed Store for deployments that need workflow
// state to survive process restarts. The instance body is stored as JSONB;
// status, document, and timestamps are lifted into columns for querying.
// Update takes a row lock (SELECT ... FOR UPDATE), which gives the same
// per-id serialization the in-memory store provides with entry mutexes.
type PgStore struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// NewPgStore creates a PostgreSQL-backed workflow store.
func NewPgStore(db *sql.DB, logger *slog.Logger, pagination pagination.Config) *PgStore {
	return &PgStore{
		db:         db,
		logger:     logger.With("system", "workflow-store"),
		pagination: pagination,
	}
}

func (s *PgStore) Create(ctx context.Context, inst *Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}

	q := `
		INSERT INTO workflows(id, document_id, template, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.db.ExecContext(
		ctx, q,
		inst.ID,
		inst.DocumentID,
		inst.Template,
		inst.Status,
		data,
		inst.CreatedAt,
		inst.UpdatedAt,
	)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Instance, error) {
	q := "SELECT data FROM workflows WHERE id = $1"

	inst, err := repository.QueryOne(ctx, s.db, q, []any{id}, scanInstance)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return inst, nil
}

func (s *PgStore) Update(
	ctx context.Context,
	id uuid.UUID,
	mutate func(*Instance) error,
) (*Instance, error) {
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) (*Instance, error) {
		var data []byte
		row := tx.QueryRowContext(ctx, "SELECT data FROM workflows WHERE id = $1 FOR UPDATE", id)
		if err := row.Scan(&data); err != nil {
			return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}

		inst := new(Instance)
		if err := json.Unmarshal(data, inst); err != nil {
			return nil, fmt.Errorf("decode workflow %s: %w", id, err)
		}

		if err := mutate(inst); err != nil {
			return nil, err
		}

		encoded, err := json.Marshal(inst)
		if err != nil {
			return nil, fmt.Errorf("encode workflow %s: %w", id, err)
		}

		err = repository.ExecExpectOne(
			ctx, tx,
			"UPDATE workflows SET status = $2, data = $3, updated_at = $4 WHERE id = $1",
			id, inst.Status, encoded, inst.UpdatedAt,
		)
		if err != nil {
			return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}

		return inst, nil
	})
}

func (s *PgStore) ListActive(ctx context.Context) ([]*Instance, error) {
	q := "SELECT data FROM workflows WHERE status = $1 ORDER BY created_at"

	instances, err := repository.QueryMany(ctx, s.db, q, []any{StatusActive}, scanInstance)
	if err != nil {
		return nil, fmt.Errorf("query active workflows: %w", err)
	}
	return instances, nil
}

func (s *PgStore) ListByDocument(
	ctx context.Context,
	documentID uuid.UUID,
	page pagination.PageRequest,
) (*pagination.PageResult[Instance], error) {
	page.Normalize(s.pagination)

	var total int
	countQ := "SELECT COUNT(*) FROM workflows WHERE document_id = $1"
	if err := s.db.QueryRowContext(ctx, countQ, documentID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count workflows: %w", err)
	}

	q := `
		SELECT data FROM workflows
		WHERE document_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	instances, err := repository.QueryMany(
		ctx, s.db, q,
		[]any{documentID, page.PageSize, page.Offset()},
		scanInstance,
	)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}

	data := make([]Instance, 0, len(instances))
	for _, inst := range instances {
		data = append(data, *inst)
	}

	result := pagination.NewPageResult(data, total, page.Page, page.PageSize)
	return &result, nil
}

func scanInstance(s repository.Scanner) (*Instance, error) {
	var data []byte
	if err := s.Scan(&data); err != nil {
		return nil, err
	}

	inst := new(Instance)
	if err := json.Unmarshal(data, inst); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return inst, nil
}
