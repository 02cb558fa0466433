package workflows

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/pkg/pagination"
)

// Store is the persistence contract for workflow instances. Update is the
// single legal mutation path: it applies mutate under an exclusive per-id
// lock, so two concurrent writers for the same workflow cannot interleave,
// while unrelated ids proceed in parallel. A mutate error leaves the stored
// instance unchanged.
type Store interface {
	// Create stores a new instance. Returns ErrDuplicate if the id exists.
	Create(ctx context.Context, inst *Instance) error

	// Get returns a copy of the stored instance. Returns ErrNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (*Instance, error)

	// Update applies mutate to the stored instance under an exclusive per-id
	// lock and returns the post-mutation snapshot. Errors from mutate are
	// returned unchanged and leave the instance as it was.
	Update(ctx context.Context, id uuid.UUID, mutate func(*Instance) error) (*Instance, error)

	// ListActive returns a snapshot of all instances with status Active.
	ListActive(ctx context.Context) ([]*Instance, error)

	// ListByDocument returns a page of instances for a document, newest first.
	ListByDocument(
		ctx context.Context,
		documentID uuid.UUID,
		page pagination.PageRequest,
	) (*pagination.PageResult[Instance], error)
}
