package audit

import (
	"context"
	"fmt"

	"github.com/noah-isme/backoffice-toko/internal/db"
)

// Repository stores audit entries in Postgres.
type Repository struct {
	pool db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(pool db.DBTX) *Repository {
	return &Repository{pool: pool}
}

// Insert appends an entry.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO audit_log (actor, action, resource_type, resource_id, method, path, status, ip, request_id, metadata)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10)`,
		e.Actor, e.Action, e.ResourceType, e.ResourceID, e.Method, e.Path, e.Status, e.IP, e.RequestID, metadata)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// List returns the newest entries first.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, actor, action, resource_type, coalesce(resource_id, ''), method, path, status,
       coalesce(ip, ''), coalesce(request_id, ''), metadata, created_at
FROM audit_log
WHERE ($1 = '' OR resource_type = $1) AND ($2 = '' OR resource_id = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, params.ResourceType, params.ResourceID, params.Limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.ResourceType, &e.ResourceID, &e.Method, &e.Path,
			&e.Status, &e.IP, &e.RequestID, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.Metadata = metadata
		out = append(out, e)
	}
	return out, rows.Err()
}
