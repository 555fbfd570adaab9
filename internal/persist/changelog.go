package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Change is one replicated property write, journaled for audit and
// crash recovery between autosaves.
type Change struct {
	EntityKey uuid.UUID
	Class     string
	Property  string
	TypeName  string
	Data      []byte
	At        time.Time
}

type ChangeLogRepo struct {
	db *DB
}

func NewChangeLogRepo(db *DB) *ChangeLogRepo {
	return &ChangeLogRepo{db: db}
}

// Write atomically journals a batch of changes in a single transaction.
func (r *ChangeLogRepo) Write(ctx context.Context, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, c := range changes {
			if _, err := tx.Exec(ctx,
				`INSERT INTO property_changes (entity_key, class, property, type_name, data, changed_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				c.EntityKey, c.Class, c.Property, c.TypeName, c.Data, c.At,
			); err != nil {
				return fmt.Errorf("change log insert: %w", err)
			}
		}
		return nil
	})
}

// MarkProcessed marks journaled changes of saved entities as processed
// (called after an autosave flush).
func (r *ChangeLogRepo) MarkProcessed(ctx context.Context, keys []uuid.UUID) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE property_changes SET processed = TRUE
		 WHERE processed = FALSE AND entity_key = ANY($1)`,
		keys,
	)
	return err
}

// Pending returns unprocessed changes of one entity in write order, for
// replay over its last saved stream.
func (r *ChangeLogRepo) Pending(ctx context.Context, key uuid.UUID) ([]Change, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT class, property, type_name, data, changed_at FROM property_changes
		 WHERE entity_key = $1 AND processed = FALSE ORDER BY id`, key,
	)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		c := Change{EntityKey: key}
		if err := rows.Scan(&c.Class, &c.Property, &c.TypeName, &c.Data, &c.At); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
