package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// entityNamespace scopes the name-derived keys of singleton entities.
var entityNamespace = uuid.MustParse("5b0f6d0e-8a43-4c52-9f0a-7e0c2f1d3a61")

// SingletonKey derives the stable key of a one-per-world entity from its
// class name.
func SingletonKey(class string) uuid.UUID {
	return uuid.NewSHA1(entityNamespace, []byte(class))
}

// EntityRow is one saved entity.
type EntityRow struct {
	Key    uuid.UUID
	Class  string
	Stream []byte // property stream as written by Properties.Save
}

type EntityRepo struct {
	db       *DB
	compress bool
}

func NewEntityRepo(db *DB, compress bool) *EntityRepo {
	return &EntityRepo{db: db, compress: compress}
}

// Save upserts one entity.
func (r *EntityRepo) Save(ctx context.Context, row EntityRow) error {
	return r.SaveBatch(ctx, []EntityRow{row})
}

// SaveBatch upserts entities in a single transaction.
func (r *EntityRepo) SaveBatch(ctx context.Context, rows []EntityRow) error {
	if len(rows) == 0 {
		return nil
	}
	blobs := make([][]byte, len(rows))
	for i, row := range rows {
		blob, err := EncodeBlob(row.Stream, r.compress)
		if err != nil {
			return fmt.Errorf("encode %s: %w", row.Key, err)
		}
		blobs[i] = blob
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, row := range rows {
			batch.Queue(
				`INSERT INTO entities (entity_key, class, stream, raw_size)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (entity_key) DO UPDATE
				 SET class = EXCLUDED.class, stream = EXCLUDED.stream,
				     raw_size = EXCLUDED.raw_size, updated_at = NOW()`,
				row.Key, row.Class, blobs[i], len(row.Stream),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save entities: %w", err)
		}
		return nil
	})
}

// Load returns the saved entity, or nil when none exists.
func (r *EntityRepo) Load(ctx context.Context, key uuid.UUID) (*EntityRow, error) {
	var (
		class string
		blob  []byte
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT class, stream FROM entities WHERE entity_key = $1`, key,
	).Scan(&class, &blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", key, err)
	}
	stream, err := DecodeBlob(blob)
	if err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", key, err)
	}
	return &EntityRow{Key: key, Class: class, Stream: stream}, nil
}

// LoadClass returns every saved entity of a class.
func (r *EntityRepo) LoadClass(ctx context.Context, class string) ([]EntityRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT entity_key, stream FROM entities WHERE class = $1 ORDER BY created_at`, class,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s entities: %w", class, err)
	}
	defer rows.Close()

	var out []EntityRow
	for rows.Next() {
		var (
			key  uuid.UUID
			blob []byte
		)
		if err := rows.Scan(&key, &blob); err != nil {
			return nil, err
		}
		stream, err := DecodeBlob(blob)
		if err != nil {
			return nil, fmt.Errorf("decode entity %s: %w", key, err)
		}
		out = append(out, EntityRow{Key: key, Class: class, Stream: stream})
	}
	return out, rows.Err()
}

// Delete removes a saved entity.
func (r *EntityRepo) Delete(ctx context.Context, key uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM entities WHERE entity_key = $1`, key)
	return err
}
