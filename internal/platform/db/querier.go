package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool and pgx.Tx the repositories use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// SyncSequence moves the id sequence of table past any client-assigned id.
// table must be a trusted identifier.
func SyncSequence(ctx context.Context, q Querier, table string) error {
	_, err := q.Exec(ctx, fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT COALESCE(MAX(id), 0) FROM %[1]s), 1))`, table))
	if err != nil {
		return fmt.Errorf("sync %s sequence: %w", table, err)
	}
	return nil
}

// InsertWithGeneratedID runs insert, which lets the table's sequence pick the
// id, once more when that id was already taken by a client-assigned row
// written before SyncSequence caught the sequence up.
func InsertWithGeneratedID(table string, insert func() error) error {
	err := insert()
	if IsUniqueViolation(err, table+"_pkey") {
		err = insert()
	}
	return err
}
