package postgres

import "context"

// IClient is the slice of DB the service layer depends on. Services only
// open transactions; all row access goes through typed repositories.
type IClient interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewClient exposes the DB as an IClient for dependency injection.
func NewClient(db *DB) IClient {
	return db
}
