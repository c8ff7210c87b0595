package postgres

import (
	"database/sql"

	"github.com/mariusgr/contactflow"
	pqueue "github.com/mariusgr/contactflow/postgres/internal/taskqueue"
)

// NewPostgresQueue returns a durable task queue stored in PostgreSQL.
func NewPostgresQueue(db *sql.DB) (contactflow.Queue, error) {
	return pqueue.NewPostgresQueue(db)
}
