package postgres

import (
	"database/sql"

	"github.com/mariusgr/contactflow/internal/engine"
	"github.com/mariusgr/contactflow/internal/persistence"
	"github.com/mariusgr/contactflow/pkg/api"

	pstore "github.com/mariusgr/contactflow/postgres/internal/persistence"
)

// NewPostgresEngine returns an Engine that persists runs in PostgreSQL.
func NewPostgresEngine(db *sql.DB) (api.Engine, error) {
	return NewPostgresEngineWithObserver(db, nil)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	runs, err := pstore.NewPostgresRunStore(db)
	if err != nil {
		return nil, err
	}
	memWF := persistence.NewInMemoryStore()

	return engine.NewEngineWithConfig(engine.Config{
		Persistence: persistence.Persistence{
			Workflows: memWF,
			Runs:      runs,
		},
		Observer: obs,
	}), nil
}
