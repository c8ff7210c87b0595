package persistence

import (
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/stretchr/testify/suite"

	"github.com/mariusgr/contactflow/postgres/internal/testutil"
)

type PostgresStoreTestSuite struct {
	suite.Suite
	endpoint string
	store    *PostgresRunStore
	db       *sql.DB
}

func TestPostgresStoreTestSuite(t *testing.T) {
	testsuite := new(PostgresStoreTestSuite)
	testsuite.endpoint = testutil.GetPostgresEndpoint(t)
	initTestPostgresStore(t, testsuite)
	suite.Run(t, testsuite)
}

func (p *PostgresStoreTestSuite) SetupTest() {
	_, err := p.db.Exec("TRUNCATE TABLE runs, run_steps")
	p.NoErrorf(err, "TRUNCATE failed: %v", err)
}

func initTestPostgresStore(t *testing.T, ts *PostgresStoreTestSuite) {
	t.Helper()

	db, err := sql.Open("pgx", ts.endpoint)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	ts.db = db

	store, err := NewPostgresRunStore(db)
	if err != nil {
		t.Fatalf("NewPostgresRunStore failed: %v", err)
	}
	ts.store = store
}
