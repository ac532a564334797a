// Package testhelpers runs a disposable Postgres for store integration tests.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zazaki-quiz/backend/internal/database"
)

const (
	postgresImage = "postgres:16-alpine"
	dbUser        = "zazaki"
	dbPassword    = "zazaki"
	dbName        = "zazaki_test"
)

// StartPostgres starts a Postgres container, applies the migrations and
// returns a connection. The test is skipped in -short mode or when Docker is
// not reachable. The container is removed through t.Cleanup.
func StartPostgres(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-based test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     dbUser,
			"POSTGRES_PASSWORD": dbPassword,
			"POSTGRES_DB":       dbName,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port.Port(), dbUser, dbPassword, dbName)
	db, err := database.Connect(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t *testing.T, db *sql.DB, email, role string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		`INSERT INTO users (email, name, username, password, role)
		 VALUES ($1, $1, $1, 'x', $2) RETURNING id`, email, role,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return id
}

// CreatePoolQuestions inserts n unassigned questions and returns their ids.
func CreatePoolQuestions(t *testing.T, db *sql.DB, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		var id int64
		err := db.QueryRow(
			`INSERT INTO questions (prompt, options, correct_answer, points, difficulty)
			 VALUES ($1, '["a","b"]', 'a', 10, 'easy') RETURNING id`,
			fmt.Sprintf("Question %d", i+1),
		).Scan(&id)
		if err != nil {
			t.Fatalf("create question: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}
