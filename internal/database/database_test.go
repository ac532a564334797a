package database

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestGenerateUsernameBase(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Heval Ito", "hevalito"},
		{"Rêşan Dersim", "randersim"},
		{"!!!", "user"},
		{"", "user"},
		{"Averyveryverylongname", "averyveryver"},
	}

	for _, tt := range tests {
		if got := generateUsernameBase(tt.name); got != tt.want {
			t.Errorf("generateUsernameBase(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGenerateUsername(t *testing.T) {
	re := regexp.MustCompile(`^hevalito\d{4}$`)
	for i := 0; i < 20; i++ {
		got := GenerateUsername("Heval Ito")
		assert.Regexp(t, re, got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "idx_quizzes_daily_date"}
	fk := &pq.Error{Code: "23503", Constraint: "questions_quiz_id_fkey"}

	assert.True(t, IsUniqueViolation(dup, ""))
	assert.True(t, IsUniqueViolation(dup, "idx_quizzes_daily_date"))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert quiz: %w", dup), "idx_quizzes_daily_date"))
	assert.False(t, IsUniqueViolation(dup, "users_email_key"))
	assert.False(t, IsUniqueViolation(fk, ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))

	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(dup))
	assert.False(t, IsForeignKeyViolation(nil))
}

func TestMigrationFilesEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	assert.NoError(t, err)

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	assert.True(t, names["000001_init.up.sql"])
	assert.True(t, names["000001_init.down.sql"])
	assert.True(t, names["000002_seed_badges.up.sql"])
}
