package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("create user: %w", &pgconn.PgError{Code: "23505"}), true},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"no rows", sql.ErrNoRows, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestReserveGenerationSlot_GuardsLimitInPredicate(t *testing.T) {
	// The limit check must live in the UPDATE's WHERE clause, not in Go code,
	// or concurrent reservations could both pass.
	where := reserveGenerationSlot[strings.Index(reserveGenerationSlot, "WHERE"):]

	assert.Contains(t, where, "(last_generation_day = $2::date AND generations_today < $3::int)")
	assert.Contains(t, where, "last_generation_day < $2::date")
	assert.Contains(t, where, "$3::int > 0")
	assert.Contains(t, reserveGenerationSlot, "RETURNING")
}

func TestGenerationTransitions_OnlyFromPending(t *testing.T) {
	assert.Contains(t, completeGeneration, "status = 'PENDING'")
	assert.Contains(t, failGeneration, "status = 'PENDING'")
}
