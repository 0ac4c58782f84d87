package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestUUIDOrEmpty(t *testing.T) {
	id := uuid.MustParse("5f0c9a3e-8d1b-4c7a-9e2f-0123456789ab")
	if got := uuidOrEmpty(pgtype.UUID{Bytes: id, Valid: true}); got != "5f0c9a3e-8d1b-4c7a-9e2f-0123456789ab" {
		t.Fatalf("uuidOrEmpty = %q", got)
	}
	if got := uuidOrEmpty(pgtype.UUID{}); got != "" {
		t.Fatalf("uuidOrEmpty(null) = %q", got)
	}
}

func TestTimestamptzPtr(t *testing.T) {
	if timestamptzPtr(pgtype.Timestamptz{}) != nil {
		t.Fatalf("expected nil for null timestamp")
	}
	when := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	got := timestamptzPtr(pgtype.Timestamptz{Time: when, Valid: true})
	if got == nil || !got.Equal(when) {
		t.Fatalf("timestamptzPtr = %v", got)
	}
}
