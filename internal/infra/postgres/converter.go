package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// UUIDToPgtype converts uuid.UUID to pgtype.UUID
func UUIDToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// PgtypeToUUID converts pgtype.UUID to uuid.UUID
func PgtypeToUUID(id pgtype.UUID) uuid.UUID {
	return id.Bytes
}

// UUIDPtrToPgtype converts *uuid.UUID to pgtype.UUID
func UUIDPtrToPgtype(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

// TimePtrToPgtimestamptz converts *time.Time to pgtype.Timestamptz
func TimePtrToPgtimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// PgtimestamptzToTimePtr converts pgtype.Timestamptz to *time.Time
func PgtimestamptzToTimePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// NonNilStrings は nil スライスを空スライスに変換します（text[] NOT NULL 用）
func NonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NonNilMetadata は nil のメタデータを空マップに変換します（jsonb NOT NULL 用）
func NonNilMetadata(m ingestion.Metadata) ingestion.Metadata {
	if m == nil {
		return ingestion.Metadata{}
	}
	return m
}
