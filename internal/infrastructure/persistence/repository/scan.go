package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func encodeExtraction(x entity.OCRExtraction) (string, error) {
	if len(x) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(x)
	if err != nil {
		return "", fmt.Errorf("failed to encode ocr extraction: %w", err)
	}
	return string(b), nil
}

func decodeExtraction(raw string) (entity.OCRExtraction, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var x entity.OCRExtraction
	if err := json.Unmarshal([]byte(raw), &x); err != nil {
		return nil, fmt.Errorf("failed to decode ocr extraction: %w", err)
	}
	return x, nil
}
