package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/crosslist/internal/pipeline"
)

// ErrNotFound marks lookups for records that do not exist.
var ErrNotFound = errors.New("not found")

// ConversionRecord is one persisted conversion outcome. The full pipeline
// result is stored as JSONB; the flat columns exist for querying.
type ConversionRecord struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	JobID        uuid.NullUUID   `db:"job_id" json:"job_id"`
	SourceURL    string          `db:"source_url" json:"source_url"`
	Username     string          `db:"username" json:"username,omitempty"`
	Status       string          `db:"status" json:"status"`
	Step         string          `db:"step" json:"step"`
	Source       string          `db:"source_marketplace" json:"source_marketplace,omitempty"`
	Title        string          `db:"title" json:"title,omitempty"`
	Brand        string          `db:"brand" json:"brand,omitempty"`
	SellPrice    float64         `db:"sell_price" json:"sell_price,omitempty"`
	Profit       float64         `db:"profit" json:"profit,omitempty"`
	ErrorMessage string          `db:"error_message" json:"error_message,omitempty"`
	Result       json.RawMessage `db:"result" json:"result"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// SaveConversion persists a finished pipeline result and returns the
// record id.
func (db *DB) SaveConversion(ctx context.Context, jobID uuid.NullUUID, user string, res *pipeline.ConversionResult) (uuid.UUID, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var source, title, brand string
	var sellPrice, profit float64
	if res.Product != nil {
		source = string(res.Product.Source)
		title = res.Product.Title
		brand = res.Product.Brand
	}
	if res.Draft != nil {
		sellPrice = res.Draft.Price
	}
	if res.Profit != nil {
		profit = res.Profit.Profit
	}

	id := uuid.New()
	query := `
		INSERT INTO conversions
			(id, job_id, source_url, username, status, step, source_marketplace,
			 title, brand, sell_price, profit, error_message, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = db.Exec(ctx, query,
		id, jobID, res.URL, user, string(res.Status), string(res.Step), source,
		title, brand, sellPrice, profit, res.Error, payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert conversion: %w", err)
	}
	return id, nil
}

// GetConversion loads one conversion record by id.
func (db *DB) GetConversion(ctx context.Context, id uuid.UUID) (*ConversionRecord, error) {
	query := `
		SELECT id, job_id, source_url, username, status, step, source_marketplace,
		       title, brand, sell_price, profit, error_message, result, created_at
		FROM conversions WHERE id = $1`

	rec := &ConversionRecord{}
	err := db.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.JobID, &rec.SourceURL, &rec.Username, &rec.Status, &rec.Step,
		&rec.Source, &rec.Title, &rec.Brand, &rec.SellPrice, &rec.Profit,
		&rec.ErrorMessage, &rec.Result, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("conversion %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load conversion: %w", err)
	}
	return rec, nil
}

// ListConversionsByJob returns all records persisted for one bulk job,
// oldest first.
func (db *DB) ListConversionsByJob(ctx context.Context, jobID uuid.UUID) ([]*ConversionRecord, error) {
	query := `
		SELECT id, job_id, source_url, username, status, step, source_marketplace,
		       title, brand, sell_price, profit, error_message, result, created_at
		FROM conversions WHERE job_id = $1 ORDER BY created_at`

	rows, err := db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions: %w", err)
	}
	defer rows.Close()

	var records []*ConversionRecord
	for rows.Next() {
		rec := &ConversionRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.JobID, &rec.SourceURL, &rec.Username, &rec.Status, &rec.Step,
			&rec.Source, &rec.Title, &rec.Brand, &rec.SellPrice, &rec.Profit,
			&rec.ErrorMessage, &rec.Result, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
