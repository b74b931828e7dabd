// Package reportindex records the external index of generated reports.
// The original flat-file index is replaced with a real RDBMS here,
// since that's the idiomatic Go-ecosystem choice for a durable index —
// grounded on jackc/pgx/v4/pgxpool usage in utils/conn.go.
package reportindex

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Record mirrors db/reports.py's insert_report column order: ticker,
// interval, report path, generation timestamp, and the six key-data
// scalars the index exposes for later querying without re-opening the
// report image.
type Record struct {
	Ticker       string
	Interval     string
	ReportPath   string
	GeneratedAt  time.Time
	LatestClose  float64
	BBUpper      float64
	BBMiddle     float64
	BBLower      float64
	StochRSIK    float64
	StochRSID    float64
}

// Index is the report-index contract the orchestrator writes to after
// composing a report.
type Index interface {
	Insert(ctx context.Context, rec Record) error
	Recent(ctx context.Context, ticker string, limit int) ([]Record, error)
}

// PostgresIndex is the default Index implementation.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex connects to databaseURL and ensures the reports
// table exists.
func NewPostgresIndex(ctx context.Context, databaseURL string) (*PostgresIndex, error) {
	pool, err := pgxpool.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to report index database: %w", err)
	}
	idx := &PostgresIndex{pool: pool}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *PostgresIndex) ensureSchema(ctx context.Context) error {
	_, err := idx.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reports (
			id SERIAL PRIMARY KEY,
			ticker TEXT NOT NULL,
			interval TEXT NOT NULL,
			report_path TEXT NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL,
			latest_close DOUBLE PRECISION,
			bb_upper DOUBLE PRECISION,
			bb_middle DOUBLE PRECISION,
			bb_lower DOUBLE PRECISION,
			stoch_rsi_k DOUBLE PRECISION,
			stoch_rsi_d DOUBLE PRECISION
		)
	`)
	return err
}

func (idx *PostgresIndex) Insert(ctx context.Context, rec Record) error {
	_, err := idx.pool.Exec(ctx, `
		INSERT INTO reports (ticker, interval, report_path, generated_at,
			latest_close, bb_upper, bb_middle, bb_lower, stoch_rsi_k, stoch_rsi_d)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.Ticker, rec.Interval, rec.ReportPath, rec.GeneratedAt,
		rec.LatestClose, rec.BBUpper, rec.BBMiddle, rec.BBLower, rec.StochRSIK, rec.StochRSID)
	return err
}

func (idx *PostgresIndex) Recent(ctx context.Context, ticker string, limit int) ([]Record, error) {
	rows, err := idx.pool.Query(ctx, `
		SELECT ticker, interval, report_path, generated_at,
			latest_close, bb_upper, bb_middle, bb_lower, stoch_rsi_k, stoch_rsi_d
		FROM reports
		WHERE ticker = $1
		ORDER BY generated_at DESC
		LIMIT $2
	`, ticker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Ticker, &rec.Interval, &rec.ReportPath, &rec.GeneratedAt,
			&rec.LatestClose, &rec.BBUpper, &rec.BBMiddle, &rec.BBLower, &rec.StochRSIK, &rec.StochRSID); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (idx *PostgresIndex) Close() {
	idx.pool.Close()
}
