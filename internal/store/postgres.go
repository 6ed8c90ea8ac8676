package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hasanmaki/rekaprgu-3duta/internal/models"
)

// Store wraps pgxpool for read access to the upstream transaksi table.
// The table is owned by the billing system; this service never writes it.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies the connection for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FetchTransactions returns raw rows for the given product codes,
// optionally bounded by an inclusive date range. The end bound covers
// the entire end day (tgl_status < end + 1 day).
func (s *Store) FetchTransactions(ctx context.Context, productCodes []string, start, end *time.Time) ([]models.TransactionRecord, error) {
	if len(productCodes) == 0 {
		return nil, nil
	}

	sql := `
		SELECT kode_produk, tujuan, status, sn, tgl_status
		FROM transaksi
		WHERE kode_produk = ANY($1)
	`
	args := []any{productCodes}
	if start != nil {
		args = append(args, *start)
		sql += fmt.Sprintf(" AND tgl_status >= $%d", len(args))
	}
	if end != nil {
		args = append(args, end.AddDate(0, 0, 1))
		sql += fmt.Sprintf(" AND tgl_status < $%d", len(args))
	}
	sql += " ORDER BY tgl_status"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		var rec models.TransactionRecord
		var serial pgtype.Text
		if err := rows.Scan(&rec.ProductCode, &rec.Destination, &rec.StatusCode, &serial, &rec.StatusTimestamp); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.Serial = textPtr(serial)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}
	return records, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
