package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var specialty *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Specialty = specialty
	return &p, nil
}

func (s *PgStore) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (s *PgStore) WindowsFor(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]Window, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider_id, weekday, start_min, end_min
		FROM availability_windows
		WHERE provider_id = $1 AND weekday = $2
		ORDER BY start_min
	`, providerID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Window
	for rows.Next() {
		var w Window
		var wd int
		if err := rows.Scan(&w.ProviderID, &wd, &w.Start, &w.End); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(wd)
		result = append(result, w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) ExceptionFor(ctx context.Context, providerID uuid.UUID, date time.Time) (*Exception, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT provider_id, date, closed, start_min, end_min
		FROM availability_exceptions
		WHERE provider_id = $1 AND date = $2
	`, providerID, Day(date))

	var e Exception
	err := row.Scan(&e.ProviderID, &e.Date, &e.Closed, &e.Start, &e.End)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Date = Day(e.Date)
	return &e, nil
}

// SetWindows replaces the provider's windows for one weekday.
func (s *PgStore) SetWindows(ctx context.Context, providerID uuid.UUID, weekday time.Weekday, windows []Window) error {
	if err := ValidateWindows(windows); err != nil {
		return err
	}
	if _, err := s.GetProviderByID(ctx, providerID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM availability_windows
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, int(weekday))
	if err != nil {
		return fmt.Errorf("clear windows: %w", err)
	}

	for _, w := range windows {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_windows (provider_id, weekday, start_min, end_min)
			VALUES ($1, $2, $3, $4)
		`, providerID, int(weekday), w.Start, w.End)
		if err != nil {
			return fmt.Errorf("insert window: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgStore) SetException(ctx context.Context, exc Exception) error {
	if !exc.Closed && exc.Start >= exc.End {
		return ErrWindowOrder
	}
	if _, err := s.GetProviderByID(ctx, exc.ProviderID); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO availability_exceptions (provider_id, date, closed, start_min, end_min)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_id, date)
		DO UPDATE SET closed = $3, start_min = $4, end_min = $5
	`, exc.ProviderID, Day(exc.Date), exc.Closed, exc.Start, exc.End)
	if err != nil {
		return fmt.Errorf("upsert exception: %w", err)
	}

	return nil
}
