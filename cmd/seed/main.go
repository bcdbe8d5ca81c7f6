package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/caredesk/provider-scheduling/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS providers (
	id         uuid PRIMARY KEY,
	name       text NOT NULL,
	specialty  text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subjects (
	id         uuid PRIMARY KEY,
	name       text NOT NULL,
	email      text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS availability_windows (
	provider_id uuid NOT NULL REFERENCES providers(id),
	weekday     int NOT NULL,
	start_min   int NOT NULL,
	end_min     int NOT NULL
);
CREATE INDEX IF NOT EXISTS availability_windows_provider_day
	ON availability_windows (provider_id, weekday);

CREATE TABLE IF NOT EXISTS availability_exceptions (
	provider_id uuid NOT NULL REFERENCES providers(id),
	date        date NOT NULL,
	closed      boolean NOT NULL,
	start_min   int NOT NULL DEFAULT 0,
	end_min     int NOT NULL DEFAULT 0,
	PRIMARY KEY (provider_id, date)
);

CREATE TABLE IF NOT EXISTS appointments (
	id            uuid PRIMARY KEY,
	provider_id   uuid NOT NULL REFERENCES providers(id),
	subject_id    uuid NOT NULL REFERENCES subjects(id),
	day           date NOT NULL,
	start_min     int NOT NULL,
	end_min       int NOT NULL,
	status        text NOT NULL,
	type          text NOT NULL DEFAULT '',
	reason        text,
	notes         text,
	cancel_reason text,
	created_at    timestamptz NOT NULL DEFAULT now(),
	updated_at    timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS appointments_provider_day
	ON appointments (provider_id, day);
CREATE INDEX IF NOT EXISTS appointments_subject
	ON appointments (subject_id);

CREATE TABLE IF NOT EXISTS event_logs (
	id             bigserial PRIMARY KEY,
	event_type     text NOT NULL,
	appointment_id uuid,
	payload        jsonb,
	created_at     timestamptz NOT NULL DEFAULT now()
);
`

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := pool.Exec(context.Background(), schema); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}
	logger.Info().Msg("schema applied")

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedProviders(context.Background(), pool, 50, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed providers")
	}
	if err := seedSubjects(context.Background(), pool, 2000, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed subjects")
	}

	logger.Info().Msg("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding providers")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return err
		}

		if err := seedWeeklyWindows(ctx, tx, id); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("providers seeded")
	return nil
}

// seedWeeklyWindows gives each provider a Monday-Friday pattern, most
// days split into a morning and an afternoon block.
func seedWeeklyWindows(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) error {
	for weekday := 1; weekday <= 5; weekday++ {
		blocks := [][2]int{{9 * 60, 12 * 60}}
		if gofakeit.Bool() {
			blocks = append(blocks, [2]int{13 * 60, 17 * 60})
		}
		for _, b := range blocks {
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_windows (provider_id, weekday, start_min, end_min)
				VALUES ($1, $2, $3, $4)
			`, providerID, weekday, b[0], b[1])
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func seedSubjects(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding subjects")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO subjects (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("subjects seeded so far")
	}

	logger.Info().Msg("subjects seeded")
	return nil
}
