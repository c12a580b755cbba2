package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/logging"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply the schema before seeding")
	doctors := flag.Int("doctors", 50, "number of doctors")
	patients := flag.Int("patients", 5000, "number of patients")
	days := flag.Int("days", 14, "days of slots to create per doctor, starting tomorrow")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Startup(os.Stderr).Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(cfg.Env, cfg.LogLevel, os.Stdout).With().Str("service", "seed").Logger()
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4, ApplicationName: "seed"})
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if *migrate {
		if err := db.Migrate(context.Background(), pool); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		log.Info().Msg("schema applied")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	s := &seeder{pool: pool, faker: faker, log: log}

	doctorIDs, err := s.seedDoctors(context.Background(), *doctors)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := s.seedPatients(context.Background(), doctorIDs, *patients); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := s.seedSlots(context.Background(), doctorIDs, *days); err != nil {
		log.Fatal().Err(err).Msg("seed slots")
	}

	log.Info().Msg("seed complete")
}

type seeder struct {
	pool  *pgxpool.Pool
	faker *gofakeit.Faker
	log   zerolog.Logger
}

func (s *seeder) seedDoctors(ctx context.Context, count int) ([]uuid.UUID, error) {
	s.log.Info().Int("count", count).Msg("seeding doctors")

	ids := make([]uuid.UUID, 0, count)
	err := db.WithTx(ctx, s.pool, db.TxOptions{}, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, full_name, email, max_patients, created_at)
				VALUES ($1, $2, $3, $4, now())
			`, id, "Dr. "+s.faker.Name(), uniqueEmail(s.faker, id), s.faker.Number(50, 300))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Msg("doctors seeded")
	return ids, nil
}

func (s *seeder) seedPatients(ctx context.Context, doctorIDs []uuid.UUID, count int) error {
	s.log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		err := db.WithTx(ctx, s.pool, db.TxOptions{}, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				id := uuid.New()
				doctor := doctorIDs[s.faker.Number(0, len(doctorIDs)-1)]

				_, err := tx.Exec(ctx, `
					INSERT INTO patients (id, full_name, email, doctor_id, created_at)
					VALUES ($1, $2, $3, $4, now())
				`, id, s.faker.Name(), uniqueEmail(s.faker, id), doctor)
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		s.log.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

// seedSlots creates half hour slots from 09:00 to 17:00 on weekdays.
func (s *seeder) seedSlots(ctx context.Context, doctorIDs []uuid.UUID, days int) error {
	s.log.Info().Int("doctors", len(doctorIDs)).Int("days", days).Msg("seeding slots")

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	total := 0

	for _, doctor := range doctorIDs {
		rows := make([][]any, 0, days*16)
		for d := 1; d <= days; d++ {
			date := today.AddDate(0, 0, d)
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			for minute := 9 * 60; minute < 17*60; minute += 30 {
				rows = append(rows, []any{
					uuid.New(),
					doctor,
					date,
					clock(minute),
					clock(minute + 30),
				})
			}
		}

		n, err := s.pool.CopyFrom(ctx,
			pgx.Identifier{"time_slots"},
			[]string{"id", "doctor_id", "schedule_date", "start_time", "end_time"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy slots for doctor %s: %w", doctor, err)
		}
		total += int(n)
	}

	s.log.Info().Int("slots", total).Msg("slots seeded")
	return nil
}

func uniqueEmail(f *gofakeit.Faker, id uuid.UUID) string {
	return fmt.Sprintf("%s.%s@%s", f.Username(), id.String()[:8], f.DomainName())
}

func clock(minutes int) pgtype.Time {
	return pgtype.Time{Microseconds: int64(minutes) * int64(time.Minute/time.Microsecond), Valid: true}
}
