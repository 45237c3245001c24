package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/logging"
	"github.com/hackgods/clinic-slot-booking/internal/schedule"
)

var specialties = []string{
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

var hourPatterns = []string{
	"09:00-12:00",
	"09:00-12:00,14:00-18:00",
	"10:00-13:00,15:00-17:00",
	"14:00-20:00",
}

var dayPatterns = []string{
	"Mon,Tue,Wed,Thu,Fri",
	"Mon,Wed,Fri",
	"Tue,Thu,Sat",
	"Mon,Tue,Wed,Thu,Fri,Sat",
}

func main() {
	var doctors, patients, days int

	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the clinic database with fake doctors, patients and slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), doctors, patients, days)
		},
	}
	rootCmd.Flags().IntVar(&doctors, "doctors", 50, "number of doctors to create")
	rootCmd.Flags().IntVar(&patients, "patients", 2000, "number of patients to create")
	rootCmd.Flags().IntVar(&days, "days", 14, "days of slots to generate from today")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, doctors, patients, days int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.StorageDriver != config.StoragePostgres {
		return errors.New("seed writes to postgres, set STORAGE_DRIVER=postgres")
	}
	log := logging.New(cfg.Env, cfg.LogLevel, "seed")

	log.Info().Int("doctors", doctors).Int("patients", patients).Int("days", days).Msg("seed starting")

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if _, err := db.NewMigrator(pool, db.Migrations()).Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(ctx, pool, doctors, log)
	if err != nil {
		return fmt.Errorf("seed doctors: %w", err)
	}
	if err := seedPatients(ctx, pool, patients, log); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}

	sched := schedule.NewService(appointment.NewPgRepository(pool), cfg, log, nil)
	if err := seedSlots(ctx, sched, cfg.Location, doctorIDs, days, log); err != nil {
		return fmt.Errorf("seed slots: %w", err)
	}

	log.Info().Msg("seed complete")
	return nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, log zerolog.Logger) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		daysCfg := dayPatterns[gofakeit.Number(0, len(dayPatterns)-1)]
		hoursCfg := hourPatterns[gofakeit.Number(0, len(hourPatterns)-1)]
		duration := []int{15, 20, 30, 45, 60}[gofakeit.Number(0, 4)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, available_days, available_hours, slot_duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, id, gofakeit.Name(), spec, daysCfg, hoursCfg, duration)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, log zerolog.Logger) error {
	log.Info().Int("count", count).Msg("seeding patients")

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
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), strings.ToLower(gofakeit.Email()))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func seedSlots(ctx context.Context, sched *schedule.Service, loc *time.Location, doctorIDs []uuid.UUID, days int, log zerolog.Logger) error {
	if days <= 0 {
		return nil
	}

	from := time.Now().In(loc)
	to := from.AddDate(0, 0, days-1)

	total := 0
	for _, id := range doctorIDs {
		slots, err := sched.GenerateFromAvailability(ctx, schedule.AvailabilityRequest{
			DoctorID: id,
			From:     from.Format("2006-01-02"),
			To:       to.Format("2006-01-02"),
		})
		if err != nil {
			return err
		}
		total += len(slots)
	}

	log.Info().Int("slots", total).Msg("slots generated")
	return nil
}
