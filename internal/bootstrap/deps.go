package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/db"
	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
)

// Deps holds the store and lock handles shared by the binaries. Pool and Redis
// are nil when the matching backend is not in use.
type Deps struct {
	Repo   appointment.Repository
	Memory *appointment.MemoryRepository
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Locker redisclient.Locker
}

func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Deps, error) {
	d := &Deps{Locker: redisclient.NopLocker{}}

	switch cfg.StorageDriver {
	case config.StorageMemory:
		d.Memory = appointment.NewMemoryRepository()
		d.Repo = d.Memory
		log.Warn().Msg("using in-memory store, data is lost on exit")
	default:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.Pool = pool
		d.Repo = appointment.NewPgRepository(pool)
		if cfg.DoctorCacheTTL > 0 {
			d.Repo = appointment.NewCachedRepository(d.Repo, cfg.DoctorCacheTTL)
		}
		log.Info().Msg("connected to Postgres")

		if cfg.AutoMigrate {
			n, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				d.Close(log)
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info().Int("applied", n).Msg("migrations complete")
		}
	}

	if cfg.RedisEnabled {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.ClientOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			d.Close(log)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		d.Redis = rdb
		d.Locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, log)
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	}

	return d, nil
}

func (d *Deps) Close(log zerolog.Logger) {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}
