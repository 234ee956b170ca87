// recalc re-runs derivation and rule evaluation for every stored
// calculation, e.g. after a policy or formula change. Terminal approval
// decisions survive untouched; everything else is brought up to date.
package main

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"tripz_dealdesk/internal/adapters/frankfurter"
	"tripz_dealdesk/internal/adapters/observability"
	redisad "tripz_dealdesk/internal/adapters/redis"
	"tripz_dealdesk/internal/app"
	"tripz_dealdesk/internal/domain"
	"tripz_dealdesk/internal/shared"
	mysqlrepo "tripz_dealdesk/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Int("workers", cfg.Workers).
		Msg("recalculator starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	notifier := app.LogNotifier{L: log.Logger}
	rates := app.NewRateService(frankfurter.New(cfg.RatesBase, cfg.RatesRPS), cache, cfg.RatesTTL, notifier)
	svc := app.NewCalculationService(repo, rates, cache, cfg.CacheTTL, app.DefaultPolicy())

	// warm the snapshot once so workers share one coalesced fetch
	snap := rates.Refresh(ctx)
	if snap.IsFallback {
		log.Warn().Msg("live rates unavailable, recalculating against the fallback snapshot")
	}

	ids, err := repo.ListIDs(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list calculations failed")
	}

	notifier.Notify(app.TaskEvent{Task: "recalc", Stage: app.StageStarted, Total: len(ids), At: time.Now().UTC()})

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for _, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			if _, err := svc.Reevaluate(ctx, id); err != nil {
				// a concurrent live edit wins; everything else is noise worth seeing
				if errors.Is(err, domain.ErrStaleVersion) {
					log.Info().Str("id", id).Msg("skipped, changed concurrently")
				} else {
					log.Warn().Str("id", id).Err(err).Msg("reevaluate failed")
				}
				return
			}
			mu.Lock()
			done++
			if done%100 == 0 {
				notifier.Notify(app.TaskEvent{Task: "recalc", Stage: app.StageProgress, Done: done, Total: len(ids), At: time.Now().UTC()})
			}
			mu.Unlock()
		}(id)
	}

	wg.Wait()
	notifier.Notify(app.TaskEvent{Task: "recalc", Stage: app.StageCompleted, Done: done, Total: len(ids), At: time.Now().UTC()})
	log.Info().Int("total", len(ids)).Int("updated", done).Msg("recalculation completed")
}
