package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"tripz_dealdesk/internal/adapters/aisuggest"
	"tripz_dealdesk/internal/adapters/frankfurter"
	server "tripz_dealdesk/internal/adapters/http_server"
	"tripz_dealdesk/internal/adapters/observability"
	redisad "tripz_dealdesk/internal/adapters/redis"
	"tripz_dealdesk/internal/app"
	"tripz_dealdesk/internal/domain"
	"tripz_dealdesk/internal/shared"
	mysqlrepo "tripz_dealdesk/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	provider := frankfurter.New(cfg.RatesBase, cfg.RatesRPS)
	rates := app.NewRateService(provider, cache, cfg.RatesTTL, app.LogNotifier{L: log.Logger})
	calc := app.NewCalculationService(repo, rates, cache, cfg.CacheTTL, app.DefaultPolicy())

	var suggester domain.PriceSuggester
	if cfg.OpenAIKey != "" {
		suggester = aisuggest.New(cfg.OpenAIKey, cfg.OpenAIBase, cfg.OpenAIModel, 0.2, log.Logger)
	}

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Calc: calc, Rates: rates, Suggester: suggester})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
