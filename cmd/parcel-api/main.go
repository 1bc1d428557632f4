package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sellerbay/parcelgate/config"
	"github.com/sellerbay/parcelgate/internal/cache/rediscache"
	"github.com/sellerbay/parcelgate/internal/integrations/epost"
	"github.com/sellerbay/parcelgate/internal/integrations/epost/fake"
	"github.com/sellerbay/parcelgate/internal/services/booking"
	"github.com/sellerbay/parcelgate/internal/services/cancel"
	"github.com/sellerbay/parcelgate/internal/services/shipments"
	"github.com/sellerbay/parcelgate/internal/storage/pgshipment"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("config parse failed, %v", err))
	}

	httpAddr := cfg.ParcelGate.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	cacheTTL := time.Duration(cfg.ParcelGate.ShipmentCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)
	defer st.Close()

	gw, err := selectGateway(cfg)
	if err != nil {
		panic(err)
	}

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	customerNo := cfg.Epost.CustomerNo

	deps := apiDeps{
		booking:   booking.New(st, gw, customerNo, cfg.Epost.TestMode),
		cancel:    cancel.New(st, gw, customerNo, cfg.Epost.TestMode),
		shipments: shipments.New(st, rc, cacheTTL),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runParcelAPI(ctx, parcelAPIOpts{httpAddr: httpAddr}, deps); err != nil && err != context.Canceled {
		panic(err)
	}
}

// selectGateway prefers the real carrier gateway; the synthetic one is only
// reachable when credentials are absent AND the config opts in explicitly.
func selectGateway(cfg *config.Config) (epost.Gateway, error) {
	creds, err := cfg.Epost.Credentials()
	if err == nil {
		return epost.New(cfg.Epost.BaseURL, creds)
	}
	if cfg.Epost.AllowMock {
		return fake.New(), nil
	}
	return nil, err
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgshipment.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgshipment.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}
