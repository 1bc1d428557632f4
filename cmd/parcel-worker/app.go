package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/sellerbay/parcelgate/config"
	"github.com/sellerbay/parcelgate/internal/broker/kafka"
	"github.com/sellerbay/parcelgate/internal/broker/messages"
	"github.com/sellerbay/parcelgate/internal/cache"
	"github.com/sellerbay/parcelgate/internal/cache/rediscache"
	"github.com/sellerbay/parcelgate/internal/integrations/epost"
	"github.com/sellerbay/parcelgate/internal/integrations/epost/fake"
	"github.com/sellerbay/parcelgate/internal/integrations/epost/scrape"
	"github.com/sellerbay/parcelgate/internal/notify"
	"github.com/sellerbay/parcelgate/internal/services/booking"
	"github.com/sellerbay/parcelgate/internal/services/cancel"
	"github.com/sellerbay/parcelgate/internal/services/reconciler"
	"github.com/sellerbay/parcelgate/internal/services/shipments"
	"github.com/sellerbay/parcelgate/internal/storage/pgshipment"
)

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

// Delay before the command consumer reconnects after an infra error.
var commandConsumerRetryDelay = 5 * time.Second

type workerFactories struct {
	newStorage     func(cfg *config.Config) (st *pgshipment.Storage, closeFn func(), err error)
	newProducer    func(cfg *config.Config) notify.Producer
	newRateLimiter func(cfg *config.Config) reconciler.RateLimiter
	newCache       func(cfg *config.Config) cache.BytesCache
	newGateway     func(cfg *config.Config) (epost.Gateway, error)
	newPageFetcher func(cfg *config.Config) reconciler.PageFetcher
	newConsumer    func(cfg *config.Config, topic, group string) kafkaConsumer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (*pgshipment.Storage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgshipment.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) notify.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) reconciler.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
		// The real gateway needs the full credential set; the synthetic one
		// is only reachable when credentials are absent AND the config opts
		// in explicitly. Half-filled credentials stay a hard error.
		newGateway: func(cfg *config.Config) (epost.Gateway, error) {
			creds, err := cfg.Epost.Credentials()
			if err == nil {
				return epost.New(cfg.Epost.BaseURL, creds)
			}
			if cfg.Epost.AllowMock {
				slog.Warn("carrier credentials absent, using synthetic gateway", "reason", err)
				return fake.New(), nil
			}
			return nil, err
		},
		newPageFetcher: func(cfg *config.Config) reconciler.PageFetcher {
			return scrape.New(cfg.Epost.TrackingPageURL)
		},
		newConsumer: func(cfg *config.Config, topic, group string) kafkaConsumer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, topic, group)
		},
	}
}

func RunParcelWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	notifTopic := cfg.Kafka.NotificationsTopicName
	if notifTopic == "" {
		notifTopic = "shipment.notifications"
	}
	cmdTopic := cfg.Kafka.CommandsTopicName
	if cmdTopic == "" {
		cmdTopic = "shipment.commands"
	}
	group := cfg.ParcelGate.KafkaConsumerGroup
	if group == "" {
		group = "parcel-worker"
	}

	pollInterval := time.Duration(cfg.ParcelGate.WorkerPollIntervalSeconds) * time.Second
	lease := time.Duration(cfg.ParcelGate.WorkerLeaseSeconds) * time.Second

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	gw, err := f.newGateway(cfg)
	if err != nil {
		return err
	}

	producer := f.newProducer(cfg)
	notifier := notify.NewKafkaNotifier(producer, notifTopic)
	rl := f.newRateLimiter(cfg)
	pages := f.newPageFetcher(cfg)

	p := reconciler.NewPoller(st, pages, gw, notifier, rl, cfg.Epost.CustomerNo).
		WithSettings(pollInterval, cfg.ParcelGate.WorkerBatchSize, cfg.ParcelGate.WorkerConcurrency, lease).
		WithRateLimits(cfg.ParcelGate.WorkerRateLimitScrapePerMinute, cfg.ParcelGate.WorkerRateLimitAPIPerMinute).
		WithPlanner(plannerConfig(cfg))

	bookSvc := booking.New(st, gw, cfg.Epost.CustomerNo, cfg.Epost.TestMode)
	cancelSvc := cancel.New(st, gw, cfg.Epost.CustomerNo, cfg.Epost.TestMode)

	// API readers share the redis snapshot cache; commands that change a
	// shipment have to drop it or readers see the old status for a full TTL.
	reads := shipments.New(st, f.newCache(cfg), 0)

	consumer := f.newConsumer(cfg, cmdTopic, group)
	defer func() { _ = consumer.Close() }()

	go func() {
		slog.Info("command consumer started", "topic", cmdTopic, "group", group)
		handler := commandHandler(bookSvc, cancelSvc, reads.Invalidate)
		for {
			err := consumer.Consume(ctx, handler)
			if ctx.Err() != nil {
				return
			}
			// An infra error left an uncommitted message behind; keep the
			// consumer alive so it replays without a process restart.
			slog.Error("command consumer stopped, restarting", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(commandConsumerRetryDelay):
			}
		}
	}()

	go func() {
		if err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: cfg.ParcelGate.WorkerHTTPAddr,
			poller:   p,
			cfg:      cfg,
		}); err != nil && ctx.Err() == nil {
			slog.Error("worker http server stopped", "error", err)
		}
	}()

	return p.Run(ctx)
}

func plannerConfig(cfg *config.Config) reconciler.PlannerConfig {
	pg := cfg.ParcelGate
	return reconciler.PlannerConfig{
		ActiveMinDelay: time.Duration(pg.WorkerNextCheckActiveMinSeconds) * time.Second,
		ActiveMaxDelay: time.Duration(pg.WorkerNextCheckActiveMaxSeconds) * time.Second,
		BookedDelay:    time.Duration(pg.WorkerNextCheckBookedSeconds) * time.Second,
		Backoff1:       time.Duration(pg.WorkerBackoff1Seconds) * time.Second,
		Backoff2:       time.Duration(pg.WorkerBackoff2Seconds) * time.Second,
		Backoff3:       time.Duration(pg.WorkerBackoff3Seconds) * time.Second,
		Backoff4:       time.Duration(pg.WorkerBackoff4Seconds) * time.Second,
	}
}

// commandHandler dispatches shipment commands from the topic. Validation
// failures and idempotent repeats are logged and committed; only infra
// errors propagate so the message replays.
func commandHandler(bookSvc *booking.Service, cancelSvc *cancel.Service, invalidate func(ctx context.Context, orderID string)) func(key, value []byte) error {
	return func(key, value []byte) error {
		var cmd messages.ShipmentCommand
		if err := json.Unmarshal(value, &cmd); err != nil {
			slog.Error("malformed shipment command, dropping", "key", string(key), "error", err)
			return nil
		}

		ctx, cancelFn := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancelFn()

		switch cmd.Action {
		case "book":
			if cmd.Book == nil {
				slog.Error("book command without payload, dropping", "command_id", cmd.CommandID)
				return nil
			}
			_, err := bookSvc.Book(ctx, bookParams(cmd.Book))
			return commandOutcome(cmd.CommandID, "book", cmd.Book.OrderID, err)
		case "cancel":
			if cmd.Cancel == nil {
				slog.Error("cancel command without payload, dropping", "command_id", cmd.CommandID)
				return nil
			}
			_, err := cancelSvc.Cancel(ctx, cmd.Cancel.OrderID, cmd.Cancel.DeleteAfter)
			if err == nil {
				invalidate(ctx, cmd.Cancel.OrderID)
			}
			return commandOutcome(cmd.CommandID, "cancel", cmd.Cancel.OrderID, err)
		default:
			slog.Error("unknown shipment command action, dropping", "command_id", cmd.CommandID, "action", cmd.Action)
			return nil
		}
	}
}

func commandOutcome(commandID, action, orderID string, err error) error {
	if err == nil {
		slog.Info("shipment command applied", "command_id", commandID, "action", action, "order_id", orderID)
		return nil
	}

	var invalid *epost.InvalidParamsError
	switch {
	case errors.As(err, &invalid),
		errors.Is(err, booking.ErrAlreadyBooked),
		errors.Is(err, cancel.ErrCannotCancel),
		errors.Is(err, pgshipment.ErrNotFound):
		slog.Warn("shipment command rejected", "command_id", commandID, "action", action, "order_id", orderID, "error", err)
		return nil
	}
	return errors.Wrapf(err, "%s command %s", action, commandID)
}

func bookParams(b *messages.BookCommand) booking.Params {
	return booking.Params{
		OrderID: b.OrderID,
		UserID:  b.UserID,

		ReqType: b.ReqType,
		PayType: b.PayType,

		SenderName:       b.SenderName,
		SenderZip:        b.SenderZip,
		SenderAddr:       b.SenderAddr,
		SenderDetailAddr: b.SenderDetailAddr,
		SenderPhone:      b.SenderPhone,

		RecvName:       b.RecvName,
		RecvZip:        b.RecvZip,
		RecvAddr:       b.RecvAddr,
		RecvDetailAddr: b.RecvDetailAddr,
		RecvPhone:      b.RecvPhone,

		GoodsName:     b.GoodsName,
		Weight:        b.Weight,
		Volume:        b.Volume,
		InsuredAmount: b.InsuredAmount,
	}
}
