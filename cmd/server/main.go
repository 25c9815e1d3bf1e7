package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"github.com/portfolio/backend/internal/config"
	"github.com/portfolio/backend/internal/db"
	"github.com/portfolio/backend/internal/handler"
	"github.com/portfolio/backend/internal/logging"
	"github.com/portfolio/backend/internal/notify"
	"github.com/portfolio/backend/internal/quota"
	"github.com/portfolio/backend/internal/repository"
	"github.com/portfolio/backend/internal/service"
	"github.com/portfolio/backend/internal/validation"
	"github.com/portfolio/backend/pkg/snowflake"
)

const shutdownTimeout = 10 * time.Second

// stores groups the storage backends selected by configuration.
type stores struct {
	db        repository.DB
	contacts  repository.ContactRepository
	pageViews repository.PageViewRepository
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("INFO")
		logging.Fatal("failed to load configuration", "error", err)
	}
	logging.Setup(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		logging.Fatal("failed to open database", "driver", cfg.Database.Driver, "error", err)
	}
	defer st.close()

	counters, closeCounters, err := openCounterStore(cfg.Quota)
	if err != nil {
		logging.Fatal("failed to open quota store", "store", cfg.Quota.Store, "error", err)
	}
	defer closeCounters()

	notifier, closeNotifier, err := buildNotifier(cfg)
	if err != nil {
		logging.Fatal("failed to configure notifications", "error", err)
	}
	defer closeNotifier()

	tracker := quota.NewTracker(counters, quota.Config{
		Limit:  cfg.Contact.MaxPerWindow,
		Window: cfg.Contact.Window,
	})
	contactService := service.NewContactService(
		tracker,
		validation.New(cfg.Contact.DisposableDomains),
		st.contacts,
		notifier,
		service.ContactServiceConfig{
			PersistTimeout: cfg.Contact.PersistTimeout,
			NotifyTimeout:  cfg.Contact.NotifyTimeout,
		},
	)

	ips := handler.NewClientIPResolver(cfg.Server.TrustedProxyCount)
	h := handler.New(st.db)
	contactHandler := handler.NewContactHandler(contactService, ips)

	var analytics *handler.Analytics
	if cfg.Analytics.Enabled {
		analytics = handler.NewAnalytics(st.pageViews, ips, !cfg.Server.Debug)
	}

	var app http.Handler = newRouter(h, contactHandler, analytics)
	app = handler.APIRateLimit(cfg.Server.APIRateLimit, ips)(app)
	app = ips.Middleware(app)
	app = handler.CORS(cfg.Server.FrontendURL)(app)
	app = handler.SecurityHeaders(cfg.Server.Debug)(app)
	app = handler.RequestLogger(app)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Leaves room for the persist and notify timeouts of a contact submission.
		WriteTimeout: cfg.Contact.PersistTimeout + cfg.Contact.NotifyTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", server.Addr, "database", cfg.Database.Driver, "quota_store", cfg.Quota.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openStores(ctx context.Context, cfg config.DatabaseConfig) (*stores, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if err := snowflake.Init(1); err != nil {
			return nil, err
		}
		database, err := db.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &stores{
			db:        repository.NewSQLPinger(database),
			contacts:  repository.NewSqliteContactRepository(database),
			pageViews: repository.NewSqlitePageViewRepository(database),
			close:     func() { _ = database.Close() },
		}, nil
	default:
		pool, err := repository.NewPool(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return &stores{
			db:        pool,
			contacts:  repository.NewPgContactRepository(pool),
			pageViews: repository.NewPgPageViewRepository(pool),
			close:     pool.Close,
		}, nil
	}
}

func openCounterStore(cfg config.QuotaConfig) (quota.CounterStore, func(), error) {
	if cfg.Store == config.QuotaStoreBadger {
		bdb, err := quota.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		stopGC := runBadgerGC(bdb)
		return quota.NewBadgerStore(bdb), func() {
			stopGC()
			_ = bdb.Close()
		}, nil
	}
	store := quota.NewMemoryStore(5 * time.Minute)
	return store, func() { _ = store.Close() }, nil
}

// runBadgerGC reclaims value-log space left behind by expired windows.
func runBadgerGC(bdb *badger.DB) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				for bdb.RunValueLogGC(0.5) == nil {
				}
			}
		}
	}()
	return func() { close(done) }
}

func buildNotifier(cfg *config.Config) (notify.Notifier, func(), error) {
	breakerCfg := notify.DefaultBreakerConfig()
	var notifiers notify.Multi

	if cfg.Contact.ToEmail == "" {
		slog.Warn("CONTACT_TO_EMAIL not set, submissions will be stored without mail notification")
	} else {
		transport, err := buildMailTransport(cfg.SMTP)
		if err != nil {
			return nil, nil, err
		}
		mail := notify.NewMailNotifier(transport, cfg.Contact.FromEmail, cfg.Contact.ToEmail)
		notifiers = append(notifiers, notify.NewBreaker("mail", mail, breakerCfg))
	}

	closeFn := func() {}
	if len(cfg.Kafka.Brokers) > 0 {
		events, err := notify.NewKafkaEventNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, notify.NewBreaker("kafka", events, breakerCfg))
		closeFn = func() {
			if err := events.Close(); err != nil {
				slog.Warn("failed to close kafka writer", "error", err)
			}
		}
	}

	if len(notifiers) == 0 {
		return nil, closeFn, nil
	}
	return notifiers, closeFn, nil
}

func buildMailTransport(cfg config.SMTPConfig) (notify.Transport, error) {
	if cfg.Host == "" {
		slog.Warn("SMTP_HOST not set, notification mail will only be logged")
		return notify.NewLogTransport(nil), nil
	}
	signer, err := notify.LoadDKIMSigner(notify.DKIMConfig{
		Selector:   cfg.DKIMSelector,
		Domain:     cfg.DKIMDomain,
		KeyPath:    cfg.DKIMKeyPath,
		PrivateKey: cfg.DKIMPrivateKey,
	})
	if err != nil {
		return nil, err
	}
	return notify.NewSMTPTransport(notify.SMTPConfig{
		Host:          cfg.Host,
		Port:          cfg.Port,
		Username:      cfg.Username,
		Password:      cfg.Password,
		StartTLS:      cfg.StartTLS,
		RatePerMinute: cfg.RatePerMinute,
	}, signer), nil
}
