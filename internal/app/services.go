package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/billdesk/internal/ar"
	"github.com/odyssey-erp/billdesk/internal/assistant"
	"github.com/odyssey-erp/billdesk/internal/customers"
	jobmetrics "github.com/odyssey-erp/billdesk/internal/jobs"
	"github.com/odyssey-erp/billdesk/internal/platform/cache"
	"github.com/odyssey-erp/billdesk/internal/platform/db"
	"github.com/odyssey-erp/billdesk/internal/reminders"
	"github.com/odyssey-erp/billdesk/internal/store"
	"github.com/odyssey-erp/billdesk/internal/store/memory"
	"github.com/odyssey-erp/billdesk/internal/store/postgres"
	"github.com/odyssey-erp/billdesk/report"
)

// BuildOptions carries process-specific collaborators.
type BuildOptions struct {
	// Registerer receives job and reminder metrics; the default registry when nil.
	Registerer prometheus.Registerer
	// Dispatcher delivers recorded reminders; they are only logged when nil.
	Dispatcher reminders.Dispatcher
	// Store overrides STORE_DRIVER.
	Store store.Store
}

// Services is the wired domain shared by the API server and the worker.
type Services struct {
	Config     *Config
	Logger     *slog.Logger
	Store      store.Store
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Invoices   *ar.Engine
	Customers  *customers.Service
	Tracker    *reminders.Tracker
	Scheduler  *reminders.Scheduler
	Renderer   *report.InvoiceRenderer
	Logo       []byte
	JobMetrics *jobmetrics.Metrics

	closers []func()
}

// Build connects the configured backends and assembles the domain services.
// Redis and the message generator are optional; their absence is logged.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger, opts BuildOptions) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	taxRate, err := cfg.TaxRate()
	if err != nil {
		return nil, err
	}

	s := &Services{Config: cfg, Logger: logger}
	if err := s.openStore(ctx, opts.Store); err != nil {
		s.Close()
		return nil, err
	}

	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable; aging reports are not cached", slog.Any("error", err))
	} else {
		s.Redis = client
		s.closers = append(s.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
	}

	s.Customers = customers.NewService(s.Store)
	s.Tracker = reminders.NewTracker(logger)
	engineOpts := []ar.Option{
		ar.WithStoreTimeout(cfg.StoreTimeout),
		ar.WithReminderDates(s.Tracker),
		ar.WithCustomerLookup(s.Customers),
		ar.WithDefaultTaxRate(taxRate),
	}
	if s.Redis != nil {
		engineOpts = append(engineOpts, ar.WithReportCache(cache.NewVersioned(s.Redis, "billdesk:aging", cfg.CacheTTL)))
	}
	s.Invoices = ar.NewEngine(ar.NewRepository(s.Store, loc), logger, engineOpts...)

	var generator reminders.MessageGenerator
	drafter, err := assistant.New(assistant.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Company: cfg.CompanyName,
	})
	switch {
	case errors.Is(err, assistant.ErrNoCredential):
		logger.Info("no OpenAI key configured; reminders use the built-in template")
	case err != nil:
		s.Close()
		return nil, err
	default:
		generator = drafter
	}

	s.JobMetrics = jobmetrics.NewMetrics(opts.Registerer)
	schedulerOpts := []reminders.Option{
		reminders.WithLocation(loc),
		reminders.WithLookahead(cfg.ReminderLookaheadDays),
		reminders.WithMetrics(s.JobMetrics),
	}
	if opts.Dispatcher != nil {
		schedulerOpts = append(schedulerOpts, reminders.WithDispatcher(opts.Dispatcher))
	}
	s.Scheduler = reminders.NewScheduler(s.Invoices, s.Tracker,
		reminders.NewComposer(generator, cfg.CurrencySymbol, logger), logger, schedulerOpts...)

	s.Renderer = report.NewInvoiceRenderer(cfg.CompanyName, cfg.CurrencySymbol)
	if cfg.CompanyLogoPath != "" {
		logo, err := os.ReadFile(cfg.CompanyLogoPath)
		if err != nil {
			logger.Warn("company logo unreadable; rendering without it", slog.Any("error", err))
		} else {
			s.Logo = logo
		}
	}
	return s, nil
}

func (s *Services) openStore(ctx context.Context, override store.Store) error {
	if override != nil {
		s.Store = override
		return nil
	}
	switch s.Config.StoreDriver {
	case StoreDriverMemory:
		s.Logger.Warn("using in-memory store; data is lost on restart")
		s.Store = memory.New()
	case StoreDriverPostgres:
		pool, err := db.New(ctx, s.Config.PGDSN)
		if err != nil {
			return fmt.Errorf("app: connect database: %w", err)
		}
		s.Pool = pool
		s.closers = append(s.closers, pool.Close)
		s.Store = postgres.New(pool)
	default:
		return fmt.Errorf("app: unsupported store driver %q", s.Config.StoreDriver)
	}
	return nil
}

// Close releases backend connections in reverse order of acquisition.
func (s *Services) Close() {
	if s == nil {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
