package main

import (
	"context"
	"fmt"

	"github.com/iamgideonidoko/beacon/internal/config"
	"github.com/iamgideonidoko/beacon/internal/hostenv"
	"github.com/iamgideonidoko/beacon/pkg/clock"
	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
	"github.com/iamgideonidoko/beacon/pkg/logger"
	"github.com/iamgideonidoko/beacon/pkg/queue"
	"github.com/iamgideonidoko/beacon/pkg/storage"
	"github.com/iamgideonidoko/beacon/pkg/tracker"
	"github.com/iamgideonidoko/beacon/pkg/transport"
)

// client is one wired tracking pipeline.
type client struct {
	cfg         *config.ClientConfig
	log         *logger.Logger
	fingerprint *fingerprint.Fingerprinter
	queue       *queue.Queue
	tracker     *tracker.Tracker
	store       storage.Storage
	closeStore  func() error
}

// newClient wires host probes, storage, transport, queue and tracker.
// probes overrides the host probes when non-nil.
func newClient(ctx context.Context, cfg *config.ClientConfig, probes *fingerprint.Probes, log *logger.Logger) (*client, error) {
	store, closeStore, err := openStorage(ctx, cfg.Storage, clock.Real())
	if err != nil {
		return nil, err
	}

	if probes == nil {
		p := hostenv.Probes(hostenv.Options{
			Version:        version,
			DurableStorage: cfg.Storage.Driver != "memory",
			Logger:         log,
		})
		probes = &p
	}
	privacy, _ := fingerprint.ParsePrivacyMode(cfg.PrivacyMode)
	fp := fingerprint.New(*probes, fingerprint.Options{
		PrivacyMode:       privacy,
		ExcludeComponents: cfg.ExcludeComponents,
		AudioTimeout:      cfg.AudioTimeout(),
		Logger:            log,
	})

	var userAgent string
	if probes.Environment != nil {
		userAgent = probes.Environment.Describe(ctx).UserAgent
	}
	httpTransport, err := transport.NewHTTP(transport.Options{
		Endpoint:  cfg.Endpoint,
		Compress:  cfg.CompressionEnabled,
		UserAgent: userAgent,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	failures := queue.NewFailureStore(store, queue.FailedEventsKey, queue.DefaultFailureCapacity, log)
	q := queue.New(httpTransport, failures, queue.Options{
		BatchSize:     cfg.BatchSize,
		BatchTimeout:  cfg.BatchTimeout(),
		SamplingRate:  cfg.SamplingRate,
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff(),

		MaxRetryBackoff: cfg.MaxRetryBackoff(),
	}, queue.WithLogger(log))

	t := tracker.New(tracker.Config{
		ProjectID:      cfg.ProjectID,
		SessionTimeout: cfg.SessionTimeout(),
		EventFilters: tracker.EventFilters{
			Include: cfg.EventFilters.Include,
			Exclude: cfg.EventFilters.Exclude,
		},
		MaxEventsPerPage:    cfg.MaxEventsPerPage,
		AllowedDomains:      cfg.AllowedDomains,
		BlockedDomains:      cfg.BlockedDomains,
		UserIDKey:           cfg.UserIDKey,
		Debug:               cfg.Debug,
		SimilarityThreshold: cfg.Fingerprint.SimilarityThreshold,
		Weights:             cfg.Weights(),
	}, q, fp, probes.Environment, store, tracker.WithLogger(log))

	return &client{
		cfg:         cfg,
		log:         log,
		fingerprint: fp,
		queue:       q,
		tracker:     t,
		store:       store,
		closeStore:  closeStore,
	}, nil
}

// Close delivers what is pending, then releases the storage backend.
func (c *client) Close(ctx context.Context) error {
	err := c.queue.Close(ctx)
	if closeErr := c.closeStore(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// openStorage opens the backend holding the session and the failed
// events. Items never expire: the failure store is bounded only by its
// capacity and the tracker ends idle sessions itself.
func openStorage(ctx context.Context, cfg config.StorageConfig, clk clock.Clock) (storage.Storage, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemory(0, clk), func() error { return nil }, nil
	case "sqlite":
		s, err := storage.OpenSQLite(cfg.Path, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return s, s.Close, nil
	case "redis":
		s, err := storage.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Prefix, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("dial redis storage: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
