// Package agent implements the "agent" subcommand: the long-running
// catalogd server process. Wiring follows the teacher's own
// command/agent convention (a cli.Command embedding command/base.Command
// for flag handling) generalized from a gossip-cluster agent to this
// service's HTTP server.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/basakil/catalogd/command/base"
	"github.com/basakil/catalogd/internal/cache"
	"github.com/basakil/catalogd/internal/cache/fallbackcache"
	"github.com/basakil/catalogd/internal/cache/kvcache"
	"github.com/basakil/catalogd/internal/collab"
	"github.com/basakil/catalogd/internal/config"
	"github.com/basakil/catalogd/internal/configcache"
	"github.com/basakil/catalogd/internal/enrich"
	"github.com/basakil/catalogd/internal/handlers"
	"github.com/basakil/catalogd/internal/lifecycle"
	"github.com/basakil/catalogd/internal/metrics"
	"github.com/basakil/catalogd/internal/ratings"
	"github.com/basakil/catalogd/internal/ratings/kvstore"
	"github.com/basakil/catalogd/internal/ratings/memstore"
	"github.com/basakil/catalogd/internal/upstream"
)

// Command implements cli.Command for `catalogd agent`.
type Command struct {
	base.Command
}

func New(ui cli.Ui) *Command {
	c := &Command{}
	c.Ui = ui
	return c
}

func (c *Command) Synopsis() string { return "Runs the catalogd HTTP server" }

func (c *Command) Help() string {
	c.NewFlagSet(c)
	return "Usage: catalogd agent [options]\n\n" + c.Command.Help()
}

func (c *Command) Run(args []string) int {
	f := c.NewFlagSet(c)
	if err := f.Parse(args); err != nil {
		return 1
	}

	logger := hclog.New(&hclog.LoggerOptions{Name: "catalogd", Level: hclog.Info})

	rc, err := config.Load(c.ConfigFile())
	if err != nil {
		c.Ui.Error(fmt.Sprintf("loading configuration: %v", err))
		return 1
	}
	if addr := c.ListenAddr(); addr != "" {
		rc.ListenAddr = addr
	}
	if err := validateEncryptionKey(rc.EncryptionKey); err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	if err := validateSessionSecret(rc.SessionSecret); err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	logger.Info("starting catalogd", "config", rc.Sanitized())

	runtime := lifecycle.New(logger)
	d := newDeps(&rc, logger)

	if err := runtime.Startup(context.Background(), d.dependencies()); err != nil {
		var critErr *lifecycle.CriticalError
		if errors.As(err, &critErr) {
			c.Ui.Error(fmt.Sprintf("critical dependency failed: %v", critErr))
			return 1
		}
		// Non-critical dependencies failed and are now DEGRADED (spec
		// §4.8); startup continues and the server still accepts traffic.
		c.Ui.Warn(fmt.Sprintf("starting in degraded mode: %v", err))
	}

	srv := handlers.NewServer(rc.ResponseBodyLimit, rc.PerIPRateLimit, logger)
	srv.ConfigCache = d.configCache
	srv.ResponseCache = d.responseCache
	srv.Ratings = d.ratingsEngine
	srv.Pipeline = enrich.New(d.ratingsEngine, nil)
	srv.Upstream = d.upstreamClient
	srv.Metrics = d.metricsSink
	srv.Degraded = runtime.Degraded
	srv.Version = "0.1.0"
	srv.Channel = "stable"
	srv.Commit = "unknown"

	httpServer := &http.Server{Addr: rc.ListenAddr, Handler: srv.Mux()}
	runtime.RegisterShutdown(func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})
	if d.scheduler != nil {
		go d.scheduler.Run(context.Background())
		runtime.RegisterShutdown(func(ctx context.Context) error {
			d.scheduler.Stop()
			return nil
		})
	}
	runtime.RegisterShutdown(func(ctx context.Context) error {
		return d.responseCache.Close()
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", rc.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			c.Ui.Error(fmt.Sprintf("http server error: %v", err))
			return 1
		}
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		if err := runtime.Shutdown(rc.ShutdownDrainTimeout); err != nil {
			logger.Warn("shutdown completed with errors", "error", err)
		}
	}
	return 0
}

// deps holds every constructed collaborator plus the lifecycle
// dependency list that builds them in classified (critical/
// non-critical) order (spec §4.8).
type deps struct {
	rc     *config.RuntimeConfig
	logger hclog.Logger

	configCache    *configcache.Cache
	responseCache  cache.ResponseCache
	ratingsEngine  *ratings.Engine
	scheduler      *ratings.Scheduler
	upstreamClient *upstream.Client
	metricsSink    *metrics.Sink
}

func newDeps(rc *config.RuntimeConfig, logger hclog.Logger) *deps {
	d := &deps{rc: rc, logger: logger}

	d.upstreamClient = upstream.New(upstream.Config{
		BaseURL:       rc.UpstreamBaseURL,
		Timeout:       rc.UpstreamTimeout,
		RatePerSecond: rc.RateLimitBudget,
		Burst:         rc.RateLimitBurst,
		Logger:        logger,
	})

	inProcess := cache.New(cache.Options{MaxEntries: rc.CacheMaxEntries, Logger: logger})
	d.responseCache = inProcess // overwritten by the shared-backend dependency on success

	memStore := memstore.New()
	d.ratingsEngine = ratings.New(memStore, logger)

	noopStore := noopUserConfigStore{}
	configCache, err := configcache.New(noopStore, configcache.Options{})
	if err != nil {
		logger.Warn("config cache construction failed, using defaults", "error", err)
	}
	d.configCache = configCache

	return d
}

// dependencies returns the classified startup list (spec §4.8): the
// shared response-cache backend, shared ratings store, and ratings
// ingest are all NON-CRITICAL — their failure degrades the
// corresponding subsystem but never aborts startup. Encryption/session
// validation (the one CRITICAL dependency) already ran in Run before
// this is called.
func (d *deps) dependencies() []lifecycle.Dependency {
	inProcess := d.responseCache

	return []lifecycle.Dependency{
		{
			Name:     "response_cache_shared_backend",
			Critical: false,
			Start: func(ctx context.Context) error {
				if d.rc.CacheBackend != config.CacheBackendShared {
					return nil
				}
				client, err := api.NewClient(&api.Config{Address: d.rc.SharedCacheAddr})
				if err != nil {
					return err
				}
				shared := kvcache.New(client, "catalogd/cache/", d.logger)
				d.responseCache = fallbackcache.New(shared, inProcess, d.logger, nil)
				return nil
			},
		},
		{
			Name:     "ratings_shared_store",
			Critical: false,
			Start: func(ctx context.Context) error {
				if d.rc.CacheBackend != config.CacheBackendShared {
					return nil
				}
				client, err := api.NewClient(&api.Config{Address: d.rc.SharedCacheAddr})
				if err != nil {
					return err
				}
				store := kvstore.New(client, "catalogd/ratings/")
				if err := store.LoadFromKV(); err != nil {
					return err
				}
				d.ratingsEngine = ratings.New(store, d.logger)
				return nil
			},
		},
		{
			Name:     "ratings_ingest",
			Critical: false,
			Start: func(ctx context.Context) error {
				if d.rc.RatingsDatasetURL == "" {
					return fmt.Errorf("ratings_dataset_url not configured")
				}
				source := newHTTPDatasetSource(d.rc.RatingsDatasetURL, d.rc.UpstreamTimeout)
				ingester := ratings.NewIngester(d.ratingsEngine, source, ratings.Options{MinVotes: d.rc.RatingsMinVotes})
				d.scheduler = ratings.NewScheduler(ingester, d.rc.RatingsRefreshInterval, d.logger)
				return nil
			},
		},
		{
			Name:     "metrics_sink",
			Critical: false,
			Start: func(ctx context.Context) error {
				sink, err := metrics.New("catalogd")
				if err != nil {
					return err
				}
				d.metricsSink = sink
				return nil
			},
		},
	}
}

// noopUserConfigStore is the default UserConfigStore when no external
// account service is configured: every session gets an empty
// UserConfig rather than the request failing outright, consistent with
// spec §7's "degrade gracefully" philosophy extended to the config
// layer.
type noopUserConfigStore struct{}

func (noopUserConfigStore) UserConfig(ctx context.Context, sessionID string) (collab.UserConfig, error) {
	return collab.UserConfig{SessionID: sessionID}, nil
}
