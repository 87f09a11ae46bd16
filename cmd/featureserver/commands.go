package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/kproj6/featureserver/internal/cache/redisstore"
	"github.com/kproj6/featureserver/internal/cache/respcache"
	"github.com/kproj6/featureserver/internal/catalog"
	"github.com/kproj6/featureserver/internal/catalogevents"
	"github.com/kproj6/featureserver/internal/core/config"
	"github.com/kproj6/featureserver/internal/core/health"
	"github.com/kproj6/featureserver/internal/core/observability"
	"github.com/kproj6/featureserver/internal/core/router"
	"github.com/kproj6/featureserver/internal/core/server"
	"github.com/kproj6/featureserver/internal/extract"
	"github.com/kproj6/featureserver/internal/grid"
	"github.com/kproj6/featureserver/internal/grid/ncreader"
	"github.com/kproj6/featureserver/internal/logger"
	"github.com/kproj6/featureserver/internal/metrics"
	"github.com/kproj6/featureserver/internal/pyramid"
	"github.com/kproj6/featureserver/internal/query"
)

// loadConfig layers command line flags over the environment.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.FromEnv()
	if c.IsSet(logLevel) {
		cfg.LogLevel = c.String(logLevel)
	}
	if c.IsSet(logConsole) {
		cfg.LogConsole = c.Bool(logConsole)
	}
	if c.IsSet(addr) {
		cfg.Addr = c.String(addr)
	}
	if c.IsSet(catalogDriver) {
		cfg.Catalog.Driver = c.String(catalogDriver)
	}
	if c.IsSet(catalogPath) {
		cfg.Catalog.Path = c.String(catalogPath)
	}
	if c.IsSet(scanRoot) {
		cfg.Scan.Root = c.String(scanRoot)
	}
	if c.IsSet(scanStrict) {
		cfg.Scan.Strict = c.Bool(scanStrict)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func buildLoggers(cfg config.Config, component string) (*zerolog.Logger, *slog.Logger) {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "featureserver",
		Component: component,
	}, os.Stderr)
	return &zl, logger.NewSlog(&zl)
}

func openCatalog(ctx context.Context, cfg config.Config, open grid.Opener, log *slog.Logger, opts ...catalog.Option) (*catalog.Catalog, error) {
	opts = append([]catalog.Option{catalog.WithLogger(log)}, opts...)
	cat, err := catalog.Open(ctx, catalog.Config{Driver: cfg.Catalog.Driver, Path: cfg.Catalog.Path}, open, opts...)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return cat, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scanAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Scan.Root == "" {
		return errors.New("scan: no root given")
	}
	_, log := buildLoggers(cfg, "scan")

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := openCatalog(ctx, cfg, ncreader.New(ncreader.DefaultConfig()), log)
	if err != nil {
		return err
	}
	defer cat.Close()

	rep, err := cat.Scan(ctx, cfg.Scan.Root, catalog.ScanOptions{Strict: cfg.Scan.Strict})
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, rep)
}

func pyramidAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	_, log := buildLoggers(cfg, "pyramid")

	opts := pyramid.DefaultOptions()
	if p := c.String(optionsFile); p != "" {
		raw, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read pyramid options: %w", err)
		}
		if opts, err = pyramid.ParseOptions(raw); err != nil {
			return err
		}
	}

	ctx := c.Context
	reader := ncreader.New(ncreader.DefaultConfig())
	var set pyramid.TileMatrixSet
	if path := c.String(file); path != "" {
		ds, err := reader.Open(ctx, path)
		if err != nil {
			return err
		}
		desc, err := catalog.Describe(ctx, ds, catalog.DefaultLayout())
		_ = ds.Close()
		if err != nil {
			return fmt.Errorf("describe %s: %w", path, err)
		}
		set, err = pyramid.Generate(desc.Resolution, desc.Envelope(), opts)
		if err != nil {
			return err
		}
	} else {
		cat, err := openCatalog(ctx, cfg, reader, log)
		if err != nil {
			return err
		}
		defer cat.Close()
		svc := query.New(cat, nil, query.Options{Pyramid: opts, Logger: log})
		if set, err = svc.TileMatrixSet(ctx); err != nil {
			return err
		}
	}
	return writeJSON(c.App.Writer, set)
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	zl, log := buildLoggers(cfg, "serve")

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := metrics.Init(metrics.Config{Build: metrics.BuildInfo{
		Version:   versioninfo.Short(),
		Revision:  versioninfo.Revision,
		BuildDate: versioninfo.LastCommit.UTC().Format(time.RFC3339),
	}})
	if err := observability.Init(prov.Registerer(), cfg.MetricsEnabled); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	opener, err := grid.NewCache(ncreader.New(ncreader.DefaultConfig()), cfg.HandleCacheSize)
	if err != nil {
		return err
	}
	if cl, ok := opener.(io.Closer); ok {
		defer cl.Close()
	}

	var catOpts []catalog.Option
	if cfg.Events.Enabled {
		pub, err := catalogevents.NewPublisher(catalogevents.SplitCSV(cfg.Events.Brokers), cfg.Events.Topic, 0, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("close event publisher", "err", err)
			}
		}()
		catOpts = append(catOpts, catalog.WithNotifier(pub))
	}

	cat, err := openCatalog(ctx, cfg, opener, log, catOpts...)
	if err != nil {
		return err
	}
	defer cat.Close()

	checks := []health.Check{{Name: "catalog", P: cat}}
	var rcache *respcache.Cache
	if cfg.Cache.Enabled {
		rc, err := redisstore.New(ctx, cfg.Cache.RedisAddr,
			redisstore.WithReadTimeout(cfg.Cache.OpTimeout),
			redisstore.WithWriteTimeout(cfg.Cache.OpTimeout))
		if err != nil {
			log.Warn("response cache disabled", "addr", cfg.Cache.RedisAddr, "err", err)
		} else {
			defer rc.Close()
			rcache = respcache.New(rc, cfg.Cache.TTL, log)
			checks = append(checks, health.Check{Name: "cache", P: rc, Optional: true})
		}
	}

	ex := extract.New(opener, extract.Options{Stride: extract.BoundedStride(cfg.StrideMaxPx), Logger: log})
	svc := query.New(cat, ex, query.Options{Cache: rcache, StrideKey: cfg.StrideMaxPx, Logger: log})

	if cfg.Events.Consume {
		cc := catalogevents.DefaultConsumerConfig(catalogevents.SplitCSV(cfg.Events.Brokers), cfg.Events.Topic, cfg.Events.GroupID)
		consumer := catalogevents.NewConsumer(cc, log, zl, cat)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("catalog event consumer stopped", "err", err)
			}
		}()
	}

	scanOpts := catalog.ScanOptions{Strict: cfg.Scan.Strict}
	if cfg.Scan.Root != "" {
		go cat.Run(ctx, cfg.Scan.Root, cfg.Scan.Interval, scanOpts)
	}

	api := &router.Handlers{
		Svc:      svc,
		Log:      log,
		Timeout:  cfg.ExtractTimeout,
		Scanner:  cat,
		ScanRoot: cfg.Scan.Root,
		ScanOpts: scanOpts,
	}
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = prov.Handler()
	}
	opts := server.Options{
		Addr:         cfg.Addr,
		Ready:        health.Readiness(2*time.Second, checks...),
		Metrics:      metricsHandler,
		WriteTimeout: cfg.ExtractTimeout + 10*time.Second,
	}

	log.Info("starting featureserver",
		"addr", cfg.Addr,
		"version", versioninfo.Short(),
		"catalog", cat.StoreName(),
		"scan_root", cfg.Scan.Root)
	if err := server.Run(ctx, log, server.Handler(log, api, opts), opts); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Info("server stopped")
	return nil
}
