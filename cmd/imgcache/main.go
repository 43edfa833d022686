// Command imgcache prefetches images into a disk cache and inspects it.
//
// Usage:
//
//	imgcache prefetch <locator>...
//	imgcache stats
//	imgcache clear
//
// Locators starting with http:// or https:// are fetched from the network,
// blob:<name> from the configured blob store, anything else is a local
// path. Configuration is read from IMGCACHE_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/hupe1980/imgcache"
	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "imgcache:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: imgcache prefetch <locator>... | stats | clear")
	}
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return runWith(ctx, cfg, args, out)
}

func runWith(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	logger := imgcache.NewTextLogger(cfg.LogLevel)

	opts := []imgcache.Option{
		imgcache.WithLogger(logger),
		imgcache.WithWorkers(cfg.Workers),
		imgcache.WithDispatcher(imgcache.Inline{}),
		imgcache.WithFetchTimeout(cfg.FetchTimeout),
		imgcache.WithFetchRateLimit(cfg.RateLimit),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, imgcache.WithUserAgent(cfg.UserAgent))
	}
	store, err := cfg.BlobStore(ctx)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	if store != nil {
		opts = append(opts, imgcache.WithBlobStore(store))
	}

	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		opts = append(opts, imgcache.WithMetricsCollector(metric.NewCollector(reg)))
	}

	loader, err := imgcache.New(cfg.Params(), opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := loader.Close(); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	if reg != nil {
		metric.RegisterCacheStats(reg, loader.Stats)
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	switch args[0] {
	case "prefetch":
		return prefetch(ctx, loader, cfg, args[1:], out)
	case "stats":
		loader.Wait()
		return printStats(loader, out)
	case "clear":
		if err := loader.ClearCache(); err != nil {
			return err
		}
		loader.Wait()
		return printStats(loader, out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func parseSource(locator string) imgcache.Source {
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return imgcache.Network(locator)
	case strings.HasPrefix(locator, "blob:"):
		return imgcache.Blob(strings.TrimPrefix(locator, "blob:"))
	default:
		return imgcache.File(locator)
	}
}

// prefetch loads every locator into the cache. Individual failures are
// reported and counted; only cancellation aborts the run.
func prefetch(ctx context.Context, loader *imgcache.Loader, cfg Config, locators []string, out io.Writer) error {
	if len(locators) == 0 {
		return errors.New("prefetch: no locators")
	}

	var loaded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2 * cfg.Workers)

	for _, locator := range locators {
		src := parseSource(locator)
		g.Go(func() error {
			done := make(chan error, 1)
			err := loader.Render(gctx, src, cfg.Width, cfg.Height, func(b *bitmap.Bitmap, err error) {
				done <- err
			})
			if err != nil {
				return err
			}
			select {
			case err := <-done:
				if err != nil {
					failed.Add(1)
					fmt.Fprintf(out, "FAIL %s: %v\n", locator, err)
					return nil
				}
				loaded.Add(1)
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := loader.FlushCache(); err != nil {
		return err
	}
	loader.Wait()

	fmt.Fprintf(out, "prefetched %d of %d images (%d failed)\n", loaded.Load(), len(locators), failed.Load())
	if failed.Load() > 0 {
		return fmt.Errorf("%d images failed", failed.Load())
	}
	return nil
}

func printStats(loader *imgcache.Loader, out io.Writer) error {
	data, err := json.MarshalIndent(loader.Stats(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
