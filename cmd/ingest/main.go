// Command ingest watches the record files and asks the API, over NATS, to
// rebuild a domain's knowledge base whenever its file changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/fleetdesk/fleetrag/engine/kb"
	"github.com/fleetdesk/fleetrag/pkg/config"
	"github.com/fleetdesk/fleetrag/pkg/metrics"
	"github.com/fleetdesk/fleetrag/pkg/natsutil"
)

type watchedFile struct {
	domain string
	path   string
}

type fingerprint struct {
	size    int64
	modTime time.Time
}

// watcher compares file fingerprints between scans and requests a refresh
// for every domain whose file changed.
type watcher struct {
	files   []watchedFile
	seen    map[string]fingerprint
	publish func(context.Context, kb.RefreshRequest) error
	log     *slog.Logger

	requests *metrics.Counter
	errors   *metrics.Counter
	lastScan *metrics.Gauge
}

func newWatcher(files []watchedFile, publish func(context.Context, kb.RefreshRequest) error, reg *metrics.Registry, log *slog.Logger) *watcher {
	return &watcher{
		files:    files,
		seen:     make(map[string]fingerprint, len(files)),
		publish:  publish,
		log:      log,
		requests: reg.Counter("fleetrag_watch_refresh_requests_total", "Refresh requests published"),
		errors:   reg.Counter("fleetrag_watch_errors_total", "Stat or publish failures"),
		lastScan: reg.Gauge("fleetrag_watch_last_scan_timestamp", "Epoch of last scan"),
	}
}

// scan stats every file and returns how many refresh requests it sent.
// The first scan only records fingerprints unless initial is set.
func (w *watcher) scan(ctx context.Context, initial bool) int {
	w.lastScan.Set(time.Now().Unix())
	sent := 0
	for _, f := range w.files {
		info, err := os.Stat(f.path)
		if err != nil {
			w.errors.Inc()
			w.log.Warn("stat failed", "domain", f.domain, "path", f.path, "err", err)
			continue
		}
		fp := fingerprint{size: info.Size(), modTime: info.ModTime()}
		prev, known := w.seen[f.path]
		if known && prev == fp {
			continue
		}
		if !known && !initial {
			w.seen[f.path] = fp
			continue
		}

		req := kb.RefreshRequest{ID: uuid.NewString(), Domain: f.domain, Reason: "file changed: " + f.path}
		if err := w.publish(ctx, req); err != nil {
			// Fingerprint stays stale so the next scan retries.
			w.errors.Inc()
			w.log.Error("publish refresh request failed", "domain", f.domain, "err", err)
			continue
		}
		w.seen[f.path] = fp
		w.requests.Inc()
		sent++
		w.log.Info("refresh requested", "id", req.ID, "domain", f.domain, "size", fp.size)
	}
	return sent
}

func main() {
	var (
		configPath = flag.String("config", "fleetrag.yaml", "path to the YAML config file")
		interval   = flag.Duration("interval", 30*time.Second, "scan interval")
		initial    = flag.Bool("initial", false, "request a refresh of every domain on start")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	if err := run(cfg, *interval, *initial, log); err != nil {
		log.Error("ingest watcher exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, interval time.Duration, initial bool, log *slog.Logger) error {
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("fleetrag-ingest"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := natsutil.Subscribe(nc, cfg.NATS.RefreshedSubject, log, func(_ context.Context, ev kb.RefreshedEvent) {
		if ev.Error != "" {
			log.Warn("refresh failed", "id", ev.ID, "domain", ev.Domain, "err", ev.Error)
			return
		}
		log.Info("refresh done", "id", ev.ID, "domain", ev.Domain, "records", ev.Records, "chunks", ev.Chunks)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", cfg.NATS.RefreshedSubject, err)
	}
	defer sub.Unsubscribe()

	reg := metrics.New()
	if cfg.Metrics.Port != "" {
		go func() {
			if err := reg.Serve(ctx, ":"+cfg.Metrics.Port, log); err != nil {
				log.Error("metrics server failed", "err", err)
			}
		}()
	}

	w := newWatcher([]watchedFile{
		{domain: "orders", path: cfg.Data.OrdersPath},
		{domain: "vehicles", path: cfg.Data.VehiclesPath},
	}, func(ctx context.Context, req kb.RefreshRequest) error {
		return natsutil.Publish(ctx, nc, cfg.NATS.RefreshSubject, req)
	}, reg, log)

	log.Info("watching record files", "orders", cfg.Data.OrdersPath, "vehicles", cfg.Data.VehiclesPath, "interval", interval)
	w.scan(ctx, initial)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-ticker.C:
			w.scan(ctx, true)
		}
	}
}
