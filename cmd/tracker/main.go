// The tracker daemon reconciles Census REST map polls and event-stream
// facility captures into canonical per-zone ownership state and
// persists net changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"ps2map.live/internal/bus"
	"ps2map.live/internal/census"
	"ps2map.live/internal/config"
	"ps2map.live/internal/persistence/journal"
	"ps2map.live/internal/persistence/mapdb"
	"ps2map.live/internal/territory"
)

func main() {
	defServiceID := os.Getenv("PS2MAP_SERVICE_ID")

	var (
		configPath = flag.String("config", "", "path to tracker.yaml (empty for defaults)")
		dbPath     = flag.String("db", "", "database path (overrides config)")
		serviceID  = flag.String("service-id", defServiceID, "census service ID (or set PS2MAP_SERVICE_ID)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[tracker] ", log.LstdFlags|log.Lmicroseconds)
	logger.Printf("starting up")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*dbPath) != "" {
		cfg.DBPath = *dbPath
	}
	if strings.TrimSpace(*serviceID) != "" {
		cfg.ServiceID = *serviceID
	}

	store, err := mapdb.Open(cfg.DBPath, componentLogger("db"))
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer store.Close()
	logger.Printf("opened database %s", cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	servers, err := store.TrackedServers(ctx)
	if err != nil {
		logger.Fatalf("load tracked servers: %v", err)
	}
	if len(servers) == 0 {
		logger.Fatalf("no tracked servers in %s; run cmd/seed first", cfg.DBPath)
	}
	zones, err := store.TrackedZones(ctx)
	if err != nil {
		logger.Fatalf("load tracked zones: %v", err)
	}
	logger.Printf("tracking %d servers across %d zones", len(servers), len(zones))

	b := bus.New(componentLogger("bus"))

	registry := territory.NewRegistry(b, componentLogger("registry"))
	registry.Attach()
	store.AttachSink(b)

	var jw *journal.Writer
	if !cfg.JournalDisabled {
		jw = journal.NewWriter(cfg.JournalDir, "events")
		journal.Attach(b, jw, componentLogger("journal"))
		defer jw.Close()
	}

	client := census.NewClient(cfg.CensusURL, cfg.ServiceID)

	var wg sync.WaitGroup
	for _, srv := range servers {
		logger.Printf("loaded server %d (%s)", srv.ID, srv.Namespace)

		poller := census.NewPoller(client, b, srv,
			cfg.PollInterval(), cfg.FetchTimeout(), zones,
			componentLogger(fmt.Sprintf("poll w%d", srv.ID)))
		streamer := census.NewStreamer(b, srv, cfg.PushURL, cfg.ServiceID,
			cfg.ReconnectDelay(), zones,
			componentLogger(fmt.Sprintf("stream w%d", srv.ID)))

		wg.Add(2)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			streamer.Run(ctx)
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Printf("shutting down")

	cancel()
	wg.Wait()
	// Let in-flight deliveries land before the sink closes; a fetch
	// issued before cancellation may still publish, which is fine
	// because reconciliation is idempotent.
	b.Flush()
	if dropped := store.Dropped(); dropped > 0 {
		logger.Printf("dropped %d status writes under load", dropped)
	}
}

func componentLogger(name string) *log.Logger {
	return log.New(os.Stdout, "["+name+"] ", log.LstdFlags|log.Lmicroseconds)
}
