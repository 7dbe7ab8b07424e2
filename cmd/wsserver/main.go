package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/whisper/pairing/internal/config"
	"github.com/whisper/pairing/internal/matching"
	"github.com/whisper/pairing/internal/messaging"
	"github.com/whisper/pairing/internal/metrics"
	"github.com/whisper/pairing/internal/moderation"
	"github.com/whisper/pairing/internal/ratelimit"
	"github.com/whisper/pairing/internal/report"
	"github.com/whisper/pairing/internal/session"
	"github.com/whisper/pairing/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	serverConfig := cfg.Server()

	log.Printf("Whisper pairing server starting")
	log.Printf("  listen_addr:     %s", serverConfig.ListenAddr)
	log.Printf("  worker_pool:     %d", serverConfig.WorkerPoolSize)
	log.Printf("  max_connections: %d", serverConfig.MaxConnections)
	log.Printf("  allowed_origins: %v", serverConfig.AllowedOrigins)
	log.Printf("  match_interval:  %s", cfg.MatchInterval)
	log.Printf("  queue_timeout:   %s", cfg.QueueTimeout)
	log.Printf("  relay_policy:    %s", cfg.RelayPolicy)
	log.Printf("  nats_url:        %q", cfg.NATSURL)
	log.Printf("  redis_addr:      %q", cfg.RedisAddr)
	log.Printf("  database:        %v", cfg.DatabaseURL != "")
	log.Printf("  server_name:     %s", cfg.ServerName)

	// Background writers run until workerCtx is cancelled, after every
	// connection is gone, so the final disconnect events are flushed too.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	runWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workerCtx)
		}()
	}

	observers := []matching.Observer{matching.LogObserver{}, metrics.Observer{}}
	var closers []func()

	// --- NATS ---
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = "whisper-pairing-" + cfg.ServerName
		natsClient, err := messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		publisher := messaging.NewEventPublisher(natsClient, cfg.ServerName, messaging.DefaultPublishBuffer)
		observers = append(observers, publisher)
		runWorker(publisher.Run)
		closers = append(closers, func() {
			log.Printf("[nats] %d lifecycle events dropped on a full buffer", publisher.Dropped())
			natsClient.Close()
		})
	}

	// --- Redis ---
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		sessionStore, err := session.NewStore(cfg.RedisAddr, cfg.ServerName)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		if n, err := sessionStore.Purge(workerCtx); err != nil {
			log.Printf("[session] purge stale sessions: %v", err)
		} else if n > 0 {
			log.Printf("[session] purged %d stale sessions for %s", n, cfg.ServerName)
		}
		mirror := session.NewMirror(sessionStore, session.DefaultMirrorBuffer)
		observers = append(observers, mirror)
		runWorker(mirror.Run)
		limiter = ratelimit.NewLimiter(sessionStore.Client())
		closers = append(closers, func() {
			log.Printf("[session] %d presence updates dropped on a full buffer", mirror.Dropped())
			sessionStore.Close()
		})
	}

	// --- PostgreSQL ---
	if cfg.DatabaseURL != "" {
		reportStore, err := report.Open(workerCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open report store: %v", err)
		}
		writer := report.NewWriter(reportStore, cfg.ServerName, report.DefaultWriterBuffer)
		observers = append(observers, writer)
		runWorker(writer.Run)
		closers = append(closers, func() {
			log.Printf("[report] %d reports stored, %d dropped", writer.Written(), writer.Dropped())
			reportStore.Close()
		})
	}

	server := ws.NewServer(serverConfig, nil)
	svc := matching.NewService(cfg.Matching(), server, observers...)

	dispatcher := ws.NewMessageDispatcher(server)
	chatRule, relayRule := cfg.RateRules()
	h := &handlers{
		svc:       svc,
		limiter:   limiter,
		filter:    moderation.NewFilter(),
		notifier:  dispatcher,
		chatRule:  chatRule,
		relayRule: relayRule,
	}
	h.register(dispatcher)

	server.SetOnMessage(dispatcher.Dispatch)
	server.SetOnConnect(svc.Connect)
	server.SetOnDisconnect(svc.Disconnect)
	server.Handle("/metrics", metrics.Handler())

	svc.Start(context.Background())

	// Graceful shutdown on SIGINT / SIGTERM.
	stopped := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer close(stopped)
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		svc.Stop()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	<-stopped

	stopWorkers()
	workers.Wait()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	log.Println("Whisper pairing server stopped")
}
