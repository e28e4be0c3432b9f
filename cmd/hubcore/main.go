package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"hubcore/clients"
	"hubcore/config"
	"hubcore/dispatch"
	"hubcore/events"
	"hubcore/inventory"
	"hubcore/orders"
	"hubcore/presence"
	"hubcore/registry"
	"hubcore/server"
	"hubcore/store"
	"hubcore/www"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("main: load config: %v", err)
	}

	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("main: open store: %v", err)
	}
	defer db.Close()
	log.Printf("main: store ready (%s)", db.Driver())

	// Redis is optional. A failed ping means no presence mirror, not a
	// failed boot.
	var presenceMgr *presence.Manager
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("main: redis unavailable, presence mirror disabled: %v", err)
		redisClient.Close()
		presenceMgr = presence.NewManager(nil)
	} else {
		presenceMgr = presence.NewManager(presence.NewRedisStore(redisClient))
		if err := presenceMgr.SyncFromSQL(db); err != nil {
			log.Printf("main: presence sync: %v", err)
		}
	}
	cancel()

	conns := registry.New()

	var emitter *events.OutboxEmitter
	var drainer *events.Drainer
	if len(cfg.Events.Kafka.Brokers) > 0 {
		emitter = events.NewOutboxEmitter(db, cfg.Events.Topic)
		publisher := events.NewKafkaPublisher(cfg.Events.Kafka.Brokers, cfg.Events.Topic)
		defer publisher.Close()
		drainer = events.NewDrainer(db, publisher, cfg.Events.OutboxDrainInterval)
		drainer.Start()
	} else {
		log.Printf("main: no kafka brokers configured, event stream disabled")
	}

	registrar := clients.NewRegistrar(db, conns, presenceMgr,
		cfg.Clients.RegisterRetries, cfg.Clients.RegisterRetryDelay)
	coordinator := inventory.NewCoordinator(db)

	var orderEmitter orders.Emitter
	if emitter != nil {
		orderEmitter = emitter
	}
	manager := orders.NewManager(db, conns, coordinator, orderEmitter,
		cfg.Orders.ApprovalDelay, cfg.Orders.SweepInterval)
	manager.Start()

	router := dispatch.NewRouter(registrar, coordinator, manager)

	tcpAddr := fmt.Sprintf("%s:%d", cfg.Listener.Host, cfg.Listener.Port)
	srv := server.New(tcpAddr, router)
	if err := srv.Start(); err != nil {
		log.Fatalf("main: start server: %v", err)
	}

	site, err := www.NewSite(db, cfg.Web.SessionSecret, presenceMgr)
	if err != nil {
		log.Fatalf("main: init web: %v", err)
	}
	webAddr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	webSrv := &http.Server{Addr: webAddr, Handler: site.Router()}
	go func() {
		log.Printf("main: web API on %s", webAddr)
		if err := webSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("main: web server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("main: received %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	webSrv.Shutdown(shutdownCtx)
	srv.Stop()
	manager.Stop()
	if drainer != nil {
		drainer.Stop()
	}
	log.Printf("main: shutdown complete")
}
