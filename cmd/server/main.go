package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warungpos/internal/config"
	"warungpos/internal/conversation"
	"warungpos/internal/httpapi"
	"warungpos/internal/service"
	"warungpos/internal/session"
	"warungpos/internal/store"
	"warungpos/internal/store/memory"
	pgstore "warungpos/internal/store/postgres"
	"warungpos/internal/wa"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory (data is lost on restart)")
	}

	var sessions session.Store
	if cfg.RedisAddr != "" {
		redisSessions, err := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTimeout)
		if err != nil {
			log.Fatalf("redis unavailable (%v) and REDIS_ADDR is set; refusing to start with in-memory sessions", err)
		}
		sessions = redisSessions
		closers = append(closers, redisSessions.Close)
		log.Println("sessions: redis")
	} else {
		sessions = session.NewMemoryStore(cfg.SessionTimeout)
		log.Println("sessions: in-memory")
	}

	var sender wa.Sender
	if cfg.WhatsAppToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		sender = wa.NewClient(cfg.WhatsAppAPIBaseURL, cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID)
		log.Println("whatsapp: cloud api")
	} else {
		sender = wa.LogSender{}
		log.Println("whatsapp: log only (set WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID to send)")
	}

	svc := service.New(repo, cfg.StoreID, cfg.GstRate)
	engine := conversation.NewEngine(sessions, sender, svc, svc)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	api := httpapi.New(svc, auth, engine, cfg.AllowedOrigin, cfg.WhatsAppVerifyToken)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				engine.Sweep(sweepCtx)
			}
		}
	}()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("warungpos listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopSweep()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}
