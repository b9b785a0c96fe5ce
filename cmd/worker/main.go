package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"eventpass/internal/config"
	"eventpass/internal/queue"
	"eventpass/internal/store"
)

// Worker drains scan events from the queue into the store's audit log,
// keeping the check-in request path to a single write.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("store open failed: %v", err)
	}
	defer st.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// An in-memory queue cannot cross processes; the worker only makes
		// sense against redis, but this keeps local runs from crashing.
		log.Println("WARNING: memory queue configured; no events will arrive from the API process")
		q = queue.NewInMemory(64)
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for scan events...")
	for ev := range events {
		if err := st.RecordScan(ctx, ev); err != nil {
			log.Printf("record scan %s failed: %v", ev.Status, err)
			continue
		}
		log.Printf("recorded scan: status=%s name=%q", ev.Status, ev.Name)
	}

	log.Println("worker stopped")
}
