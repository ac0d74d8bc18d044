package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taptrack/internal/config"
	"taptrack/internal/notify"
	"taptrack/internal/store"
)

// Notifier consumes queued attendance notifications and delivers them to
// the external gateway. Delivery is best-effort: a failed job is retried
// once, then logged and dropped. The attendance record itself is already
// durable and unaffected.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q notify.Queue
	if cfg.QueueBackend == "memory" {
		q = notify.NewInMemory(64)
	} else {
		q = notify.NewRedisQueue(redisClient.Client, "taptrack:notifications")
	}

	webhook := notify.NewWebhook(cfg.NotifyURL, cfg.NotifySkip)

	jobs, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("notifier started, waiting for jobs...")
	for job := range jobs {
		if err := webhook.Send(ctx, job); err != nil {
			log.Printf("notify %s (%s %s) failed: %v, retrying", job.RecordID, job.SubjectName, job.Transition, err)
			time.Sleep(2 * time.Second)
			if err := webhook.Send(ctx, job); err != nil {
				log.Printf("notify %s failed again, dropping: %v", job.RecordID, err)
			}
			continue
		}
		log.Printf("notified %s for %s (%s)", job.SubjectName, job.Transition, job.RecordID)
	}

	log.Println("notifier stopped")
}
