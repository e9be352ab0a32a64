package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"example.com/kinetic/internal/config"
	"example.com/kinetic/internal/consumer"
	"example.com/kinetic/internal/domain"
	"example.com/kinetic/internal/normalize"
	"example.com/kinetic/internal/outbox"
	persistence "example.com/kinetic/internal/persistence/postgres"
	httptransport "example.com/kinetic/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	store := persistence.NewStore(pool)

	normalizer := normalize.New(normalize.WithUserParams(func(userID string) (normalize.UserParams, bool) {
		user, err := store.GetUser(ctx, userID)
		if err != nil {
			return normalize.UserParams{}, false
		}
		return normalize.UserParams{CriticalPower: user.CriticalPower, WeightKG: user.WeightKG}, true
	}))

	service := domain.NewIngestService(store, normalizer, domain.WithIngestTimeout(cfg.IngestTimeout))
	handler := consumer.NewIngestHandler(service, nil)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	go func() {
		log.Printf("ingestd metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroup,
		Topic:           cfg.FileSyncedTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})

	proc := consumer.NewProcessor(reader, handler)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer reader.Close()

		log.Printf("ingestd consuming (topic=%s, group=%s)", cfg.FileSyncedTopic, cfg.ConsumerGroup)
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("consumer stopped with error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("ingestd shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	<-done
	dispatcher.Wait()
}
