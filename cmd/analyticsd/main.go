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

	"example.com/kinetic/internal/analytics"
	"example.com/kinetic/internal/config"
	"example.com/kinetic/internal/consumer"
	"example.com/kinetic/internal/export"
	persistence "example.com/kinetic/internal/persistence/postgres"
	"example.com/kinetic/internal/query"
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

	opts := []analytics.Option{analytics.WithRecomputeTimeout(cfg.RecomputeTimeout)}
	if cfg.CoefficientsPath != "" {
		table, loadErr := loadCoefficients(cfg.CoefficientsPath)
		if loadErr != nil {
			log.Fatalf("failed to load coefficient table: %v", loadErr)
		}
		log.Printf("using coefficient table %s", table.Version)
		opts = append(opts, analytics.WithCoefficients(table))
	}
	engine := analytics.NewEngine(store, opts...)
	handler := consumer.NewRecomputeHandler(engine, nil)
	exporter := export.NewExporter(query.NewService(store))

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress, func(mux *http.ServeMux) {
		registerDatasetRoutes(mux, exporter)
	})
	go func() {
		log.Printf("analyticsd metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroup,
		Topic:           cfg.IngestedTopic,
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

		log.Printf("analyticsd consuming (topic=%s, group=%s)", cfg.IngestedTopic, cfg.ConsumerGroup)
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("consumer stopped with error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("analyticsd shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	<-done
}

func loadCoefficients(path string) (analytics.CoefficientTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return analytics.CoefficientTable{}, err
	}
	defer f.Close()
	return analytics.LoadCoefficients(f)
}

// registerDatasetRoutes exposes on-demand parquet exports for the offline
// model-training process.
func registerDatasetRoutes(mux *http.ServeMux, exporter *export.Exporter) {
	mux.HandleFunc("/datasets/power-curve", func(w http.ResponseWriter, r *http.Request) {
		userID, sport := r.URL.Query().Get("user_id"), r.URL.Query().Get("sport")
		if userID == "" || sport == "" {
			http.Error(w, "user_id and sport are required", http.StatusBadRequest)
			return
		}
		data, err := exporter.PowerCurveDataset(r.Context(), userID, sport)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	})

	mux.HandleFunc("/datasets/activities", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		start, err := parseTimeParam(r.URL.Query().Get("start"))
		if err != nil {
			http.Error(w, "invalid start", http.StatusBadRequest)
			return
		}
		end, err := parseTimeParam(r.URL.Query().Get("end"))
		if err != nil {
			http.Error(w, "invalid end", http.StatusBadRequest)
			return
		}
		data, err := exporter.ActivitySummaryDataset(r.Context(), userID, start, end)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	})
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
