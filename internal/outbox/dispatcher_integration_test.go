//go:build integration

package outbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

type capturingWriter struct {
	failures int
	written  map[string][]kafka.Message
}

func (w *capturingWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	if w.written == nil {
		w.written = make(map[string][]kafka.Message)
	}
	w.written[topic] = append(w.written[topic], msgs...)
	return nil
}

func TestDispatcherDeliversAndRetries(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("kinetic"),
		postgrescontainer.WithUsername("kinetic"),
		postgrescontainer.WithPassword("kinetic"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, waitForDatabase(ctx, pool))
	applyMigrations(t, ctx, pool)

	insert := func(aggregateID string) {
		_, execErr := pool.Exec(ctx, `INSERT INTO outbox
            (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
            VALUES ('activity', $1, 'activity.ingested', 'activity_ingested', 'user-1', jsonb_build_object('activity_id', $1::text), $1||':activity_ingested')`,
			aggregateID)
		require.NoError(t, execErr)
	}
	insert("act-1")
	insert("act-2")

	writer := &capturingWriter{failures: 1}
	dispatcher := NewDispatcher(pool, writer, time.Hour, 10)

	// First pass hits the failing broker; rows stay unpublished for retry.
	require.Error(t, dispatcher.processBatch(ctx))
	require.Equal(t, 2, countPending(t, ctx, pool))

	// Second pass succeeds and marks both rows published.
	require.NoError(t, dispatcher.processBatch(ctx))
	require.Equal(t, 0, countPending(t, ctx, pool))
	require.Len(t, writer.written["activity_ingested"], 2)

	first := writer.written["activity_ingested"][0]
	require.Equal(t, "user-1", string(first.Key))
	require.JSONEq(t, `{"activity_id":"act-1"}`, string(first.Value))

	// Published rows are never redelivered.
	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, writer.written["activity_ingested"], 2)
}

func countPending(t *testing.T, ctx context.Context, pool *pgxpool.Pool) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM outbox WHERE published_at IS NULL`).Scan(&n))
	return n
}

func applyMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)

	path := filepath.Join(filepath.Dir(file), "../../db/postgres/migrations/0001_init.up.sql")
	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)
}

func waitForDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		err := pool.Ping(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
