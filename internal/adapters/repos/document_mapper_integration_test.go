//go:build integration
// +build integration

package repos

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/architeacher/svc-pubsub/internal/domain"
)

func setupPostgres(t *testing.T) *sqlx.DB {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pubsub"),
		postgres.WithUsername("pubsub"),
		postgres.WithPassword("pubsub"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestDocumentMapper_Postgres(t *testing.T) {
	db := setupPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mapper := NewDocumentMapper(staticOpener{db: db})
	require.NoError(t, mapper.Connect(ctx))
	require.NoError(t, mapper.Connect(ctx), "connect is repeatable")

	first, err := mapper.SaveObject(ctx, domain.NewReceivedMessage("orders",
		[]json.RawMessage{json.RawMessage(`{"id":1}`)}, false, time.Now()))
	require.NoError(t, err)

	_, err = mapper.SaveObject(ctx, domain.NewReceivedMessage("refunds",
		[]json.RawMessage{json.RawMessage(`{"id":2}`)}, true, time.Now()))
	require.NoError(t, err)

	got, err := mapper.GetObject(ctx, first.ObjectID(), &domain.ReceivedMessage{})
	require.NoError(t, err)
	assert.Equal(t, "orders", got.(*domain.ReceivedMessage).Topic)

	orders, err := mapper.FindObjects(ctx, &domain.ReceivedMessage{}, map[string]any{"topic": "orders"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, first.ObjectID(), orders[0].ObjectID())

	all, err := mapper.FindObjects(ctx, &domain.ReceivedMessage{}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	updated := got.(*domain.ReceivedMessage)
	updated.Redelivered = true

	_, err = mapper.SaveObject(ctx, updated)
	require.NoError(t, err)

	again, err := mapper.GetObject(ctx, first.ObjectID(), &domain.ReceivedMessage{})
	require.NoError(t, err)
	assert.True(t, again.(*domain.ReceivedMessage).Redelivered)

	_, err = mapper.DeleteObject(ctx, again)
	require.NoError(t, err)

	_, err = mapper.GetObject(ctx, first.ObjectID(), &domain.ReceivedMessage{})
	require.ErrorIs(t, err, domain.ErrObjectNotFound)
}
