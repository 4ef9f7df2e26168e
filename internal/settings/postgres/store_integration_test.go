//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/companion/internal/settings"
)

func TestStorePersistsPreferences(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("companion"),
		postgrescontainer.WithUsername("companion"),
		postgrescontainer.WithPassword("companion"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewStore(pool)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx))

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, settings.ErrNotFound)

	sealer, err := settings.NewSealer("integration-secret")
	require.NoError(t, err)
	prefs := settings.NewPreferences(store, sealer)

	require.NoError(t, prefs.SetServerURL(ctx, "https://momentum.example.com"))
	require.NoError(t, prefs.SetToken(ctx, "first"))
	require.NoError(t, prefs.SetToken(ctx, "second"))

	creds, err := prefs.Credentials(ctx)
	require.NoError(t, err)
	require.Equal(t, "second", creds.Token)
	require.True(t, creds.Configured())

	require.NoError(t, prefs.ClearToken(ctx))
	creds, err = prefs.Credentials(ctx)
	require.NoError(t, err)
	require.Empty(t, creds.Token)

	require.NoError(t, prefs.Clear(ctx))
	_, err = store.Get(ctx, "server_url")
	require.ErrorIs(t, err, settings.ErrNotFound)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
