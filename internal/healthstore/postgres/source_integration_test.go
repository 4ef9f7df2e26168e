//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/companion/internal/domain"
)

func TestSourceReadsWindow(t *testing.T) {
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

	source := NewSource(pool)
	require.NoError(t, source.EnsureSchema(ctx))
	require.NoError(t, source.Available(ctx))

	base := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, source.Insert(ctx,
		domain.Record{Kind: domain.KindSteps, Steps: &domain.StepRecord{ID: uuid.NewString(), Start: base.Add(8 * time.Hour), End: base.Add(9 * time.Hour), Count: 2100, SourceApp: "com.sec.android.app.shealth"}},
		domain.Record{Kind: domain.KindSteps, Steps: &domain.StepRecord{ID: uuid.NewString(), Start: base.Add(-time.Hour), End: base, Count: 50, SourceApp: "com.sec.android.app.shealth"}},
		domain.Record{Kind: domain.KindSleep, Sleep: &domain.SleepSession{ID: uuid.NewString(), Start: base.Add(-2 * time.Hour), End: base.Add(6 * time.Hour), SourceApp: "com.sec.android.app.shealth"}},
	))

	snapshot, err := domain.ReadSnapshot(ctx, source, domain.TimeRange{Start: base, End: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, snapshot.Steps, 1)
	require.Equal(t, int64(2100), snapshot.Steps[0].Count)
	require.Len(t, snapshot.Sleep, 1)
	require.True(t, base.Add(-2*time.Hour).Equal(snapshot.Sleep[0].Start))
	require.True(t, base.Add(8*time.Hour).Equal(snapshot.Steps[0].Start))
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
