package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jmoiron/sqlx"
	"github.com/shammaa/url-shortener/internal/config"
	"github.com/shammaa/url-shortener/internal/database/postgres"
	"github.com/shammaa/url-shortener/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func setupPostgres(t testing.TB) config.Postgres {
	t.Helper()

	ctx := context.Background()

	pgUser := "test"
	pgPassword := "test"
	pgDB := "url_shortener"

	pgCont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDB,
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForExposedPort(),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgCont.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate postgres container: %v", err)
		}
	})

	pgHost, err := pgCont.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	pgPort, err := pgCont.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return config.Postgres{
		User:     pgUser,
		Password: pgPassword,
		Host:     pgHost,
		Port:     pgPort.Int(),
		DB:       pgDB,
		SSLMode:  "disable",
	}
}

func runMigrations(t testing.TB, cfg config.Postgres) {
	t.Helper()

	migrationPath := "file://../../../../migrations"

	m, err := migrate.New(migrationPath, cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to initialize migrations: %v", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			t.Fatalf("Failed to rollback migrations: %v", err)
		}
	})
}

func setupRepository(t testing.TB) *postgres.Repository {
	t.Helper()

	cfg := setupPostgres(t)
	runMigrations(t, cfg)

	db, err := sqlx.Connect("pgx", cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("Failed to close database: %v", err)
		}
	})

	return postgres.NewRepository(db)
}

func newLink(key string) *entity.Link {
	return &entity.Link{
		Key:                key,
		DestinationURL:     "https://example.com",
		IsActive:           true,
		TrackVisits:        true,
		TrackIPAddress:     true,
		TrackUserAgent:     true,
		TrackReferer:       true,
		RedirectStatusCode: 302,
	}
}

func insertLink(t testing.TB, ctx context.Context, repo *postgres.Repository, key string) *entity.Link {
	t.Helper()

	link, err := repo.InsertLink(ctx, newLink(key))
	require.NoError(t, err)

	return link
}

func TestRepository_InsertLink(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	ctx := context.Background()
	repo := setupRepository(t)

	t.Run("success", func(t *testing.T) {
		link, err := repo.InsertLink(ctx, newLink("abc123"))

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.NotZero(t, link.ID)
		assert.Equal(t, "abc123", link.Key)
		assert.Equal(t, "https://example.com", link.DestinationURL)
		assert.Zero(t, link.ClicksCount)
		assert.Nil(t, link.FirstClickedAt)
	})

	t.Run("key exists", func(t *testing.T) {
		link, err := repo.InsertLink(ctx, newLink("abc123"))

		assert.ErrorIs(t, err, entity.ErrKeyExists)
		assert.Nil(t, link)
	})
}

func TestRepository_FindLinkByKey(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	ctx := context.Background()
	repo := setupRepository(t)

	t.Run("link not found", func(t *testing.T) {
		link, err := repo.FindLinkByKey(ctx, "missing")

		assert.ErrorIs(t, err, entity.ErrLinkNotFound)
		assert.Nil(t, link)
	})

	t.Run("success", func(t *testing.T) {
		created := insertLink(t, ctx, repo, "abc123")

		link, err := repo.FindLinkByKey(ctx, "abc123")

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Equal(t, created.ID, link.ID)
		assert.Equal(t, "https://example.com", link.DestinationURL)
	})

	t.Run("soft-deleted link not found", func(t *testing.T) {
		insertLink(t, ctx, repo, "gone")
		require.NoError(t, repo.SoftDeleteLink(ctx, "gone"))

		link, err := repo.FindLinkByKey(ctx, "gone")

		assert.ErrorIs(t, err, entity.ErrLinkNotFound)
		assert.Nil(t, link)
	})
}

func TestRepository_ListLinks(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	ctx := context.Background()
	repo := setupRepository(t)

	insertLink(t, ctx, repo, "first")
	insertLink(t, ctx, repo, "second")
	insertLink(t, ctx, repo, "third")

	t.Run("newest first", func(t *testing.T) {
		links, err := repo.ListLinks(ctx, 10, 0)

		require.NoError(t, err)
		require.Len(t, links, 3)
		assert.Equal(t, "third", links[0].Key)
		assert.Equal(t, "second", links[1].Key)
		assert.Equal(t, "first", links[2].Key)
	})

	t.Run("limit and offset window the page", func(t *testing.T) {
		links, err := repo.ListLinks(ctx, 2, 1)

		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.Equal(t, "second", links[0].Key)
		assert.Equal(t, "first", links[1].Key)
	})

	t.Run("tombstoned links stay out of listings", func(t *testing.T) {
		require.NoError(t, repo.SoftDeleteLink(ctx, "second"))

		links, err := repo.ListLinks(ctx, 10, 0)

		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.Equal(t, "third", links[0].Key)
		assert.Equal(t, "first", links[1].Key)
	})
}

func TestRepository_KeyExists(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	ctx := context.Background()
	repo := setupRepository(t)

	t.Run("free key", func(t *testing.T) {
		exists, err := repo.KeyExists(ctx, "free")

		assert.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("claimed key", func(t *testing.T) {
		insertLink(t, ctx, repo, "abc123")

		exists, err := repo.KeyExists(ctx, "abc123")

		assert.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("tombstoned key stays claimed", func(t *testing.T) {
		insertLink(t, ctx, repo, "buried")
		require.NoError(t, repo.SoftDeleteLink(ctx, "buried"))

		exists, err := repo.KeyExists(ctx, "buried")

		assert.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestRepository_UpdateLink(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	ctx := context.Background()
	repo := setupRepository(t)

	t.Run("success", func(t *testing.T) {
		created := insertLink(t, ctx, repo, "abc123")
		created.DestinationURL = "https://new-example.com"
		created.Title = "Landing"

		updated, err := repo.UpdateLink(ctx, created)

		assert.NoError(t, err)
		assert.NotNil(t, updated)
		assert.Equal(t, "https://new-example.com", updated.DestinationURL)
		assert.Equal(t, "Landing", updated.Title)
	})

	t.Run("soft-deleted link not found", func(t *testing.T) {
		created := insertLink(t, ctx, repo, "gone")
		require.NoError(t, repo.SoftDeleteLink(ctx, "gone"))

		updated, err := repo.UpdateLink(ctx, created)

		assert.ErrorIs(t, err, entity.ErrLinkNotFound)
		assert.Nil(t, updated)
	})
}

func TestRepository_IncrementClicks(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	ctx := context.Background()
	repo := setupRepository(t)

	t.Run("link not found", func(t *testing.T) {
		err := repo.IncrementClicks(ctx, 404, time.Now().UTC())

		assert.ErrorIs(t, err, entity.ErrLinkNotFound)
	})

	t.Run("first and last clicked are tracked", func(t *testing.T) {
		created := insertLink(t, ctx, repo, "abc123")
		first := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
		second := first.Add(time.Hour)

		require.NoError(t, repo.IncrementClicks(ctx, created.ID, first))
		require.NoError(t, repo.IncrementClicks(ctx, created.ID, second))

		link, err := repo.FindLinkByKey(ctx, "abc123")

		assert.NoError(t, err)
		assert.Equal(t, int64(2), link.ClicksCount)
		require.NotNil(t, link.FirstClickedAt)
		require.NotNil(t, link.LastClickedAt)
		assert.True(t, link.FirstClickedAt.Equal(first))
		assert.True(t, link.LastClickedAt.Equal(second))
	})

	t.Run("concurrent clicks never lose updates", func(t *testing.T) {
		const clicks = 25

		created := insertLink(t, ctx, repo, "parallel")
		now := time.Now().UTC()

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < clicks; i++ {
			g.Go(func() error {
				return repo.IncrementClicks(gctx, created.ID, now)
			})
		}
		require.NoError(t, g.Wait())

		reloaded, err := repo.FindLinkByKey(ctx, "parallel")
		require.NoError(t, err)
		assert.Equal(t, int64(clicks), reloaded.ClicksCount)
	})

	t.Run("click limit makes link inaccessible", func(t *testing.T) {
		limit := int64(1)
		link := newLink("limited")
		link.ClickLimit = &limit
		created, err := repo.InsertLink(ctx, link)
		require.NoError(t, err)

		assert.True(t, created.Accessible(time.Now().UTC()))

		require.NoError(t, repo.IncrementClicks(ctx, created.ID, time.Now().UTC()))

		reloaded, err := repo.FindLinkByKey(ctx, "limited")
		require.NoError(t, err)

		reason, ok := reloaded.AccessState(time.Now().UTC())
		assert.False(t, ok)
		assert.Equal(t, entity.ReasonLimitReached, reason)
	})
}

func TestRepository_Visits(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	ctx := context.Background()
	repo := setupRepository(t)
	created := insertLink(t, ctx, repo, "abc123")

	day := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)

	visit := &entity.Visit{
		ShortLinkID:     created.ID,
		IPAddress:       "203.0.113.7",
		Country:         "Germany",
		DeviceType:      "mobile",
		Platform:        "iOS",
		Browser:         "Safari",
		UTMSource:       "newsletter",
		QueryParameters: map[string]string{"ref": "spring"},
		SessionID:       "sess-1",
		VisitedAt:       day.Add(9 * time.Hour),
	}
	require.NoError(t, repo.InsertVisit(ctx, visit))
	require.NoError(t, repo.InsertVisit(ctx, &entity.Visit{
		ShortLinkID: created.ID,
		IPAddress:   "203.0.113.8",
		VisitedAt:   day.AddDate(0, 0, 1), // next day, outside the window
	}))

	visits, err := repo.VisitsOnDay(ctx, created.ID, day)

	assert.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "203.0.113.7", visits[0].IPAddress)
	assert.Equal(t, "Germany", visits[0].Country)
	assert.Equal(t, map[string]string{"ref": "spring"}, visits[0].QueryParameters)
	assert.True(t, visits[0].VisitedAt.Equal(day.Add(9*time.Hour)))

	ids, err := repo.LinkIDsVisitedOn(ctx, day)

	assert.NoError(t, err)
	assert.Equal(t, []int64{created.ID}, ids)
}

func TestRepository_DailyAnalytics(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	ctx := context.Background()
	repo := setupRepository(t)
	created := insertLink(t, ctx, repo, "abc123")

	day := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)

	rollup := &entity.DailyAnalytics{
		ShortLinkID:     created.ID,
		Date:            day,
		TotalClicks:     3,
		UniqueClicks:    2,
		UniqueVisitors:  2,
		ClicksByCountry: map[string]int64{"DE": 2, "FR": 1},
		ClicksByDevice:  map[string]int64{"mobile": 3},
	}
	rollup.ClicksByHour[9] = 2
	rollup.ClicksByHour[23] = 1

	require.NoError(t, repo.UpsertDailyAnalytics(ctx, rollup))

	// Re-aggregation of the same day replaces, never duplicates.
	rollup.TotalClicks = 4
	rollup.ClicksByCountry["DE"] = 3
	require.NoError(t, repo.UpsertDailyAnalytics(ctx, rollup))

	got, err := repo.AnalyticsRange(ctx, created.ID, day.AddDate(0, 0, -7), day)

	assert.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].TotalClicks)
	assert.Equal(t, int64(2), got[0].UniqueClicks)
	assert.Equal(t, map[string]int64{"DE": 3, "FR": 1}, got[0].ClicksByCountry)
	assert.Equal(t, map[string]int64{"mobile": 3}, got[0].ClicksByDevice)
	assert.Equal(t, int64(2), got[0].ClicksByHour[9])
	assert.Equal(t, int64(1), got[0].ClicksByHour[23])
	assert.True(t, got[0].Date.Equal(day))
}
