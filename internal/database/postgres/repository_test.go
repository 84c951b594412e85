package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shammaa/url-shortener/internal/entity"
	"github.com/stretchr/testify/assert"
)

var errUnknown = errors.New("unknown error")

var linkColumns = []string{
	"id", "key", "destination_url", "title", "description", "password", "password_protected",
	"activated_at", "expires_at", "is_active", "click_limit", "clicks_count",
	"track_visits", "track_ip_address", "track_user_agent", "track_referer", "track_geo",
	"utm_parameters", "utm_hidden", "redirect_status_code", "custom_domain", "qr_code_path",
	"owner_kind", "owner_id", "attached_kind", "attached_id", "metadata", "tags", "group",
	"first_clicked_at", "last_clicked_at", "created_at", "updated_at", "deleted_at",
}

func linkRows(key string) *sqlmock.Rows {
	return sqlmock.NewRows(linkColumns).AddRow(
		1, key, "https://example.com", "", "", "", false,
		nil, nil, true, nil, 0,
		true, true, true, true, false,
		[]byte(`{"utm_source":"news"}`), true, 302, "", "",
		nil, nil, nil, nil, nil, nil, "",
		nil, nil, time.Time{}, time.Time{}, nil,
	)
}

func setupRepository(t testing.TB) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	db := sqlx.NewDb(mockDB, "sqlmock")
	repo := NewRepository(db)

	t.Cleanup(func() {
		mockDB.Close()
		db.Close()
	})

	return repo, mock
}

func TestIsUniqueViolationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "unique violation error",
			err:  &pgconn.PgError{Code: uniqueViolationErrCode},
			want: true,
		},
		{
			name: "not unique violation error",
			err:  &pgconn.PgError{Code: "unknown error code"},
			want: false,
		},
		{
			name: "not PgError",
			err:  errors.New("unknown error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isUniqueViolationError(tt.err)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepository_InsertLink(t *testing.T) {
	link := &entity.Link{
		Key:            "abc123",
		DestinationURL: "https://example.com",
		IsActive:       true,
	}

	t.Run("key exists", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`INSERT INTO short_links`).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode})

		created, err := repo.InsertLink(context.TODO(), link)

		assert.ErrorIs(t, err, entity.ErrKeyExists)
		assert.Nil(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`INSERT INTO short_links`).
			WillReturnError(errUnknown)

		created, err := repo.InsertLink(context.TODO(), link)

		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`INSERT INTO short_links`).
			WillReturnRows(linkRows("abc123"))

		created, err := repo.InsertLink(context.TODO(), link)

		assert.NoError(t, err)
		assert.NotNil(t, created)
		assert.Equal(t, int64(1), created.ID)
		assert.Equal(t, "abc123", created.Key)
		assert.Equal(t, map[string]string{"utm_source": "news"}, created.UTMParameters)
		assert.Nil(t, created.Owner)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_FindLinkByKey(t *testing.T) {
	t.Run("link not found", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`SELECT \* FROM short_links`).
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		link, err := repo.FindLinkByKey(context.TODO(), "nope")

		assert.ErrorIs(t, err, entity.ErrLinkNotFound)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`SELECT \* FROM short_links`).
			WithArgs("abc123").
			WillReturnError(errUnknown)

		link, err := repo.FindLinkByKey(context.TODO(), "abc123")

		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, link)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`SELECT \* FROM short_links`).
			WithArgs("abc123").
			WillReturnRows(linkRows("abc123"))

		link, err := repo.FindLinkByKey(context.TODO(), "abc123")

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Equal(t, "abc123", link.Key)
		assert.True(t, link.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_ListLinks(t *testing.T) {
	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`SELECT \* FROM short_links WHERE deleted_at IS NULL`).
			WithArgs(15, 0).
			WillReturnError(errUnknown)

		links, err := repo.ListLinks(context.TODO(), 15, 0)

		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, links)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty page", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`SELECT \* FROM short_links WHERE deleted_at IS NULL`).
			WithArgs(15, 30).
			WillReturnRows(sqlmock.NewRows(linkColumns))

		links, err := repo.ListLinks(context.TODO(), 15, 30)

		assert.NoError(t, err)
		assert.Empty(t, links)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupRepository(t)

		rows := linkRows("newest").AddRow(
			2, "oldest", "https://example2.com", "", "", "", false,
			nil, nil, true, nil, 0,
			true, true, true, true, false,
			nil, true, 302, "", "",
			nil, nil, nil, nil, nil, nil, "",
			nil, nil, time.Time{}, time.Time{}, nil,
		)

		mock.ExpectQuery(`SELECT \* FROM short_links WHERE deleted_at IS NULL`).
			WithArgs(2, 0).
			WillReturnRows(rows)

		links, err := repo.ListLinks(context.TODO(), 2, 0)

		assert.NoError(t, err)
		assert.Len(t, links, 2)
		assert.Equal(t, "newest", links[0].Key)
		assert.Equal(t, "oldest", links[1].Key)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_KeyExists(t *testing.T) {
	t.Run("claimed key", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("abc123").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.KeyExists(context.TODO(), "abc123")

		assert.NoError(t, err)
		assert.True(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("free key", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("free").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		exists, err := repo.KeyExists(context.TODO(), "free")

		assert.NoError(t, err)
		assert.False(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_SoftDeleteLink(t *testing.T) {
	t.Run("link not found", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectExec(`UPDATE short_links SET deleted_at`).
			WithArgs("nope").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SoftDeleteLink(context.TODO(), "nope")

		assert.ErrorIs(t, err, entity.ErrLinkNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectExec(`UPDATE short_links SET deleted_at`).
			WithArgs("abc123").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SoftDeleteLink(context.TODO(), "abc123")

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_IncrementClicks(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	t.Run("link not found", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectExec(`UPDATE short_links SET\s+clicks_count = clicks_count \+ 1`).
			WithArgs(int64(404), now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.IncrementClicks(context.TODO(), 404, now)

		assert.ErrorIs(t, err, entity.ErrLinkNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectExec(`UPDATE short_links SET\s+clicks_count = clicks_count \+ 1`).
			WithArgs(int64(1), now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.IncrementClicks(context.TODO(), 1, now)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_UpdateLink(t *testing.T) {
	link := &entity.Link{
		ID:             1,
		Key:            "abc123",
		DestinationURL: "https://example.com",
		IsActive:       true,
	}

	t.Run("tombstoned link yields not found", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`UPDATE short_links`).
			WillReturnRows(sqlmock.NewRows(linkColumns))

		updated, err := repo.UpdateLink(context.TODO(), link)

		assert.ErrorIs(t, err, entity.ErrLinkNotFound)
		assert.Nil(t, updated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupRepository(t)

		mock.ExpectQuery(`UPDATE short_links`).
			WillReturnRows(linkRows("abc123"))

		updated, err := repo.UpdateLink(context.TODO(), link)

		assert.NoError(t, err)
		assert.NotNil(t, updated)
		assert.Equal(t, "abc123", updated.Key)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
