// Package postgres implements the store capabilities on PostgreSQL via sqlx.
// The key's unique constraint is the single arbiter of key reservation, and
// click counting is one atomic UPDATE, so concurrent visits never lose
// updates.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shammaa/url-shortener/internal/entity"
)

const uniqueViolationErrCode = "23505"

func isUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type linkRow struct {
	ID                 int64      `db:"id"`
	Key                string     `db:"key"`
	DestinationURL     string     `db:"destination_url"`
	Title              string     `db:"title"`
	Description        string     `db:"description"`
	Password           string     `db:"password"`
	PasswordProtected  bool       `db:"password_protected"`
	ActivatedAt        *time.Time `db:"activated_at"`
	ExpiresAt          *time.Time `db:"expires_at"`
	IsActive           bool       `db:"is_active"`
	ClickLimit         *int64     `db:"click_limit"`
	ClicksCount        int64      `db:"clicks_count"`
	TrackVisits        bool       `db:"track_visits"`
	TrackIPAddress     bool       `db:"track_ip_address"`
	TrackUserAgent     bool       `db:"track_user_agent"`
	TrackReferer       bool       `db:"track_referer"`
	TrackGeo           bool       `db:"track_geo"`
	UTMParameters      []byte     `db:"utm_parameters"`
	UTMHidden          bool       `db:"utm_hidden"`
	RedirectStatusCode int        `db:"redirect_status_code"`
	CustomDomain       string     `db:"custom_domain"`
	QRCodePath         string     `db:"qr_code_path"`
	OwnerKind          *string    `db:"owner_kind"`
	OwnerID            *int64     `db:"owner_id"`
	AttachedKind       *string    `db:"attached_kind"`
	AttachedID         *int64     `db:"attached_id"`
	Metadata           []byte     `db:"metadata"`
	Tags               []byte     `db:"tags"`
	Group              string     `db:"group"`
	FirstClickedAt     *time.Time `db:"first_clicked_at"`
	LastClickedAt      *time.Time `db:"last_clicked_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

func (r *linkRow) toEntity() (*entity.Link, error) {
	link := &entity.Link{
		ID:                 r.ID,
		Key:                r.Key,
		DestinationURL:     r.DestinationURL,
		Title:              r.Title,
		Description:        r.Description,
		PasswordHash:       r.Password,
		PasswordProtected:  r.PasswordProtected,
		ActivatedAt:        r.ActivatedAt,
		ExpiresAt:          r.ExpiresAt,
		IsActive:           r.IsActive,
		ClickLimit:         r.ClickLimit,
		ClicksCount:        r.ClicksCount,
		TrackVisits:        r.TrackVisits,
		TrackIPAddress:     r.TrackIPAddress,
		TrackUserAgent:     r.TrackUserAgent,
		TrackReferer:       r.TrackReferer,
		TrackGeo:           r.TrackGeo,
		UTMHidden:          r.UTMHidden,
		RedirectStatusCode: r.RedirectStatusCode,
		CustomDomain:       r.CustomDomain,
		QRCodePath:         r.QRCodePath,
		Group:              r.Group,
		FirstClickedAt:     r.FirstClickedAt,
		LastClickedAt:      r.LastClickedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		DeletedAt:          r.DeletedAt,
	}

	if r.OwnerKind != nil && r.OwnerID != nil {
		link.Owner = &entity.Ref{Kind: *r.OwnerKind, ID: *r.OwnerID}
	}
	if r.AttachedKind != nil && r.AttachedID != nil {
		link.Attached = &entity.Ref{Kind: *r.AttachedKind, ID: *r.AttachedID}
	}

	if err := unmarshalJSON(r.UTMParameters, &link.UTMParameters); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(r.Metadata, &link.Metadata); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(r.Tags, &link.Tags); err != nil {
		return nil, err
	}

	return link, nil
}

func linkToRow(link *entity.Link) (*linkRow, error) {
	row := &linkRow{
		ID:                 link.ID,
		Key:                link.Key,
		DestinationURL:     link.DestinationURL,
		Title:              link.Title,
		Description:        link.Description,
		Password:           link.PasswordHash,
		PasswordProtected:  link.PasswordProtected,
		ActivatedAt:        link.ActivatedAt,
		ExpiresAt:          link.ExpiresAt,
		IsActive:           link.IsActive,
		ClickLimit:         link.ClickLimit,
		ClicksCount:        link.ClicksCount,
		TrackVisits:        link.TrackVisits,
		TrackIPAddress:     link.TrackIPAddress,
		TrackUserAgent:     link.TrackUserAgent,
		TrackReferer:       link.TrackReferer,
		TrackGeo:           link.TrackGeo,
		UTMHidden:          link.UTMHidden,
		RedirectStatusCode: link.RedirectStatusCode,
		CustomDomain:       link.CustomDomain,
		QRCodePath:         link.QRCodePath,
		Group:              link.Group,
		FirstClickedAt:     link.FirstClickedAt,
		LastClickedAt:      link.LastClickedAt,
	}

	if link.Owner != nil {
		row.OwnerKind = &link.Owner.Kind
		row.OwnerID = &link.Owner.ID
	}
	if link.Attached != nil {
		row.AttachedKind = &link.Attached.Kind
		row.AttachedID = &link.Attached.ID
	}

	var err error
	if row.UTMParameters, err = marshalJSON(link.UTMParameters, len(link.UTMParameters) == 0); err != nil {
		return nil, err
	}
	if row.Metadata, err = marshalJSON(link.Metadata, len(link.Metadata) == 0); err != nil {
		return nil, err
	}
	if row.Tags, err = marshalJSON(link.Tags, len(link.Tags) == 0); err != nil {
		return nil, err
	}

	return row, nil
}

func (r *Repository) InsertLink(ctx context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "database.postgres.Repository.InsertLink"
	const query = `INSERT INTO short_links (
			key, destination_url, title, description, password, password_protected,
			activated_at, expires_at, is_active, click_limit, clicks_count,
			track_visits, track_ip_address, track_user_agent, track_referer, track_geo,
			utm_parameters, utm_hidden, redirect_status_code, custom_domain, qr_code_path,
			owner_kind, owner_id, attached_kind, attached_id, metadata, tags, "group",
			first_clicked_at, last_clicked_at
		) VALUES (
			:key, :destination_url, :title, :description, :password, :password_protected,
			:activated_at, :expires_at, :is_active, :click_limit, :clicks_count,
			:track_visits, :track_ip_address, :track_user_agent, :track_referer, :track_geo,
			:utm_parameters, :utm_hidden, :redirect_status_code, :custom_domain, :qr_code_path,
			:owner_kind, :owner_id, :attached_kind, :attached_id, :metadata, :tags, :group,
			:first_clicked_at, :last_clicked_at
		) RETURNING *`

	row, err := linkToRow(link)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode link: %w", op, err)
	}

	rows, err := sqlx.NamedQueryContext(ctx, r.db, query, row)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrKeyExists)
		}

		return nil, fmt.Errorf("%s: failed to insert into short_links: %w", op, err)
	}
	defer rows.Close()

	return scanLink(rows, op)
}

func (r *Repository) FindLinkByKey(ctx context.Context, key string) (*entity.Link, error) {
	const op = "database.postgres.Repository.FindLinkByKey"
	const query = `SELECT * FROM short_links WHERE key = $1 AND deleted_at IS NULL`

	var row linkRow

	if err := r.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get short_links row: %w", op, err)
	}

	link, err := row.toEntity()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to decode link: %w", op, err)
	}

	return link, nil
}

// ListLinks returns a page of live links, newest first. Tombstoned rows stay
// out of listings even though their keys remain claimed.
func (r *Repository) ListLinks(ctx context.Context, limit, offset int) ([]*entity.Link, error) {
	const op = "database.postgres.Repository.ListLinks"
	const query = `SELECT * FROM short_links WHERE deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	var rows []linkRow

	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("%s: failed to select short_links rows: %w", op, err)
	}

	links := make([]*entity.Link, 0, len(rows))

	for i := range rows {
		link, err := rows[i].toEntity()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to decode link: %w", op, err)
		}

		links = append(links, link)
	}

	return links, nil
}

// KeyExists reports whether a key was ever claimed, tombstoned rows
// included. Claimed key space is never reused.
func (r *Repository) KeyExists(ctx context.Context, key string) (bool, error) {
	const op = "database.postgres.Repository.KeyExists"
	const query = `SELECT EXISTS (SELECT 1 FROM short_links WHERE key = $1)`

	var exists bool

	if err := r.db.GetContext(ctx, &exists, query, key); err != nil {
		return false, fmt.Errorf("%s: failed to check key: %w", op, err)
	}

	return exists, nil
}

func (r *Repository) UpdateLink(ctx context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "database.postgres.Repository.UpdateLink"
	const query = `UPDATE short_links SET
			destination_url = :destination_url,
			title = :title,
			description = :description,
			password = :password,
			password_protected = :password_protected,
			activated_at = :activated_at,
			expires_at = :expires_at,
			is_active = :is_active,
			click_limit = :click_limit,
			utm_parameters = :utm_parameters,
			utm_hidden = :utm_hidden,
			redirect_status_code = :redirect_status_code,
			custom_domain = :custom_domain,
			qr_code_path = :qr_code_path,
			attached_kind = :attached_kind,
			attached_id = :attached_id,
			metadata = :metadata,
			tags = :tags,
			"group" = :group,
			updated_at = now()
		WHERE id = :id AND deleted_at IS NULL
		RETURNING *`

	row, err := linkToRow(link)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode link: %w", op, err)
	}

	rows, err := sqlx.NamedQueryContext(ctx, r.db, query, row)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to update short_links row: %w", op, err)
	}
	defer rows.Close()

	return scanLink(rows, op)
}

func (r *Repository) SoftDeleteLink(ctx context.Context, key string) error {
	const op = "database.postgres.Repository.SoftDeleteLink"
	const query = `UPDATE short_links SET deleted_at = now(), updated_at = now()
		WHERE key = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("%s: failed to soft-delete short_links row: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if affected != 1 {
		return fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	return nil
}

// IncrementClicks advances the click counter and the first/last clicked
// timestamps in one statement. COALESCE keeps first_clicked_at write-once
// without a read-modify-write round trip.
func (r *Repository) IncrementClicks(ctx context.Context, id int64, now time.Time) error {
	const op = "database.postgres.Repository.IncrementClicks"
	const query = `UPDATE short_links SET
			clicks_count = clicks_count + 1,
			first_clicked_at = COALESCE(first_clicked_at, $2),
			last_clicked_at = $2,
			updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("%s: failed to increment clicks: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if affected != 1 {
		return fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	return nil
}

func scanLink(rows *sqlx.Rows, op string) (*entity.Link, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			if isUniqueViolationError(err) {
				return nil, fmt.Errorf("%s: %w", op, entity.ErrKeyExists)
			}

			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	var row linkRow
	if err := rows.StructScan(&row); err != nil {
		return nil, fmt.Errorf("%s: failed to scan short_links row: %w", op, err)
	}

	link, err := row.toEntity()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to decode link: %w", op, err)
	}

	return link, nil
}

func marshalJSON(v any, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}

	return json.Marshal(v)
}

func unmarshalJSON(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}

	return json.Unmarshal(raw, v)
}
