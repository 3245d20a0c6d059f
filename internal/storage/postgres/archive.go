package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"microblog/internal/domain"
)

const archiveColumns = `id, queue_id, text, image_ref, link_url, headline, summary, thumbnail,
	post_to_bluesky, post_to_mastodon, created_at, published_at, outcomes`

type ArchiveStore struct {
	db *sqlx.DB
}

func NewArchiveStore(db *sqlx.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

type archiveRow struct {
	ID             int64     `db:"id"`
	QueueID        *int64    `db:"queue_id"`
	Text           string    `db:"text"`
	ImageRef       *string   `db:"image_ref"`
	LinkURL        *string   `db:"link_url"`
	Headline       *string   `db:"headline"`
	Summary        *string   `db:"summary"`
	Thumbnail      []byte    `db:"thumbnail"`
	PostToBluesky  bool      `db:"post_to_bluesky"`
	PostToMastodon bool      `db:"post_to_mastodon"`
	CreatedAt      time.Time `db:"created_at"`
	PublishedAt    time.Time `db:"published_at"`
	Outcomes       []byte    `db:"outcomes"`
}

func (r archiveRow) toDomain() (domain.ArchiveEntry, error) {
	outcomes := domain.Outcomes{}
	if len(r.Outcomes) > 0 {
		if err := json.Unmarshal(r.Outcomes, &outcomes); err != nil {
			return domain.ArchiveEntry{}, fmt.Errorf("decode outcomes of entry %d: %w", r.ID, err)
		}
	}
	return domain.ArchiveEntry{
		ID:             r.ID,
		QueueID:        r.QueueID,
		Text:           r.Text,
		ImageRef:       r.ImageRef,
		LinkURL:        r.LinkURL,
		Headline:       r.Headline,
		Summary:        r.Summary,
		Thumbnail:      r.Thumbnail,
		PostToBluesky:  r.PostToBluesky,
		PostToMastodon: r.PostToMastodon,
		CreatedAt:      r.CreatedAt,
		PublishedAt:    r.PublishedAt,
		Outcomes:       outcomes,
	}, nil
}

func (s *ArchiveStore) Append(ctx context.Context, entry *domain.ArchiveEntry) (int64, error) {
	outcomes := entry.Outcomes
	if outcomes == nil {
		outcomes = domain.Outcomes{}
	}
	raw, err := json.Marshal(outcomes)
	if err != nil {
		return 0, fmt.Errorf("encode outcomes: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = entry.PublishedAt
	}

	query := `
		INSERT INTO archive_entries (
			queue_id, text, image_ref, link_url, headline, summary, thumbnail,
			post_to_bluesky, post_to_mastodon, created_at, published_at, outcomes
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		RETURNING id`

	err = GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		entry.QueueID,
		entry.Text,
		entry.ImageRef,
		entry.LinkURL,
		entry.Headline,
		entry.Summary,
		entry.Thumbnail,
		entry.PostToBluesky,
		entry.PostToMastodon,
		createdAt,
		entry.PublishedAt,
		raw,
	).Scan(&entry.ID)
	if err != nil {
		return 0, domain.NewStorageError("append archive entry", err)
	}
	return entry.ID, nil
}

// Search returns entries containing query, newest first.
func (s *ArchiveStore) Search(ctx context.Context, query string) ([]domain.ArchiveEntry, error) {
	where, args := searchClause(query)
	q := `SELECT ` + archiveColumns + ` FROM archive_entries` + where + ` ORDER BY published_at DESC, id DESC`
	return s.selectEntries(ctx, q, args...)
}

// Since returns link posts published after t, oldest first. A zero t returns all of them.
func (s *ArchiveStore) Since(ctx context.Context, t time.Time) ([]domain.ArchiveEntry, error) {
	q := `SELECT ` + archiveColumns + ` FROM archive_entries
		WHERE link_url IS NOT NULL AND link_url <> '' AND published_at > $1
		ORDER BY published_at, id`
	return s.selectEntries(ctx, q, t)
}

// Page returns the 1-based page of entries matching query, newest first.
func (s *ArchiveStore) Page(ctx context.Context, query string, page, perPage int) (domain.Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		return domain.Page{}, fmt.Errorf("page size must be positive, got %d", perPage)
	}

	where, args := searchClause(query)
	exec := GetExecutor(ctx, s.db)

	var total int
	if err := sqlx.GetContext(ctx, exec, &total, `SELECT COUNT(*) FROM archive_entries`+where, args...); err != nil {
		return domain.Page{}, domain.NewStorageError("count archive", err)
	}

	n := len(args)
	q := fmt.Sprintf(`SELECT %s FROM archive_entries%s ORDER BY published_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		archiveColumns, where, n+1, n+2)
	args = append(args, perPage, (page-1)*perPage)

	entries, err := s.selectEntries(ctx, q, args...)
	if err != nil {
		return domain.Page{}, err
	}
	return domain.NewPage(entries, total, page, perPage), nil
}

func (s *ArchiveStore) selectEntries(ctx context.Context, query string, args ...interface{}) ([]domain.ArchiveEntry, error) {
	var rows []archiveRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, args...); err != nil {
		return nil, domain.NewStorageError("select archive", err)
	}

	entries := make([]domain.ArchiveEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func searchClause(query string) (string, []interface{}) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}
	pattern := "%" + likeEscaper.Replace(query) + "%"
	return ` WHERE text ILIKE $1 OR headline ILIKE $1 OR summary ILIKE $1 OR link_url ILIKE $1`,
		[]interface{}{pattern}
}
