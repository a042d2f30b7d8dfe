package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/infra/metrics"
)

// Postgres implements the repositories over pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ContentRepo     = (*Postgres)(nil)
	_ domain.PublicationRepo = (*Postgres)(nil)
)

// NewPostgres creates the database adapter.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func statusStrings(states []domain.PublicationStatus) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, string(s))
	}
	return out
}

func tierStrings(tiers []domain.Tier) []string {
	out := make([]string, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, string(t))
	}
	return out
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

const contentColumns = `id, source_id, source, source_url, source_author, source_date, title, summary, categories, tickers, score, tier, approval_state, published, absorbed_into, card_image_url, original_image_url, created_at`

func scanContentItem(row pgx.Row) (domain.ContentItem, error) {
	var (
		item         domain.ContentItem
		sourceAuthor sql.NullString
		sourceDate   sql.NullTime
		absorbedInto uuid.NullUUID
		cardURL      sql.NullString
		originalURL  sql.NullString
	)
	err := row.Scan(&item.ID, &item.SourceID, &item.Source, &item.SourceURL, &sourceAuthor, &sourceDate, &item.Title, &item.Summary, &item.Categories, &item.Tickers, &item.Score, &item.Tier, &item.ApprovalState, &item.Published, &absorbedInto, &cardURL, &originalURL, &item.CreatedAt)
	if err != nil {
		return domain.ContentItem{}, err
	}
	if sourceAuthor.Valid {
		item.SourceAuthor = sourceAuthor.String
	}
	if sourceDate.Valid {
		ts := sourceDate.Time
		item.SourceDate = &ts
	}
	if absorbedInto.Valid {
		id := absorbedInto.UUID
		item.AbsorbedInto = &id
	}
	if cardURL.Valid {
		item.CardImageURL = cardURL.String
	}
	if originalURL.Valid {
		item.OriginalImageURL = originalURL.String
	}
	return item, nil
}

// GetItem implements domain.ContentRepo.
func (p *Postgres) GetItem(id uuid.UUID) (domain.ContentItem, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+contentColumns+`
FROM content_items WHERE id = $1
`, id)
	item, err := scanContentItem(row)
	metrics.ObserveNetworkRequest("postgres", "content_items_get", "content_items", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ContentItem{}, domain.ErrContentNotFound
	}
	if err != nil {
		return domain.ContentItem{}, err
	}
	return item, nil
}

// UpsertItems stores incoming items in one batch, skipping source_id duplicates.
func (p *Postgres) UpsertItems(items []domain.ContentItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
INSERT INTO content_items (source_id, source, source_url, source_author, source_date, title, summary, categories, tickers, score, tier, approval_state, original_image_url)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, COALESCE($8, '{}'), COALESCE($9, '{}'), $10, $11, $12, NULLIF($13, ''))
ON CONFLICT (source_id) DO NOTHING
`, item.SourceID, item.Source, item.SourceURL, item.SourceAuthor, item.SourceDate, item.Title, item.Summary, item.Categories, item.Tickers, item.Score, item.Tier, item.ApprovalState, item.OriginalImageURL)
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "content_items_send_batch", "content_items", start, nil)
	defer br.Close()
	inserted := 0
	for range items {
		start = time.Now()
		tag, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "content_items_batch_exec", "content_items", start, err)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// CreateItem inserts a single item and returns it with generated fields.
func (p *Postgres) CreateItem(item domain.ContentItem) (domain.ContentItem, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO content_items (source_id, source, source_url, source_author, source_date, title, summary, categories, tickers, score, tier, approval_state, original_image_url)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, COALESCE($8, '{}'), COALESCE($9, '{}'), $10, $11, $12, NULLIF($13, ''))
RETURNING id, created_at
`, item.SourceID, item.Source, item.SourceURL, item.SourceAuthor, item.SourceDate, item.Title, item.Summary, item.Categories, item.Tickers, item.Score, item.Tier, item.ApprovalState, item.OriginalImageURL).Scan(&item.ID, &item.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "content_items_insert", "content_items", start, err)
	if err != nil {
		return domain.ContentItem{}, err
	}
	return item, nil
}

// ListEligible returns approved, unpublished, unabsorbed items inside the
// profile band whose record is absent or still in a pre-state, best first.
func (p *Postgres) ListEligible(profile domain.SelectionProfile, limit int) ([]domain.ContentItem, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT c.id, c.source_id, c.source, c.source_url, c.source_author, c.source_date, c.title, c.summary, c.categories, c.tickers, c.score, c.tier, c.approval_state, c.published, c.absorbed_into, c.card_image_url, c.original_image_url, c.created_at
FROM content_items c
LEFT JOIN publication_records r ON r.content_id = c.id
WHERE c.approval_state = 'approved'
  AND NOT c.published
  AND c.absorbed_into IS NULL
  AND c.tier = ANY($1)
  AND c.score >= $2
  AND ($3 = 0 OR c.score < $3)
  AND (r.content_id IS NULL OR r.status IN ('draft', 'approved'))
ORDER BY c.score DESC, c.created_at ASC
LIMIT $4
`, tierStrings(profile.Tiers), profile.MinScore, profile.MaxScore, limit)
	metrics.ObserveNetworkRequest("postgres", "content_items_list_eligible", "content_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetCardImage stores the rendered card URL for later reuse.
func (p *Postgres) SetCardImage(id uuid.UUID, url string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE content_items SET card_image_url = NULLIF($2, '') WHERE id = $1
`, id, url)
	metrics.ObserveNetworkRequest("postgres", "content_items_set_card", "content_items", start, err)
	return err
}

// AbsorbIntoDigest claims the given members for a digest post. A member is
// claimed only while its record is absent or still in a pre-state, so an
// item being posted concurrently is left out. Returns the claimed IDs.
func (p *Postgres) AbsorbIntoDigest(digestID uuid.UUID, memberIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
WITH claimed AS (
    INSERT INTO publication_records (content_id, status, attempts, updated_at)
    SELECT unnest($2::uuid[]), 'skipped', 0, now()
    ON CONFLICT (content_id) DO UPDATE
        SET status = 'skipped', updated_at = now()
        WHERE publication_records.status IN ('draft', 'approved')
    RETURNING content_id
)
UPDATE content_items SET absorbed_into = $1
FROM claimed
WHERE content_items.id = claimed.content_id
RETURNING content_items.id
`, digestID, uuidStrings(memberIDs))
	metrics.ObserveNetworkRequest("postgres", "content_items_absorb", "content_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var absorbed []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		absorbed = append(absorbed, id)
	}
	return absorbed, rows.Err()
}

// GetRecord implements domain.PublicationRepo.
func (p *Postgres) GetRecord(contentID uuid.UUID) (domain.PublicationRecord, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var (
		rec       domain.PublicationRecord
		attemptAt sql.NullTime
		lastErr   sql.NullString
		postID    sql.NullString
		postURL   sql.NullString
		approved  sql.NullString
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT content_id, status, attempts, last_attempt_at, last_error, external_post_id, external_post_url, image_source, approved_by, updated_at
FROM publication_records WHERE content_id = $1
`, contentID).Scan(&rec.ContentID, &rec.Status, &rec.Attempts, &attemptAt, &lastErr, &postID, &postURL, &rec.ImageSource, &approved, &rec.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "publication_records_get", "publication_records", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PublicationRecord{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.PublicationRecord{}, err
	}
	if attemptAt.Valid {
		ts := attemptAt.Time
		rec.LastAttemptAt = &ts
	}
	if lastErr.Valid {
		rec.LastError = lastErr.String
	}
	if postID.Valid {
		rec.ExternalPostID = postID.String
	}
	if postURL.Valid {
		rec.ExternalPostURL = postURL.String
	}
	if approved.Valid {
		rec.ApprovedBy = approved.String
	}
	return rec, nil
}

// AcquireForPosting atomically moves a record into posting when its current
// status is one of preStates, creating the record when none exists yet.
// Reports the attempt number and whether the caller now holds the item.
func (p *Postgres) AcquireForPosting(contentID uuid.UUID, preStates []domain.PublicationStatus) (int, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var attempts int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO publication_records (content_id, status, attempts, last_attempt_at, updated_at)
VALUES ($1, 'posting', 1, now(), now())
ON CONFLICT (content_id) DO UPDATE
    SET status = 'posting',
        attempts = publication_records.attempts + 1,
        last_error = NULL,
        last_attempt_at = now(),
        updated_at = now()
    WHERE publication_records.status = ANY($2)
RETURNING attempts
`, contentID, statusStrings(preStates)).Scan(&attempts)
	metrics.ObserveNetworkRequest("postgres", "publication_records_acquire", "publication_records", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return attempts, true, nil
}

// FinishPublished records a successful post: the record becomes published,
// the item is marked posted and the posting log gains one entry covering the
// item plus everything absorbed into it.
func (p *Postgres) FinishPublished(outcome domain.PublishedOutcome) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "publication_records", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	tag, err := tx.Exec(ctx, `
UPDATE publication_records
SET status = 'published',
    last_error = NULL,
    external_post_id = $2,
    external_post_url = $3,
    image_source = $4,
    approved_by = COALESCE(NULLIF($5, ''), approved_by),
    updated_at = now()
WHERE content_id = $1
`, outcome.ContentID, outcome.ExternalPostID, outcome.ExternalPostURL, outcome.ImageSource, outcome.ApprovedBy)
	metrics.ObserveNetworkRequest("postgres", "publication_records_publish", "publication_records", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `UPDATE content_items SET published = true WHERE id = $1`, outcome.ContentID)
	metrics.ObserveNetworkRequest("postgres", "content_items_mark_published", "content_items", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO posting_log (post_type, external_post_id, content_ids)
VALUES ($2, $3, ARRAY(SELECT id FROM content_items WHERE absorbed_into = $1) || $1)
`, outcome.ContentID, outcome.PostType, outcome.ExternalPostID)
	metrics.ObserveNetworkRequest("postgres", "posting_log_insert", "posting_log", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "publication_records", start, err)
	return err
}

// FinishFailed records a failed attempt and leaves the record in next.
func (p *Postgres) FinishFailed(contentID uuid.UUID, next domain.PublicationStatus, lastError string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE publication_records
SET status = $2,
    last_error = NULLIF($3, ''),
    updated_at = now()
WHERE content_id = $1
`, contentID, next, domain.TruncateError(lastError))
	metrics.ObserveNetworkRequest("postgres", "publication_records_fail", "publication_records", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// SetImageSource stores the image chain outcome for the item.
func (p *Postgres) SetImageSource(contentID uuid.UUID, source domain.ImageSource) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE publication_records SET image_source = $2, updated_at = now() WHERE content_id = $1
`, contentID, source)
	metrics.ObserveNetworkRequest("postgres", "publication_records_set_image", "publication_records", start, err)
	return err
}

// CountPostedSince counts posting log entries at or after the given time.
func (p *Postgres) CountPostedSince(since time.Time) (int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM posting_log WHERE posted_at >= $1
`, since).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "posting_log_count_since", "posting_log", start, err)
	return count, err
}
