package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteSchema is the schema for the SQLite backend. The unique indexes on
// articles.id and feeds.url are the durability backstop for deduplication.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS articles (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    description  TEXT,
    content      TEXT,
    url          TEXT NOT NULL UNIQUE,
    source       TEXT NOT NULL,
    author       TEXT,
    category     TEXT,
    language     TEXT,
    image_url    TEXT,
    published_at TIMESTAMP NOT NULL,
    fetched_at   TIMESTAMP NOT NULL,
    sentiment_score      REAL NOT NULL DEFAULT 0,
    sentiment_confidence REAL NOT NULL DEFAULT 0,
    sentiment_label      TEXT NOT NULL DEFAULT 'neutral',
    emotions     TEXT,
    keywords     TEXT,
    entities     TEXT,
    readability  REAL NOT NULL DEFAULT 0,
    word_count   INTEGER NOT NULL DEFAULT 0,
    share_count  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS feeds (
    url             TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    category        TEXT,
    active          INTEGER NOT NULL DEFAULT 1,
    fetch_interval  INTEGER NOT NULL DEFAULT 0,
    max_articles    INTEGER NOT NULL DEFAULT 0,
    last_fetched_at TIMESTAMP,
    last_success_at TIMESTAMP,
    error_count     INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT
);

CREATE TABLE IF NOT EXISTS keyword_tracks (
    keyword                  TEXT PRIMARY KEY,
    category                 TEXT,
    active                   INTEGER NOT NULL DEFAULT 1,
    sentiment_change_percent REAL NOT NULL DEFAULT 0,
    volume_spike_percent     REAL NOT NULL DEFAULT 0,
    created_at               TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS alerts (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    kind       TEXT NOT NULL,
    keyword    TEXT,
    message    TEXT NOT NULL,
    severity   TEXT NOT NULL,
    read       INTEGER NOT NULL DEFAULT 0,
    sent       INTEGER NOT NULL DEFAULT 0,
    payload    TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    timeframe    TEXT NOT NULL,
    bucket_start TIMESTAMP NOT NULL,
    metrics      TEXT NOT NULL,
    created_at   TIMESTAMP NOT NULL,
    PRIMARY KEY (timeframe, bucket_start)
);

CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);
CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
`

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and initializes the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for concurrent readers while a cycle is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// --- Articles ---

func (s *SQLiteStore) InsertArticle(ctx context.Context, a *Article) (bool, error) {
	emotions, _ := json.Marshal(a.Sentiment.Emotions)
	keywords, _ := json.Marshal(a.Keywords)
	entities, _ := json.Marshal(a.Entities)

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO articles
		(id, title, description, content, url, source, author, category, language, image_url,
		 published_at, fetched_at,
		 sentiment_score, sentiment_confidence, sentiment_label, emotions,
		 keywords, entities, readability, word_count, share_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Description, a.Content, a.URL, a.Source, a.Author, a.Category,
		a.Language, a.ImageURL, a.PublishedAt, a.FetchedAt,
		a.Sentiment.Score, a.Sentiment.Confidence, a.Sentiment.Label, string(emotions),
		string(keywords), string(entities), a.Readability, a.WordCount, a.ShareCount)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) HasArticle(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM articles WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const articleColumns = `id, title, description, content, url, source, author, category,
	language, image_url, published_at, fetched_at,
	sentiment_score, sentiment_confidence, sentiment_label, emotions,
	keywords, entities, readability, word_count, share_count`

func scanArticle(rows *sql.Rows) (Article, error) {
	var a Article
	var desc, content, author, category, language, imageURL sql.NullString
	var emotions, keywords, entities sql.NullString
	if err := rows.Scan(&a.ID, &a.Title, &desc, &content, &a.URL, &a.Source, &author,
		&category, &language, &imageURL, &a.PublishedAt, &a.FetchedAt,
		&a.Sentiment.Score, &a.Sentiment.Confidence, &a.Sentiment.Label, &emotions,
		&keywords, &entities, &a.Readability, &a.WordCount, &a.ShareCount); err != nil {
		return Article{}, err
	}
	a.Description = desc.String
	a.Content = content.String
	a.Author = author.String
	a.Category = category.String
	a.Language = language.String
	a.ImageURL = imageURL.String
	if emotions.Valid && emotions.String != "" {
		json.Unmarshal([]byte(emotions.String), &a.Sentiment.Emotions)
	}
	if keywords.Valid && keywords.String != "" {
		json.Unmarshal([]byte(keywords.String), &a.Keywords)
	}
	if entities.Valid && entities.String != "" {
		json.Unmarshal([]byte(entities.String), &a.Entities)
	}
	return a, nil
}

func (s *SQLiteStore) queryArticles(ctx context.Context, query string, args ...any) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) ArticlesBetween(ctx context.Context, from, to time.Time, limit int) ([]Article, error) {
	return s.queryArticles(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE published_at >= ? AND published_at < ?
		ORDER BY published_at DESC LIMIT ?`, from, to, limit)
}

func (s *SQLiteStore) ArticlesMentioning(ctx context.Context, keyword string, from, to time.Time) ([]Article, error) {
	pattern := "%" + keyword + "%"
	return s.queryArticles(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE published_at >= ? AND published_at < ?
		  AND (title LIKE ? COLLATE NOCASE
		    OR content LIKE ? COLLATE NOCASE
		    OR keywords LIKE ? COLLATE NOCASE)
		ORDER BY published_at DESC`, from, to, pattern, pattern, pattern)
}

func (s *SQLiteStore) CountArticlesBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE published_at >= ? AND published_at < ?`,
		from, to).Scan(&count)
	return count, err
}

// --- Feeds ---

func (s *SQLiteStore) UpsertFeed(ctx context.Context, f *Feed) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (url, name, category, active, fetch_interval, max_articles)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			active = excluded.active,
			fetch_interval = excluded.fetch_interval,
			max_articles = excluded.max_articles`,
		f.URL, f.Name, f.Category, f.Active, int64(f.FetchInterval), f.MaxArticles)
	if err != nil {
		return fmt.Errorf("upsert feed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, name, category, active, fetch_interval, max_articles,
		       last_fetched_at, last_success_at, error_count, last_error
		FROM feeds WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Feed
	for rows.Next() {
		var f Feed
		var category, lastError sql.NullString
		var interval int64
		var lastFetched, lastSuccess sql.NullTime
		if err := rows.Scan(&f.URL, &f.Name, &category, &f.Active, &interval,
			&f.MaxArticles, &lastFetched, &lastSuccess, &f.ErrorCount, &lastError); err != nil {
			return nil, err
		}
		f.Category = category.String
		f.FetchInterval = time.Duration(interval)
		f.LastFetchedAt = lastFetched.Time
		f.LastSuccessAt = lastSuccess.Time
		f.LastError = lastError.String
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) MarkFeedSuccess(ctx context.Context, url string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET last_fetched_at = ?, last_success_at = ?, error_count = 0, last_error = NULL
		WHERE url = ?`, at, at, url)
	return err
}

func (s *SQLiteStore) MarkFeedError(ctx context.Context, url string, msg string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET last_fetched_at = ?, error_count = error_count + 1, last_error = ?
		WHERE url = ?`, at, msg, url)
	return err
}

// --- Keyword tracks ---

func (s *SQLiteStore) UpsertTrack(ctx context.Context, t *KeywordTrack) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keyword_tracks (keyword, category, active, sentiment_change_percent, volume_spike_percent)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(keyword) DO UPDATE SET
			category = excluded.category,
			active = excluded.active,
			sentiment_change_percent = excluded.sentiment_change_percent,
			volume_spike_percent = excluded.volume_spike_percent`,
		t.Keyword, t.Category, t.Active, t.SentimentChangePercent, t.VolumeSpikePercent)
	if err != nil {
		return fmt.Errorf("upsert track: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveTracks(ctx context.Context) ([]KeywordTrack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword, category, active, sentiment_change_percent, volume_spike_percent, created_at
		FROM keyword_tracks WHERE active = 1 ORDER BY keyword`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []KeywordTrack
	for rows.Next() {
		var t KeywordTrack
		var category sql.NullString
		if err := rows.Scan(&t.Keyword, &category, &t.Active,
			&t.SentimentChangePercent, &t.VolumeSpikePercent, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Category = category.String
		result = append(result, t)
	}
	return result, rows.Err()
}

// --- Alerts ---

func (s *SQLiteStore) InsertAlert(ctx context.Context, a *Alert) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (kind, keyword, message, severity, read, sent, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Kind, a.Keyword, a.Message, a.Severity, a.Read, a.Sent, string(a.Payload), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = strconv.FormatInt(id, 10)
	}
	return nil
}

func (s *SQLiteStore) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, keyword, message, severity, read, sent, payload, created_at
		FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Alert
	for rows.Next() {
		var a Alert
		var id int64
		var keyword, payload sql.NullString
		if err := rows.Scan(&id, &a.Kind, &keyword, &a.Message, &a.Severity,
			&a.Read, &a.Sent, &payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ID = strconv.FormatInt(id, 10)
		a.Keyword = keyword.String
		a.Payload = []byte(payload.String)
		result = append(result, a)
	}
	return result, rows.Err()
}

// --- Snapshots ---

func (s *SQLiteStore) GetSnapshot(ctx context.Context, tf Timeframe, bucketStart time.Time) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT timeframe, bucket_start, metrics, created_at
		FROM snapshots WHERE timeframe = ? AND bucket_start = ?`, string(tf), bucketStart)
	var snap Snapshot
	var metrics string
	if err := row.Scan(&snap.Timeframe, &snap.BucketStart, &metrics, &snap.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	snap.Metrics = []byte(metrics)
	return &snap, nil
}

func (s *SQLiteStore) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO snapshots (timeframe, bucket_start, metrics, created_at)
		VALUES (?, ?, ?, ?)`,
		string(snap.Timeframe), snap.BucketStart, string(snap.Metrics), snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}
