package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a MongoDB database. The unique indexes on
// articles._id (the URL hash) and feeds.url serve the same role as the SQLite
// unique constraints.
type MongoStore struct {
	client    *mongo.Client
	articles  *mongo.Collection
	feeds     *mongo.Collection
	tracks    *mongo.Collection
	alerts    *mongo.Collection
	snapshots *mongo.Collection
}

// OpenMongo connects to the MongoDB instance described by the URI. The
// database name is taken from the URI path, defaulting to "newspulse".
func OpenMongo(ctx context.Context, uri string) (*MongoStore, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	dbName := "newspulse"
	if u, err := url.Parse(uri); err == nil {
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			dbName = name
		}
	}
	db := client.Database(dbName)

	m := &MongoStore{
		client:    client,
		articles:  db.Collection("articles"),
		feeds:     db.Collection("feeds"),
		tracks:    db.Collection("keyword_tracks"),
		alerts:    db.Collection("alerts"),
		snapshots: db.Collection("snapshots"),
	}
	if err := m.createIndexes(connCtx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return m, nil
}

func (m *MongoStore) createIndexes(ctx context.Context) error {
	_, err := m.articles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "published_at", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = m.feeds.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = m.tracks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "keyword", Value: 1}}, Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = m.snapshots.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "timeframe", Value: 1}, {Key: "bucket_start", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// mongoArticle mirrors Article with the URL hash as the document _id.
type mongoArticle struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description,omitempty"`
	Content     string    `bson:"content,omitempty"`
	URL         string    `bson:"url"`
	Source      string    `bson:"source"`
	Author      string    `bson:"author,omitempty"`
	Category    string    `bson:"category,omitempty"`
	Language    string    `bson:"language,omitempty"`
	ImageURL    string    `bson:"image_url,omitempty"`
	PublishedAt time.Time `bson:"published_at"`
	FetchedAt   time.Time `bson:"fetched_at"`
	Sentiment   Sentiment `bson:"sentiment"`
	Keywords    []string  `bson:"keywords,omitempty"`
	Entities    Entities  `bson:"entities"`
	Readability float64   `bson:"readability"`
	WordCount   int       `bson:"word_count"`
	ShareCount  int       `bson:"share_count,omitempty"`
}

func toMongoArticle(a *Article) mongoArticle {
	return mongoArticle{
		ID: a.ID, Title: a.Title, Description: a.Description, Content: a.Content,
		URL: a.URL, Source: a.Source, Author: a.Author, Category: a.Category,
		Language: a.Language, ImageURL: a.ImageURL,
		PublishedAt: a.PublishedAt, FetchedAt: a.FetchedAt,
		Sentiment: a.Sentiment, Keywords: a.Keywords, Entities: a.Entities,
		Readability: a.Readability, WordCount: a.WordCount, ShareCount: a.ShareCount,
	}
}

func fromMongoArticle(d mongoArticle) Article {
	return Article{
		ID: d.ID, Title: d.Title, Description: d.Description, Content: d.Content,
		URL: d.URL, Source: d.Source, Author: d.Author, Category: d.Category,
		Language: d.Language, ImageURL: d.ImageURL,
		PublishedAt: d.PublishedAt, FetchedAt: d.FetchedAt,
		Sentiment: d.Sentiment, Keywords: d.Keywords, Entities: d.Entities,
		Readability: d.Readability, WordCount: d.WordCount, ShareCount: d.ShareCount,
	}
}

// --- Articles ---

func (m *MongoStore) InsertArticle(ctx context.Context, a *Article) (bool, error) {
	_, err := m.articles.InsertOne(ctx, toMongoArticle(a))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	return true, nil
}

func (m *MongoStore) HasArticle(ctx context.Context, id string) (bool, error) {
	err := m.articles.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *MongoStore) findArticles(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Article, error) {
	cursor, err := m.articles.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var result []Article
	for cursor.Next(ctx) {
		var d mongoArticle
		if err := cursor.Decode(&d); err != nil {
			return nil, err
		}
		result = append(result, fromMongoArticle(d))
	}
	return result, cursor.Err()
}

func publishedBetween(from, to time.Time) bson.M {
	return bson.M{"published_at": bson.M{"$gte": from, "$lt": to}}
}

func (m *MongoStore) ArticlesBetween(ctx context.Context, from, to time.Time, limit int) ([]Article, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "published_at", Value: -1}}).
		SetLimit(int64(limit))
	return m.findArticles(ctx, publishedBetween(from, to), opts)
}

func (m *MongoStore) ArticlesMentioning(ctx context.Context, keyword string, from, to time.Time) ([]Article, error) {
	pattern := primitive.Regex{Pattern: regexQuote(keyword), Options: "i"}
	filter := publishedBetween(from, to)
	filter["$or"] = bson.A{
		bson.M{"title": pattern},
		bson.M{"content": pattern},
		bson.M{"keywords": pattern},
	}
	opts := options.Find().SetSort(bson.D{{Key: "published_at", Value: -1}})
	return m.findArticles(ctx, filter, opts)
}

func (m *MongoStore) CountArticlesBetween(ctx context.Context, from, to time.Time) (int, error) {
	n, err := m.articles.CountDocuments(ctx, publishedBetween(from, to))
	return int(n), err
}

// regexQuote escapes regex metacharacters so keywords match literally.
func regexQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// --- Feeds ---

func (m *MongoStore) UpsertFeed(ctx context.Context, f *Feed) error {
	update := bson.M{"$set": bson.M{
		"name":           f.Name,
		"category":       f.Category,
		"active":         f.Active,
		"fetch_interval": int64(f.FetchInterval),
		"max_articles":   f.MaxArticles,
	}, "$setOnInsert": bson.M{"error_count": 0}}
	_, err := m.feeds.UpdateOne(ctx, bson.M{"url": f.URL}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert feed: %w", err)
	}
	return nil
}

type mongoFeed struct {
	URL           string    `bson:"url"`
	Name          string    `bson:"name"`
	Category      string    `bson:"category,omitempty"`
	Active        bool      `bson:"active"`
	FetchInterval int64     `bson:"fetch_interval,omitempty"`
	MaxArticles   int       `bson:"max_articles,omitempty"`
	LastFetchedAt time.Time `bson:"last_fetched_at,omitempty"`
	LastSuccessAt time.Time `bson:"last_success_at,omitempty"`
	ErrorCount    int       `bson:"error_count"`
	LastError     string    `bson:"last_error,omitempty"`
}

func (m *MongoStore) ListActiveFeeds(ctx context.Context) ([]Feed, error) {
	cursor, err := m.feeds.Find(ctx, bson.M{"active": true},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var result []Feed
	for cursor.Next(ctx) {
		var d mongoFeed
		if err := cursor.Decode(&d); err != nil {
			return nil, err
		}
		result = append(result, Feed{
			URL: d.URL, Name: d.Name, Category: d.Category, Active: d.Active,
			FetchInterval: time.Duration(d.FetchInterval), MaxArticles: d.MaxArticles,
			LastFetchedAt: d.LastFetchedAt, LastSuccessAt: d.LastSuccessAt,
			ErrorCount: d.ErrorCount, LastError: d.LastError,
		})
	}
	return result, cursor.Err()
}

func (m *MongoStore) MarkFeedSuccess(ctx context.Context, url string, at time.Time) error {
	_, err := m.feeds.UpdateOne(ctx, bson.M{"url": url}, bson.M{
		"$set": bson.M{"last_fetched_at": at, "last_success_at": at, "error_count": 0, "last_error": ""},
	})
	return err
}

func (m *MongoStore) MarkFeedError(ctx context.Context, url string, msg string, at time.Time) error {
	_, err := m.feeds.UpdateOne(ctx, bson.M{"url": url}, bson.M{
		"$set": bson.M{"last_fetched_at": at, "last_error": msg},
		"$inc": bson.M{"error_count": 1},
	})
	return err
}

// --- Keyword tracks ---

func (m *MongoStore) UpsertTrack(ctx context.Context, t *KeywordTrack) error {
	update := bson.M{"$set": bson.M{
		"category":                 t.Category,
		"active":                   t.Active,
		"sentiment_change_percent": t.SentimentChangePercent,
		"volume_spike_percent":     t.VolumeSpikePercent,
	}, "$setOnInsert": bson.M{"created_at": time.Now().UTC()}}
	_, err := m.tracks.UpdateOne(ctx, bson.M{"keyword": t.Keyword}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert track: %w", err)
	}
	return nil
}

func (m *MongoStore) ListActiveTracks(ctx context.Context) ([]KeywordTrack, error) {
	cursor, err := m.tracks.Find(ctx, bson.M{"active": true},
		options.Find().SetSort(bson.D{{Key: "keyword", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var result []KeywordTrack
	for cursor.Next(ctx) {
		var t struct {
			Keyword                string    `bson:"keyword"`
			Category               string    `bson:"category,omitempty"`
			Active                 bool      `bson:"active"`
			SentimentChangePercent float64   `bson:"sentiment_change_percent"`
			VolumeSpikePercent     float64   `bson:"volume_spike_percent"`
			CreatedAt              time.Time `bson:"created_at"`
		}
		if err := cursor.Decode(&t); err != nil {
			return nil, err
		}
		result = append(result, KeywordTrack(t))
	}
	return result, cursor.Err()
}

// --- Alerts ---

func (m *MongoStore) InsertAlert(ctx context.Context, a *Alert) error {
	doc := bson.M{
		"kind":       a.Kind,
		"keyword":    a.Keyword,
		"message":    a.Message,
		"severity":   a.Severity,
		"read":       a.Read,
		"sent":       a.Sent,
		"payload":    string(a.Payload),
		"created_at": a.CreatedAt,
	}
	res, err := m.alerts.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		a.ID = oid.Hex()
	}
	return nil
}

func (m *MongoStore) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	cursor, err := m.alerts.Find(ctx, bson.M{}, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var result []Alert
	for cursor.Next(ctx) {
		var d struct {
			ID        primitive.ObjectID `bson:"_id"`
			Kind      string             `bson:"kind"`
			Keyword   string             `bson:"keyword,omitempty"`
			Message   string             `bson:"message"`
			Severity  string             `bson:"severity"`
			Read      bool               `bson:"read"`
			Sent      bool               `bson:"sent"`
			Payload   string             `bson:"payload,omitempty"`
			CreatedAt time.Time          `bson:"created_at"`
		}
		if err := cursor.Decode(&d); err != nil {
			return nil, err
		}
		result = append(result, Alert{
			ID: d.ID.Hex(), Kind: d.Kind, Keyword: d.Keyword, Message: d.Message,
			Severity: d.Severity, Read: d.Read, Sent: d.Sent,
			Payload: []byte(d.Payload), CreatedAt: d.CreatedAt,
		})
	}
	return result, cursor.Err()
}

// --- Snapshots ---

func (m *MongoStore) GetSnapshot(ctx context.Context, tf Timeframe, bucketStart time.Time) (*Snapshot, error) {
	var d struct {
		Timeframe   string    `bson:"timeframe"`
		BucketStart time.Time `bson:"bucket_start"`
		Metrics     string    `bson:"metrics"`
		CreatedAt   time.Time `bson:"created_at"`
	}
	err := m.snapshots.FindOne(ctx, bson.M{"timeframe": string(tf), "bucket_start": bucketStart}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Timeframe:   Timeframe(d.Timeframe),
		BucketStart: d.BucketStart,
		Metrics:     []byte(d.Metrics),
		CreatedAt:   d.CreatedAt,
	}, nil
}

func (m *MongoStore) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	doc := bson.M{
		"timeframe":    string(snap.Timeframe),
		"bucket_start": snap.BucketStart,
		"metrics":      string(snap.Metrics),
		"created_at":   snap.CreatedAt,
	}
	_, err := m.snapshots.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}
