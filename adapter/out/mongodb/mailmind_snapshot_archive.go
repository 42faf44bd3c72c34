package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"mailmind_server/adapter/out/snapshot"
	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionSnapshots = "skill_snapshots"

	snapshotCompressionThreshold = 512

	// Versions kept after each save; older ones are pruned.
	DefaultSnapshotRetention = 20

	maxVersionRetries = 3
)

// SnapshotArchive implements out.SnapshotStore as an append-only series of
// versioned documents. Load returns the newest one.
type SnapshotArchive struct {
	collection *mongo.Collection
	retention  int
	now        func() time.Time
}

// NewSnapshotArchive creates the archive. retention <= 0 keeps every version.
func NewSnapshotArchive(db *mongo.Database, retention int) *SnapshotArchive {
	return &SnapshotArchive{
		collection: db.Collection(collectionSnapshots),
		retention:  retention,
		now:        time.Now,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *SnapshotArchive) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "version", Value: -1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// snapshotDocument represents the MongoDB document structure.
type snapshotDocument struct {
	Version int `bson:"version"`
	Total   int `bson:"total"`

	// Content is the JSON snapshot, gzip'd above the threshold.
	Content      []byte `bson:"content"`
	IsCompressed bool   `bson:"is_compressed"`

	OriginalSize   int64 `bson:"original_size"`
	CompressedSize int64 `bson:"compressed_size"`

	ExportedAt time.Time `bson:"exported_at"`
	CreatedAt  time.Time `bson:"created_at"`
}

// Save appends snap as the next version.
func (a *SnapshotArchive) Save(ctx context.Context, snap *domain.SkillSnapshot) error {
	doc, err := toSnapshotDocument(snap)
	if err != nil {
		return fmt.Errorf("failed to convert snapshot to document: %w", err)
	}
	doc.CreatedAt = a.now().UTC()

	for attempt := 0; ; attempt++ {
		latest, err := a.latestVersion(ctx)
		if err != nil {
			return err
		}
		doc.Version = latest + 1

		_, err = a.collection.InsertOne(ctx, doc)
		if err == nil {
			break
		}
		if !mongo.IsDuplicateKeyError(err) || attempt+1 >= maxVersionRetries {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}

	if a.retention > 0 && doc.Version > a.retention {
		filter := bson.M{"version": bson.M{"$lte": doc.Version - a.retention}}
		if _, err := a.collection.DeleteMany(ctx, filter); err != nil {
			return fmt.Errorf("failed to prune snapshots: %w", err)
		}
	}
	return nil
}

// Load returns the newest version, or out.ErrNoSnapshot.
func (a *SnapshotArchive) Load(ctx context.Context) (*domain.SkillSnapshot, error) {
	findOpts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	return a.findOne(ctx, bson.M{}, findOpts)
}

// LoadVersion returns a specific archived version.
func (a *SnapshotArchive) LoadVersion(ctx context.Context, version int) (*domain.SkillSnapshot, error) {
	return a.findOne(ctx, bson.M{"version": version})
}

// Versions lists archived version numbers, newest first.
func (a *SnapshotArchive) Versions(ctx context.Context, limit int) ([]int, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "version", Value: -1}}).
		SetProjection(bson.M{"version": 1})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cursor, err := a.collection.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	versions := []int{}
	for cursor.Next(ctx) {
		var row struct {
			Version int `bson:"version"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot version: %w", err)
		}
		versions = append(versions, row.Version)
	}
	return versions, cursor.Err()
}

func (a *SnapshotArchive) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*domain.SkillSnapshot, error) {
	var doc snapshotDocument
	err := a.collection.FindOne(ctx, filter, opts...).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, out.ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return fromSnapshotDocument(&doc)
}

func (a *SnapshotArchive) latestVersion(ctx context.Context) (int, error) {
	findOpts := options.FindOne().
		SetSort(bson.D{{Key: "version", Value: -1}}).
		SetProjection(bson.M{"version": 1})

	var row struct {
		Version int `bson:"version"`
	}
	err := a.collection.FindOne(ctx, bson.M{}, findOpts).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get latest snapshot version: %w", err)
	}
	return row.Version, nil
}

func toSnapshotDocument(snap *domain.SkillSnapshot) (*snapshotDocument, error) {
	content, err := snapshot.Encode(snap, snapshot.FormatJSON)
	if err != nil {
		return nil, err
	}

	doc := &snapshotDocument{
		Total:          len(snap.Skills),
		Content:        content,
		OriginalSize:   int64(len(content)),
		CompressedSize: int64(len(content)),
		ExportedAt:     snap.ExportedAt.UTC(),
	}

	if len(content) > snapshotCompressionThreshold {
		compressed, err := compress(content)
		if err != nil {
			return nil, fmt.Errorf("failed to compress snapshot: %w", err)
		}
		doc.Content = compressed
		doc.IsCompressed = true
		doc.CompressedSize = int64(len(compressed))
	}
	return doc, nil
}

func fromSnapshotDocument(doc *snapshotDocument) (*domain.SkillSnapshot, error) {
	content := doc.Content
	if doc.IsCompressed {
		decompressed, err := decompress(content)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
		}
		content = decompressed
	}
	return snapshot.Decode(content, snapshot.FormatJSON)
}

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

var _ out.SnapshotStore = (*SnapshotArchive)(nil)
