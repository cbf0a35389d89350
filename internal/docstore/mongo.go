package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig はMongoDB接続の設定を保持する。
type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

// Mongo はStoreのMongoDB実装。
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open はMongoDBに接続し、疎通確認のうえMongoを返す。
// 接続は起動時に1回だけ確立し、以後プロセス全体で共有する。
func Open(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	opts.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping document store: %w", err)
	}

	return &Mongo{
		client: client,
		db:     client.Database(cfg.Database),
	}, nil
}

// Close は接続を切断する。
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Ping はヘルスチェック用の疎通確認を行う。
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// GetByKey は指定キーのドキュメントを取得してoutにデコードする。
func (m *Mongo) GetByKey(ctx context.Context, collection, key string, out any) error {
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get document %s/%s: %w", collection, key, err)
	}
	return nil
}

// QueryByEquals はfield == value のドキュメント列をoutにデコードする。
func (m *Mongo) QueryByEquals(ctx context.Context, collection, field string, value any, out any) error {
	cursor, err := m.db.Collection(collection).Find(ctx, bson.M{field: value})
	if err != nil {
		return fmt.Errorf("failed to query %s by %s: %w", collection, field, err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s query result: %w", collection, err)
	}
	return nil
}

// Create は指定キーでドキュメントを作成する。
func (m *Mongo) Create(ctx context.Context, collection, key string, doc any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, key, err)
	}
	var d bson.M
	if err := bson.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, key, err)
	}
	d["_id"] = key

	if _, err := m.db.Collection(collection).InsertOne(ctx, d); err != nil {
		return fmt.Errorf("failed to create document %s/%s: %w", collection, key, err)
	}
	return nil
}

// UpdatePartial は指定キーのドキュメントにフィールド群を部分適用する。
func (m *Mongo) UpdatePartial(ctx context.Context, collection, key string, fields map[string]any) error {
	res, err := m.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M(fields)},
	)
	if err != nil {
		return fmt.Errorf("failed to update document %s/%s: %w", collection, key, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete は指定キーのドキュメントを削除する。
func (m *Mongo) Delete(ctx context.Context, collection, key string) error {
	res, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, key, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
