package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DB holds the Mongo client and the collections the API works with.
type DB struct {
	Client *mongo.Client

	ProductsCollection    *mongo.Collection
	CategoriesCollection  *mongo.Collection
	CartCollection        *mongo.Collection
	OrderCollection       *mongo.Collection
	PaymentsCollection    *mongo.Collection
	IdempotencyCollection *mongo.Collection
	ReviewsCollection     *mongo.Collection
	CouponCollection      *mongo.Collection
	CountersCollection    *mongo.Collection
}

// Connect dials Mongo and verifies the connection with a ping.
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	d := client.Database(database)
	return &DB{
		Client:                client,
		ProductsCollection:    d.Collection("products"),
		CategoriesCollection:  d.Collection("categories"),
		CartCollection:        d.Collection("cart"),
		OrderCollection:       d.Collection("orders"),
		PaymentsCollection:    d.Collection("payments"),
		IdempotencyCollection: d.Collection("idempotency"),
		ReviewsCollection:     d.Collection("reviews"),
		CouponCollection:      d.Collection("coupons"),
		CountersCollection:    d.Collection("counters"),
	}, nil
}

func (db *DB) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

// NextSequence returns the next value of a named counter. Products and orders
// carry numeric ids the storefront links to.
func (db *DB) NextSequence(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := db.CountersCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", name, err)
	}
	return counter.Seq, nil
}

// EnsureIndexes creates the indexes the handlers rely on.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	specs := map[*mongo.Collection][]mongo.IndexModel{
		db.CartCollection: {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "productId", Value: 1}, {Key: "variant", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("unique_line"),
			},
		},
		db.OrderCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "orderDate", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		db.ProductsCollection: {
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "category", Value: 1}}},
		},
		db.ReviewsCollection: {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "productId", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("one_review_per_product"),
			},
		},
		db.IdempotencyCollection: {
			{
				Keys:    bson.M{"key": 1},
				Options: options.Index().SetUnique(true).SetName("unique_key"),
			},
			{
				Keys:    bson.M{"expiresAt": 1},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expires_at"),
			},
		},
	}

	for coll, idxs := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, idxs); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}
