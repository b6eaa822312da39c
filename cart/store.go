package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carsucart/db"
	"carsucart/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrLineNotFound = errors.New("cart line not found")

// Repository persists server-side carts. Lines are unique per
// (user, product, variant).
type Repository interface {
	Items(ctx context.Context, userID string) ([]models.CartItem, error)
	// Add inserts the line or increments its quantity and returns the result.
	Add(ctx context.Context, item models.CartItem) (models.CartItem, error)
	SetQuantity(ctx context.Context, userID string, key models.LineKey, qty int) (models.CartItem, error)
	Remove(ctx context.Context, userID string, key models.LineKey) error
	Clear(ctx context.Context, userID string) error
}

type MongoRepository struct {
	db *db.DB
}

func NewMongoRepository(d *db.DB) *MongoRepository {
	return &MongoRepository{db: d}
}

func lineFilter(userID string, key models.LineKey) bson.M {
	return bson.M{"userId": userID, "productId": key.ID, "variant": key.Variant}
}

func (m *MongoRepository) Items(ctx context.Context, userID string) ([]models.CartItem, error) {
	cursor, err := m.db.CartCollection.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "addedAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.CartItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return items, nil
}

// Upsert: increment quantity if the same user/product/variant exists
func (m *MongoRepository) Add(ctx context.Context, item models.CartItem) (models.CartItem, error) {
	update := bson.M{
		"$inc": bson.M{"quantity": item.Quantity},
		"$set": bson.M{
			"name":  item.Name,
			"price": item.Price,
			"image": item.Image,
		},
		"$setOnInsert": bson.M{"addedAt": time.Now()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.CartItem
	err := m.db.CartCollection.FindOneAndUpdate(ctx, lineFilter(item.UserID, item.Key()), update, opts).Decode(&out)
	if err != nil {
		return out, fmt.Errorf("upsert cart line: %w", err)
	}
	return out, nil
}

func (m *MongoRepository) SetQuantity(ctx context.Context, userID string, key models.LineKey, qty int) (models.CartItem, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out models.CartItem
	err := m.db.CartCollection.FindOneAndUpdate(ctx, lineFilter(userID, key),
		bson.M{"$set": bson.M{"quantity": qty}}, opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return out, ErrLineNotFound
	}
	return out, err
}

func (m *MongoRepository) Remove(ctx context.Context, userID string, key models.LineKey) error {
	res, err := m.db.CartCollection.DeleteOne(ctx, lineFilter(userID, key))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (m *MongoRepository) Clear(ctx context.Context, userID string) error {
	_, err := m.db.CartCollection.DeleteMany(ctx, bson.M{"userId": userID})
	return err
}
