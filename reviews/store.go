package reviews

import (
	"context"
	"errors"
	"fmt"

	"carsucart/db"
	"carsucart/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrDuplicate = errors.New("product already reviewed by this user")

type Repository interface {
	// Create fails with ErrDuplicate when the user already reviewed the product.
	Create(ctx context.Context, r models.Review) error
	ListByProduct(ctx context.Context, productID int64, limit int) ([]models.Review, error)
}

type MongoRepository struct {
	db *db.DB
}

func NewMongoRepository(d *db.DB) *MongoRepository {
	return &MongoRepository{db: d}
}

func (m *MongoRepository) Create(ctx context.Context, r models.Review) error {
	_, err := m.db.ReviewsCollection.InsertOne(ctx, r)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (m *MongoRepository) ListByProduct(ctx context.Context, productID int64, limit int) ([]models.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cursor, err := m.db.ReviewsCollection.Find(ctx, bson.M{"productId": productID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []models.Review
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
