package pay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carsucart/db"
	"carsucart/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrDuplicateKey means another request already claimed the idempotency key.
var ErrDuplicateKey = errors.New("idempotency key already used")

// keyTTL bounds how long a retried request replays the first result.
const keyTTL = 24 * time.Hour

type Repository interface {
	// FindByKey returns the payment recorded under key, if any.
	FindByKey(ctx context.Context, key string) (models.Payment, bool, error)
	// Create records p. A non-empty key is claimed first; ErrDuplicateKey
	// is returned when it is already taken.
	Create(ctx context.Context, key string, p models.Payment) error
}

type MongoRepository struct {
	db *db.DB
}

func NewMongoRepository(d *db.DB) *MongoRepository {
	return &MongoRepository{db: d}
}

type idempotencyRecord struct {
	Key       string    `bson:"key"`
	PaymentID string    `bson:"paymentId"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

func (m *MongoRepository) FindByKey(ctx context.Context, key string) (models.Payment, bool, error) {
	var rec idempotencyRecord
	err := m.db.IdempotencyCollection.FindOne(ctx, bson.M{"key": key}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Payment{}, false, nil
	}
	if err != nil {
		return models.Payment{}, false, err
	}

	var p models.Payment
	err = m.db.PaymentsCollection.FindOne(ctx, bson.M{"_id": rec.PaymentID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// key claimed but payment not written yet
		return models.Payment{}, false, nil
	}
	if err != nil {
		return models.Payment{}, false, err
	}
	return p, true, nil
}

func (m *MongoRepository) Create(ctx context.Context, key string, p models.Payment) error {
	if key != "" {
		_, err := m.db.IdempotencyCollection.InsertOne(ctx, idempotencyRecord{
			Key:       key,
			PaymentID: p.ID,
			ExpiresAt: time.Now().Add(keyTTL),
		})
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		if err != nil {
			return fmt.Errorf("claim idempotency key: %w", err)
		}
	}

	if _, err := m.db.PaymentsCollection.InsertOne(ctx, p); err != nil {
		if key != "" {
			_, _ = m.db.IdempotencyCollection.DeleteOne(ctx, bson.M{"key": key})
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}
