package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carsucart/db"
	"carsucart/models"
	"carsucart/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict means the order left the expected status before the
	// update landed.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrPaymentTaken means a payment is already pending or settled.
	ErrPaymentTaken = errors.New("order already has a payment")
)

type Repository interface {
	Create(ctx context.Context, o models.Order) (models.Order, error)
	Get(ctx context.Context, id int64) (models.Order, error)
	ListByUser(ctx context.Context, userID string, q utils.QueryOptions) ([]models.Order, int64, error)
	// List returns every order, filtered by q.Status when set.
	List(ctx context.Context, q utils.QueryOptions) ([]models.Order, int64, error)
	// UpdateStatus moves an order from one status to another and clears its
	// notification flag. It fails with ErrStatusConflict if the order is no
	// longer in status from.
	UpdateStatus(ctx context.Context, id int64, from, to models.OrderStatus) (models.Order, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	// ClaimPayment records status and method only while the order is
	// unpaid, failing with ErrPaymentTaken otherwise.
	ClaimPayment(ctx context.Context, id int64, status, method string) error
	// ReleasePayment returns a claimed order to unpaid.
	ReleasePayment(ctx context.Context, id int64) error
	HasDelivered(ctx context.Context, userID string, productID int64) (bool, error)
	Stats(ctx context.Context) (map[models.OrderStatus]int64, float64, error)
}

type MongoRepository struct {
	db *db.DB
}

func NewMongoRepository(d *db.DB) *MongoRepository {
	return &MongoRepository{db: d}
}

func (m *MongoRepository) Create(ctx context.Context, o models.Order) (models.Order, error) {
	id, err := m.db.NextSequence(ctx, "orders")
	if err != nil {
		return o, err
	}
	o.ID = id
	if _, err := m.db.OrderCollection.InsertOne(ctx, o); err != nil {
		return o, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (m *MongoRepository) Get(ctx context.Context, id int64) (models.Order, error) {
	var o models.Order
	err := m.db.OrderCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return o, ErrNotFound
	}
	return o, err
}

func (m *MongoRepository) find(ctx context.Context, filter bson.M, q utils.QueryOptions) ([]models.Order, int64, error) {
	total, err := m.db.OrderCollection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "orderDate", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(q.Skip()).
		SetLimit(int64(q.PerPage))
	cursor, err := m.db.OrderCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Order
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}
	return out, total, nil
}

func (m *MongoRepository) ListByUser(ctx context.Context, userID string, q utils.QueryOptions) ([]models.Order, int64, error) {
	return m.find(ctx, bson.M{"userId": userID}, q)
}

func (m *MongoRepository) List(ctx context.Context, q utils.QueryOptions) ([]models.Order, int64, error) {
	filter := bson.M{}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	return m.find(ctx, filter, q)
}

func (m *MongoRepository) UpdateStatus(ctx context.Context, id int64, from, to models.OrderStatus) (models.Order, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var o models.Order
	err := m.db.OrderCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "notificationRead": false, "updatedAt": time.Now()}},
		opts,
	).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := m.Get(ctx, id); errors.Is(getErr, ErrNotFound) {
			return o, ErrNotFound
		}
		return o, ErrStatusConflict
	}
	return o, err
}

func (m *MongoRepository) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := m.db.OrderCollection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"notificationRead": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepository) ClaimPayment(ctx context.Context, id int64, status, method string) error {
	res, err := m.db.OrderCollection.UpdateOne(ctx,
		bson.M{"_id": id, "paymentStatus": bson.M{"$nin": bson.A{models.PaymentPending, models.PaymentPaid}}},
		bson.M{"$set": bson.M{"paymentStatus": status, "paymentMethod": method, "updatedAt": time.Now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := m.db.OrderCollection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrPaymentTaken
}

func (m *MongoRepository) ReleasePayment(ctx context.Context, id int64) error {
	_, err := m.db.OrderCollection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"paymentStatus": models.PaymentUnpaid, "paymentMethod": "", "updatedAt": time.Now()}})
	return err
}

func (m *MongoRepository) HasDelivered(ctx context.Context, userID string, productID int64) (bool, error) {
	n, err := m.db.OrderCollection.CountDocuments(ctx, bson.M{
		"userId":          userID,
		"status":          models.StatusDelivered,
		"items.productId": productID,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *MongoRepository) Stats(ctx context.Context) (map[models.OrderStatus]int64, float64, error) {
	cursor, err := m.db.OrderCollection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":     "$status",
			"count":   bson.M{"$sum": 1},
			"revenue": bson.M{"$sum": "$totalAmount"},
		}}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("aggregate orders: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status  models.OrderStatus `bson:"_id"`
		Count   int64              `bson:"count"`
		Revenue float64            `bson:"revenue"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, 0, err
	}

	counts := make(map[models.OrderStatus]int64, len(rows))
	var revenue float64
	for _, row := range rows {
		counts[row.Status] = row.Count
		if row.Status == models.StatusDelivered {
			revenue = row.Revenue
		}
	}
	return counts, revenue, nil
}
