package products

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"carsucart/db"
	"carsucart/models"
	"carsucart/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound   = errors.New("product not found")
	ErrOutOfStock = errors.New("insufficient stock")
)

// Query narrows a product listing.
type Query struct {
	utils.QueryOptions
	IncludeInactive bool
}

type Repository interface {
	List(ctx context.Context, q Query) ([]models.Product, int64, error)
	Get(ctx context.Context, id int64) (models.Product, error)
	Create(ctx context.Context, p models.Product) (models.Product, error)
	Update(ctx context.Context, p models.Product) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
	Categories(ctx context.Context) ([]models.Category, error)
	// ReserveStock decrements stock by qty, failing with ErrOutOfStock
	// when fewer than qty units remain.
	ReserveStock(ctx context.Context, id int64, qty int) error
	ReleaseStock(ctx context.Context, id int64, qty int) error
	AddRating(ctx context.Context, id int64, rating int) error
	Count(ctx context.Context) (total, active int64, err error)
}

type MongoRepository struct {
	db *db.DB
}

func NewMongoRepository(d *db.DB) *MongoRepository {
	return &MongoRepository{db: d}
}

func listFilter(q Query) bson.M {
	filter := bson.M{}
	if !q.IncludeInactive {
		filter["active"] = true
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Search != "" {
		pattern := regexp.QuoteMeta(q.Search)
		filter["$or"] = bson.A{
			bson.M{"name": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"description": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	return filter
}

func listSort(sort string) bson.D {
	switch sort {
	case "price_asc":
		return bson.D{{Key: "price", Value: 1}, {Key: "_id", Value: 1}}
	case "price_desc":
		return bson.D{{Key: "price", Value: -1}, {Key: "_id", Value: 1}}
	case "rating":
		return bson.D{{Key: "rating", Value: -1}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	}
}

func (m *MongoRepository) List(ctx context.Context, q Query) ([]models.Product, int64, error) {
	filter := listFilter(q)

	total, err := m.db.ProductsCollection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	opts := options.Find().
		SetSort(listSort(q.Sort)).
		SetSkip(q.Skip()).
		SetLimit(int64(q.PerPage))
	cursor, err := m.db.ProductsCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find products: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Product
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("decode products: %w", err)
	}
	return out, total, nil
}

func (m *MongoRepository) Get(ctx context.Context, id int64) (models.Product, error) {
	var p models.Product
	err := m.db.ProductsCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return p, ErrNotFound
	}
	return p, err
}

func (m *MongoRepository) Create(ctx context.Context, p models.Product) (models.Product, error) {
	id, err := m.db.NextSequence(ctx, "products")
	if err != nil {
		return p, err
	}
	p.ID = id
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	if _, err := m.db.ProductsCollection.InsertOne(ctx, p); err != nil {
		return p, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (m *MongoRepository) Update(ctx context.Context, p models.Product) error {
	res, err := m.db.ProductsCollection.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"image":       p.Image,
		"category":    p.Category,
		"variants":    p.Variants,
		"stock":       p.Stock,
		"updatedAt":   time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepository) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := m.db.ProductsCollection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"active": active, "updatedAt": time.Now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepository) Delete(ctx context.Context, id int64) error {
	res, err := m.db.ProductsCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepository) Categories(ctx context.Context) ([]models.Category, error) {
	cursor, err := m.db.CategoriesCollection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []models.Category
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoRepository) ReserveStock(ctx context.Context, id int64, qty int) error {
	res, err := m.db.ProductsCollection.UpdateOne(ctx,
		bson.M{"_id": id, "active": true, "stock": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"stock": -qty}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrOutOfStock
	}
	return nil
}

func (m *MongoRepository) ReleaseStock(ctx context.Context, id int64, qty int) error {
	_, err := m.db.ProductsCollection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"stock": qty}})
	return err
}

// AddRating folds one rating into the running average.
func (m *MongoRepository) AddRating(ctx context.Context, id int64, rating int) error {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"rating": bson.M{"$divide": bson.A{
				bson.M{"$add": bson.A{bson.M{"$multiply": bson.A{"$rating", "$reviews"}}, rating}},
				bson.M{"$add": bson.A{"$reviews", 1}},
			}},
			"reviews": bson.M{"$add": bson.A{"$reviews", 1}},
		}}},
	}
	res, err := m.db.ProductsCollection.UpdateOne(ctx, bson.M{"_id": id}, pipeline)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepository) Count(ctx context.Context) (int64, int64, error) {
	total, err := m.db.ProductsCollection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, 0, err
	}
	active, err := m.db.ProductsCollection.CountDocuments(ctx, bson.M{"active": true})
	if err != nil {
		return 0, 0, err
	}
	return total, active, nil
}
