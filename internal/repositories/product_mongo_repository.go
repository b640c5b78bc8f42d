package repositories

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"inventory/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// productDocument is the stored shape of a product in MongoDB.
type productDocument struct {
	ID                string               `bson:"_id"`
	Name              string               `bson:"name"`
	Description       string               `bson:"description"`
	Category          string               `bson:"category"`
	Price             primitive.Decimal128 `bson:"price"`
	Quantity          int                  `bson:"quantity"`
	SKU               string               `bson:"sku"`
	Image             string               `bson:"image"`
	LowStockThreshold int                  `bson:"lowStockThreshold"`
	CreatedBy         string               `bson:"createdBy"`
	CreatedAt         time.Time            `bson:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
}

func toProductDocument(p *models.Product) (productDocument, error) {
	price, err := primitive.ParseDecimal128(p.Price.String())
	if err != nil {
		return productDocument{}, fmt.Errorf("invalid price %s: %w", p.Price, err)
	}
	return productDocument{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Category:          p.Category,
		Price:             price,
		Quantity:          p.Quantity,
		SKU:               p.SKU,
		Image:             p.Image,
		LowStockThreshold: p.LowStockThreshold,
		CreatedBy:         p.CreatedByID,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}, nil
}

func (d productDocument) toModel() (models.Product, error) {
	price, err := decimal.NewFromString(d.Price.String())
	if err != nil {
		return models.Product{}, fmt.Errorf("invalid stored price for product %s: %w", d.ID, err)
	}
	return models.Product{
		ID:                d.ID,
		Name:              d.Name,
		Description:       d.Description,
		Category:          d.Category,
		Price:             price,
		Quantity:          d.Quantity,
		SKU:               d.SKU,
		Image:             d.Image,
		LowStockThreshold: d.LowStockThreshold,
		CreatedByID:       d.CreatedBy,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}, nil
}

// MongoProductRepository is a MongoDB implementation of ProductRepository.
type MongoProductRepository struct {
	collection *mongo.Collection
}

// NewMongoProductRepository creates a repository over the "products" collection of db.
func NewMongoProductRepository(db *mongo.Database) *MongoProductRepository {
	return &MongoProductRepository{
		collection: db.Collection("products"),
	}
}

// EnsureIndexes creates the unique SKU index and the category index.
func (r *MongoProductRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sku", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "category", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create product indexes: %w", err)
	}
	return nil
}

// Find returns the products matching filter.
func (r *MongoProductRepository) Find(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	query := bson.M{}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
			bson.M{"sku": pattern},
		}
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}

	direction := 1
	if filter.SortDesc {
		direction = -1
	}
	findOptions := options.Find().SetSort(bson.D{{Key: filter.SortField(), Value: direction}})

	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	products := make([]models.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.toModel()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

// GetByID retrieves a single product by its ID.
func (r *MongoProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	return r.findOne(ctx, bson.M{"_id": id}, "ID "+id)
}

// GetBySKU retrieves a single product by its SKU.
func (r *MongoProductRepository) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	return r.findOne(ctx, bson.M{"sku": sku}, "SKU "+sku)
}

// Create inserts a new product document.
func (r *MongoProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now

	doc, err := toProductDocument(product)
	if err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("product with SKU %s: %w", product.SKU, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update sets every mutable field of product.
func (r *MongoProductRepository) Update(ctx context.Context, product *models.Product) error {
	product.UpdatedAt = time.Now().UTC()
	doc, err := toProductDocument(product)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{
		"name":              doc.Name,
		"description":       doc.Description,
		"category":          doc.Category,
		"price":             doc.Price,
		"quantity":          doc.Quantity,
		"sku":               doc.SKU,
		"image":             doc.Image,
		"lowStockThreshold": doc.LowStockThreshold,
		"updatedAt":         doc.UpdatedAt,
	}}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": product.ID}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("product with SKU %s: %w", product.SKU, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to update product: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("product with ID %s: %w", product.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a product document permanently.
func (r *MongoProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
	}
	return nil
}

// Stats computes the dashboard aggregates with count and aggregation queries.
func (r *MongoProductRepository) Stats(ctx context.Context) (*models.ProductStats, error) {
	stats := &models.ProductStats{Categories: []models.CategoryCount{}, TotalValue: decimal.Zero}

	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	stats.TotalProducts = total

	low, err := r.collection.CountDocuments(ctx, bson.M{
		"$expr": bson.M{"$lte": bson.A{"$quantity", "$lowStockThreshold"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count low stock products: %w", err)
	}
	stats.LowStockProducts = low

	categoryPipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$category"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	var categories []struct {
		Category string `bson:"_id"`
		Count    int64  `bson:"count"`
	}
	if err := r.aggregate(ctx, categoryPipeline, &categories); err != nil {
		return nil, fmt.Errorf("failed to count products per category: %w", err)
	}
	for _, c := range categories {
		stats.Categories = append(stats.Categories, models.CategoryCount{Category: c.Category, Count: c.Count})
	}

	valuePipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$multiply", Value: bson.A{"$price", "$quantity"}}}}}},
		}}},
	}
	var totals []struct {
		Total primitive.Decimal128 `bson:"total"`
	}
	if err := r.aggregate(ctx, valuePipeline, &totals); err != nil {
		return nil, fmt.Errorf("failed to sum stock value: %w", err)
	}
	if len(totals) > 0 {
		value, err := decimal.NewFromString(totals[0].Total.String())
		if err != nil {
			return nil, fmt.Errorf("invalid stock value: %w", err)
		}
		stats.TotalValue = value
	}
	return stats, nil
}

func (r *MongoProductRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline, out interface{}) error {
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}

func (r *MongoProductRepository) findOne(ctx context.Context, filter bson.M, desc string) (*models.Product, error) {
	var doc productDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("product with %s: %w", desc, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product with %s: %w", desc, err)
	}
	product, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &product, nil
}
