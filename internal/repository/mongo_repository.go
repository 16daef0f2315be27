package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sandbeige/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type rowDocument struct {
	UserID    string           `bson:"user_id"`
	ProductID string           `bson:"product_id"`
	Variant   string           `bson:"variant"`
	ItemID    string           `bson:"item_id"`
	Quantity  int              `bson:"quantity"`
	UnitPrice string           `bson:"unit_price"`
	Snapshot  snapshotDocument `bson:"snapshot"`
	AddedAt   time.Time        `bson:"added_at"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

type snapshotDocument struct {
	Name         string `bson:"name"`
	Image        string `bson:"image"`
	CurrentPrice string `bson:"current_price"`
}

func (d rowDocument) lineItem() (domain.LineItem, error) {
	price, err := decimal.NewFromString(d.UnitPrice)
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("bad unit_price %q for %s/%s: %w", d.UnitPrice, d.ProductID, d.Variant, err)
	}
	current := decimal.Zero
	if d.Snapshot.CurrentPrice != "" {
		if current, err = decimal.NewFromString(d.Snapshot.CurrentPrice); err != nil {
			return domain.LineItem{}, fmt.Errorf("bad current_price %q: %w", d.Snapshot.CurrentPrice, err)
		}
	}
	return domain.LineItem{
		ID:        d.ItemID,
		ProductID: d.ProductID,
		Variant:   d.Variant,
		Quantity:  d.Quantity,
		UnitPrice: price,
		Snapshot: domain.ProductSnapshot{
			Name:         d.Snapshot.Name,
			Image:        d.Snapshot.Image,
			CurrentPrice: current,
		},
		AddedAt: d.AddedAt.UTC(),
	}, nil
}

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("cart_items"),
	}
}

func rowFilter(userID string, key domain.Key) bson.M {
	return bson.M{"user_id": userID, "product_id": key.ProductID, "variant": key.Variant}
}

func insertOnly(item domain.LineItem, now time.Time) bson.M {
	addedAt := item.AddedAt
	if addedAt.IsZero() {
		addedAt = now
	}
	return bson.M{
		"item_id":    item.ID,
		"unit_price": item.UnitPrice.String(),
		"snapshot": snapshotDocument{
			Name:         item.Snapshot.Name,
			Image:        item.Snapshot.Image,
			CurrentPrice: item.Snapshot.CurrentPrice.String(),
		},
		"added_at": addedAt,
	}
}

func (m mongoRepository) List(ctx context.Context, userID string) ([]domain.LineItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart rows: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []rowDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode cart rows: %w", err)
	}

	items := make([]domain.LineItem, 0, len(docs))
	for _, d := range docs {
		item, err := d.lineItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (m mongoRepository) Increment(ctx context.Context, userID string, item domain.LineItem, delta int) (domain.LineItem, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$inc":         bson.M{"quantity": delta},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": insertOnly(item, now),
	}
	return m.upsert(ctx, rowFilter(userID, item.Key()), update)
}

func (m mongoRepository) Set(ctx context.Context, userID string, item domain.LineItem) (domain.LineItem, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"quantity": item.Quantity, "updated_at": now},
		"$setOnInsert": insertOnly(item, now),
	}
	return m.upsert(ctx, rowFilter(userID, item.Key()), update)
}

func (m mongoRepository) upsert(ctx context.Context, filter, update bson.M) (domain.LineItem, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc rowDocument
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return domain.LineItem{}, fmt.Errorf("failed to upsert cart row: %w", err)
	}
	return doc.lineItem()
}

func (m mongoRepository) Remove(ctx context.Context, userID string, key domain.Key) error {
	if _, err := m.collection.DeleteOne(ctx, rowFilter(userID, key)); err != nil {
		return fmt.Errorf("failed to remove cart row: %w", err)
	}
	return nil
}

func (m mongoRepository) Clear(ctx context.Context, userID string) error {
	if _, err := m.collection.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "product_id", Value: 1},
				{Key: "variant", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *mongoRepository) Migrate(ctx context.Context) error {
	return m.CreateIndexes(ctx)
}
