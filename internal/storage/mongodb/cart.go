package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopfront/storefront/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// maxAddAttempts bounds the retry loop for the add protocol. A retry only
// happens when a concurrent mutation changed which branch applies, so two
// passes suffice in practice.
const maxAddAttempts = 3

type cartLineDoc struct {
	ProductID string `bson:"productId"`
	Quantity  int    `bson:"quantity"`
}

type cartDoc struct {
	OID       primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"userId"`
	Items     []cartLineDoc      `bson:"items"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d *cartDoc) toDomain() *cart.Cart {
	items := make([]cart.Line, len(d.Items))
	for i, it := range d.Items {
		items[i] = cart.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return &cart.Cart{
		UserID:    d.UserID,
		Items:     items,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// CartRepository implements cart.Repository backed by a MongoDB collection.
//
// Every mutation is a single filtered findOneAndUpdate, so concurrent calls
// for the same user line are serialized by the store rather than by this
// process. The unique index on userId (see EnsureIndexes) is load-bearing:
// the add protocol relies on a duplicate-key error to detect a lost upsert
// race.
type CartRepository struct {
	carts *mongo.Collection
}

// NewCartRepository returns a CartRepository using the "carts" collection of
// the given database.
func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{carts: db.Collection("carts")}
}

// EnsureIndexes creates the unique userId index the mutation protocol
// depends on. Safe to call on every startup.
func (r *CartRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.carts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Wrap(err, "create carts index")
	}
	return nil
}

// Get returns the user's cart document, or cart.ErrNoCart when absent.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var doc cartDoc
	err := r.carts.FindOne(ctx, bson.M{"userId": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, cart.ErrNoCart
		}
		return nil, errors.Wrapf(err, "find cart for user %q", userID)
	}
	return doc.toDomain(), nil
}

// AddItem applies the two-phase add protocol:
//
//  1. Increment the existing line in place, keyed on the (userId, productId)
//     pair so a concurrent add of the same product cannot lose an update.
//  2. If no line matched, push a new line with an upsert guarded by
//     "items.productId != productId". When two adds race on an empty cart,
//     exactly one upsert inserts; the loser hits the unique userId index,
//     observes a duplicate-key error, and retries from step 1 where the
//     line now exists.
func (r *CartRepository) AddItem(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error) {
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	for attempt := 0; attempt < maxAddAttempts; attempt++ {
		now := time.Now().UTC()

		var doc cartDoc
		err := r.carts.FindOneAndUpdate(ctx,
			bson.M{"userId": userID, "items.productId": productID},
			bson.M{
				"$inc": bson.M{"items.$.quantity": quantity},
				"$set": bson.M{"updatedAt": now},
			},
			after,
		).Decode(&doc)
		if err == nil {
			return doc.toDomain(), nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Wrapf(err, "increment line %q for user %q", productID, userID)
		}

		err = r.carts.FindOneAndUpdate(ctx,
			bson.M{"userId": userID, "items.productId": bson.M{"$ne": productID}},
			bson.M{
				"$push":        bson.M{"items": cartLineDoc{ProductID: productID, Quantity: quantity}},
				"$setOnInsert": bson.M{"createdAt": now},
				"$set":         bson.M{"updatedAt": now},
			},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&doc)
		if err == nil {
			return doc.toDomain(), nil
		}
		// Lost the upsert race: another request created the document (or the
		// line) between the two updates. Retry the increment branch.
		if mongo.IsDuplicateKeyError(err) || errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		return nil, errors.Wrapf(err, "push line %q for user %q", productID, userID)
	}

	return nil, errors.Errorf("add item %q for user %q: retries exhausted", productID, userID)
}

// SetItemQuantity sets an existing line to an absolute quantity via the
// positional operator. The filter covers both the user and the line, so a
// no-match is disambiguated afterwards: a missing document is cart.ErrNoCart,
// a present document without the line is cart.ErrItemNotFound.
func (r *CartRepository) SetItemQuantity(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error) {
	now := time.Now().UTC()

	var doc cartDoc
	err := r.carts.FindOneAndUpdate(ctx,
		bson.M{"userId": userID, "items.productId": productID},
		bson.M{"$set": bson.M{
			"items.$.quantity": quantity,
			"updatedAt":        now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(err, "set quantity of %q for user %q", productID, userID)
	}

	if err := r.carts.FindOne(ctx, bson.M{"userId": userID}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, cart.ErrNoCart
		}
		return nil, errors.Wrapf(err, "find cart for user %q", userID)
	}
	return nil, cart.ErrItemNotFound
}

// RemoveItem pulls the line for the product out of the user's cart. The
// filter is keyed on the user alone, so pulling an absent line matches the
// document and leaves the items untouched (idempotent removal). An absent
// document yields cart.ErrNoCart.
func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID string) (*cart.Cart, error) {
	now := time.Now().UTC()

	var doc cartDoc
	err := r.carts.FindOneAndUpdate(ctx,
		bson.M{"userId": userID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"productId": productID}},
			"$set":  bson.M{"updatedAt": now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, cart.ErrNoCart
		}
		return nil, errors.Wrapf(err, "remove line %q for user %q", productID, userID)
	}
	return doc.toDomain(), nil
}
