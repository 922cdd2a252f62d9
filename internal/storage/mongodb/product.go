package mongodb

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopfront/storefront/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

const (
	bloomMinCapacity = 1024
	bloomFPR         = 0.001
)

// productDoc mirrors a catalog document. The catalog schema is open: fields
// not listed here land in Attrs via the inline map and ride along untouched.
type productDoc struct {
	OID         primitive.ObjectID `bson:"_id,omitempty"`
	ID          string             `bson:"id"`
	Name        string             `bson:"name"`
	Price       float64            `bson:"price"`
	Description string             `bson:"description"`
	ImageURL    string             `bson:"imageUrl"`
	Attrs       map[string]any     `bson:",inline"`
}

func (d *productDoc) toDomain() product.Product {
	return product.Product{
		ID:          d.ID,
		Name:        d.Name,
		Price:       decimal.NewFromFloat(d.Price),
		Description: d.Description,
		ImageURL:    d.ImageURL,
		Attrs:       d.Attrs,
	}
}

// ProductRepository implements product.Repository backed by the "products"
// collection. An optional bloom filter over catalog ids short-circuits
// lookups for ids that are definitely not in the catalog, saving a round
// trip on the add-to-cart existence check. The catalog is read-only at
// runtime, so the filter is built once at startup.
type ProductRepository struct {
	products *mongo.Collection

	mu    sync.RWMutex
	known *bloom.BloomFilter
}

// NewProductRepository returns a ProductRepository using the "products"
// collection of the given database.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{products: db.Collection("products")}
}

// WarmKnownIDs builds the catalog id bloom filter from the current contents
// of the collection. Lookups work without it; they just always hit the
// store.
func (r *ProductRepository) WarmKnownIDs(ctx context.Context) error {
	count, err := r.products.EstimatedDocumentCount(ctx)
	if err != nil {
		return errors.Wrap(err, "count products")
	}
	capacity := uint(count) * 2
	if capacity < bloomMinCapacity {
		capacity = bloomMinCapacity
	}
	filter := bloom.NewWithEstimates(capacity, bloomFPR)

	cur, err := r.products.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"id": 1}))
	if err != nil {
		return errors.Wrap(err, "list product ids")
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return errors.Wrap(err, "decode product id")
		}
		filter.AddString(doc.ID)
	}
	if err := cur.Err(); err != nil {
		return errors.Wrap(err, "iterate product ids")
	}

	r.mu.Lock()
	r.known = filter
	r.mu.Unlock()
	return nil
}

// mightExist reports whether id can be in the catalog. False is definite;
// true still needs a store lookup.
func (r *ProductRepository) mightExist(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.known == nil || r.known.TestString(id)
}

// List returns every product in the catalog ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	cur, err := r.products.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer cur.Close(ctx)

	var out []product.Product
	for cur.Next(ctx) {
		var doc productDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode product")
		}
		out = append(out, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}
	return out, nil
}

// GetByID returns a single product, or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	if !r.mightExist(id) {
		return nil, product.ErrNotFound
	}

	var doc productDoc
	err := r.products.FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find product %q", id)
	}
	p := doc.toDomain()
	return &p, nil
}

// GetByIDs fetches the given products in a single query. Missing ids are
// simply absent from the result; the caller decides what a hole means.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cur, err := r.products.Find(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errors.Wrap(err, "find products")
	}
	defer cur.Close(ctx)

	var out []product.Product
	for cur.Next(ctx) {
		var doc productDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode product")
		}
		out = append(out, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}
	return out, nil
}

// Upsert replaces the catalog document for p.ID, inserting it when absent.
// Used by the seed tool; the running server never writes the catalog.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	doc := productDoc{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price.InexactFloat64(),
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Attrs:       p.Attrs,
	}
	_, err := r.products.ReplaceOne(ctx, bson.M{"id": p.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

// EnsureIndexes creates the id index used by every catalog lookup.
func (r *ProductRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Wrap(err, "create products index")
	}
	return nil
}
