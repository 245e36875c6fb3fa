package people

import (
	"context"
	"errors"
	"time"

	"github.com/allclear/allclear/backend/go-services/internal/database"
	"github.com/allclear/allclear/backend/go-services/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collection = "people"

// Repository defines persistence operations for people
type Repository interface {
	GetByPhone(ctx context.Context, phone string) (*models.Person, error)
	Create(ctx context.Context, p *models.Person) (*models.Person, error)
	Update(ctx context.Context, p *models.Person) (*models.Person, error)
}

// MongoRepository implements Repository on the routed Mongo stores.
// Reads follow the target selected in the context; writes always go to the primary.
type MongoRepository struct {
	router *database.Router
}

func NewMongoRepository(router *database.Router) *MongoRepository {
	return &MongoRepository{router: router}
}

func (r *MongoRepository) GetByPhone(ctx context.Context, phone string) (*models.Person, error) {
	var p models.Person
	if err := r.router.Collection(ctx, collection).FindOne(ctx, bson.M{"phone": phone}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *MongoRepository) Create(ctx context.Context, p *models.Person) (*models.Person, error) {
	ctx, col := r.primary(ctx)
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := col.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrPhoneTaken
		}
		return nil, err
	}
	return p, nil
}

func (r *MongoRepository) Update(ctx context.Context, p *models.Person) (*models.Person, error) {
	ctx, col := r.primary(ctx)
	p.UpdatedAt = time.Now().UTC()
	set := bson.M{"$set": bson.M{
		"name":      p.Name,
		"active":    p.Active,
		"updatedAt": p.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Person
	if err := col.FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, set, opts).Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

// EnsureIndexes creates the unique phone index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	ctx, col := r.primary(ctx)
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "phone", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoRepository) primary(ctx context.Context) (context.Context, *mongo.Collection) {
	ctx, h := r.router.Select(ctx, false)
	return ctx, h.Collection(collection)
}
