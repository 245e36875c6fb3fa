package database

import (
	"context"

	"github.com/allclear/allclear/backend/go-services/pkg/metrics"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Target names one of the two stores.
type Target int

const (
	Primary Target = iota
	Replica
)

func (t Target) String() string {
	if t == Replica {
		return "replica"
	}
	return "primary"
}

// Handle is the database surface the application uses. Two implementations
// exist, one per Target; the Router forwards every call to the selected one.
type Handle interface {
	Target() Target
	Name() string
	Collection(name string, opts ...*options.CollectionOptions) *mongo.Collection
	ListCollectionNames(ctx context.Context, filter interface{}, opts ...*options.ListCollectionsOptions) ([]string, error)
	RunCommand(ctx context.Context, cmd interface{}, opts ...*options.RunCmdOptions) *mongo.SingleResult
	Ping(ctx context.Context) error
}

type mongoHandle struct {
	target Target
	db     *mongo.Database
}

// NewPrimary wraps the read/write database.
func NewPrimary(db *mongo.Database) Handle { return &mongoHandle{target: Primary, db: db} }

// NewReplica wraps the read-only database.
func NewReplica(db *mongo.Database) Handle { return &mongoHandle{target: Replica, db: db} }

// ReplicaDatabase opens name on client preferring secondaries, for deployments
// without a separate replica connection.
func ReplicaDatabase(client *mongo.Client, name string) *mongo.Database {
	return client.Database(name, options.Database().SetReadPreference(readpref.SecondaryPreferred()))
}

func (h *mongoHandle) Target() Target { return h.target }
func (h *mongoHandle) Name() string   { return h.db.Name() }

func (h *mongoHandle) Collection(name string, opts ...*options.CollectionOptions) *mongo.Collection {
	return h.db.Collection(name, opts...)
}

func (h *mongoHandle) ListCollectionNames(ctx context.Context, filter interface{}, opts ...*options.ListCollectionsOptions) ([]string, error) {
	return h.db.ListCollectionNames(ctx, filter, opts...)
}

func (h *mongoHandle) RunCommand(ctx context.Context, cmd interface{}, opts ...*options.RunCmdOptions) *mongo.SingleResult {
	return h.db.RunCommand(ctx, cmd, opts...)
}

func (h *mongoHandle) Ping(ctx context.Context) error {
	return h.db.Client().Ping(ctx, h.db.ReadPreference())
}

type targetKey struct{}

// Router sends each call to the primary or the replica depending on the
// target selected in the call's context. Without a selection it uses the primary.
type Router struct {
	primary Handle
	replica Handle
}

func NewRouter(primary, replica Handle) *Router {
	if replica == nil {
		replica = primary
	}
	return &Router{primary: primary, replica: replica}
}

// Select records the target for ctx and everything derived from it.
func (r *Router) Select(ctx context.Context, readOnly bool) (context.Context, Handle) {
	t := Primary
	if readOnly {
		t = Replica
	}
	metrics.StoreRoutes.WithLabelValues(t.String()).Inc()
	return context.WithValue(ctx, targetKey{}, t), r.handle(t)
}

// TargetOf returns the target selected in ctx.
func TargetOf(ctx context.Context) Target {
	if t, ok := ctx.Value(targetKey{}).(Target); ok {
		return t
	}
	return Primary
}

// Current returns the handle selected in ctx.
func (r *Router) Current(ctx context.Context) Handle {
	return r.handle(TargetOf(ctx))
}

func (r *Router) handle(t Target) Handle {
	if t == Replica {
		return r.replica
	}
	return r.primary
}

func (r *Router) Name(ctx context.Context) string { return r.Current(ctx).Name() }

func (r *Router) Collection(ctx context.Context, name string, opts ...*options.CollectionOptions) *mongo.Collection {
	return r.Current(ctx).Collection(name, opts...)
}

func (r *Router) ListCollectionNames(ctx context.Context, filter interface{}, opts ...*options.ListCollectionsOptions) ([]string, error) {
	return r.Current(ctx).ListCollectionNames(ctx, filter, opts...)
}

func (r *Router) RunCommand(ctx context.Context, cmd interface{}, opts ...*options.RunCmdOptions) *mongo.SingleResult {
	return r.Current(ctx).RunCommand(ctx, cmd, opts...)
}

func (r *Router) Ping(ctx context.Context) error { return r.Current(ctx).Ping(ctx) }
