// Package database connects the primary and replica Mongo stores and routes calls between them.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/allclear/allclear/backend/go-services/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration, rp *readpref.ReadPref) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	clientOpts := options.Client().ApplyURI(uri)
	if rp != nil {
		clientOpts.SetReadPreference(rp)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, rp); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// Stores owns the clients behind a Router.
type Stores struct {
	Router  *Router
	clients []*mongo.Client
}

// Open connects the primary and, when configured, a separate replica.
// Without a replica URI the replica handle reads the primary deployment's secondaries.
func Open(ctx context.Context, cfg config.MongoDBConfig) (*Stores, error) {
	primary, err := ConnectMongo(ctx, cfg.URI, cfg.Timeout, nil)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}
	s := &Stores{clients: []*mongo.Client{primary}}

	replicaDB := ReplicaDatabase(primary, cfg.Database)
	if cfg.ReplicaURI != "" {
		replica, err := ConnectMongo(ctx, cfg.ReplicaURI, cfg.Timeout, readpref.SecondaryPreferred())
		if err != nil {
			_ = s.Close(context.Background())
			return nil, fmt.Errorf("replica: %w", err)
		}
		s.clients = append(s.clients, replica)
		replicaDB = ReplicaDatabase(replica, cfg.Database)
	}

	s.Router = NewRouter(NewPrimary(primary.Database(cfg.Database)), NewReplica(replicaDB))
	return s, nil
}

// Close disconnects every client, returning the first error.
func (s *Stores) Close(ctx context.Context) error {
	var first error
	for _, c := range s.clients {
		if err := c.Disconnect(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
