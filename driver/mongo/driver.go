// Package mongo implements the MongoDB backend. Root-level filters and
// sorts translate to bson documents; join-fetched to-one relations at
// the top level translate to $lookup stages. Predicates and sorts over
// related paths, and join fetch below the first level, are not
// supported and fail with a clear error.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/smartrecord/smartrecord/core"
)

// Driver is the MongoDB implementation of core.Driver.
type Driver struct {
	uri      string
	database string
	client   *mongo.Client
}

var _ core.Driver = (*Driver)(nil)

// New creates a Driver for the given connection URI and database name.
// No connection is made until Connect.
func New(uri, database string) *Driver {
	return &Driver{uri: uri, database: database}
}

// Connect establishes the client and verifies connectivity.
func (d *Driver) Connect(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(d.uri))
	if err != nil {
		return fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("mongo: ping: %w", err)
	}
	d.client = client
	return nil
}

// Ping checks database reachability.
func (d *Driver) Ping(ctx context.Context) error {
	if d.client == nil {
		return fmt.Errorf("mongo: not connected")
	}
	return d.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (d *Driver) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	err := d.client.Disconnect(ctx)
	d.client = nil
	return err
}

// Session returns a new session. MongoDB sessions here are plain
// operation scopes: Commit and Rollback only release them, multi-
// document transactional semantics are not provided.
func (d *Driver) Session(ctx context.Context) (core.Session, error) {
	if d.client == nil {
		return nil, fmt.Errorf("mongo: not connected")
	}
	return &session{db: d.client.Database(d.database)}, nil
}
