// Package db implements the opening and graceful closing of record store connections.
package db

import (
	"errors"
	"fmt"

	"github.com/tarancss/rentguard/lib/store"
	"github.com/tarancss/rentguard/lib/store/memory"
	"github.com/tarancss/rentguard/lib/store/mongo"
	"github.com/tarancss/rentguard/lib/store/postgres"
)

const (
	MEMORY   string = "memory"
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
)

// ErrUnknownType is returned for store types not implemented.
var ErrUnknownType = errors.New("unknown record store type")

// New returns a new store connection according to the options (store type).
func New(options, connection string) (store.Store, error) {
	switch options {
	case MEMORY, "":
		return memory.New(), nil
	case MONGODB:
		return mongo.New(connection)
	case POSTGRES:
		return postgres.New(connection)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownType, options)
}

// Close gracefully closes the store connection.
func Close(options string, dh store.Store) error {
	switch options {
	case MONGODB:
		return dh.(*mongo.Mongo).CloseMongo()
	case POSTGRES:
		return dh.(*postgres.Postgres).ClosePostgres()
	}

	return nil
}
