// Package core provides the building blocks of the smartrecord engine.
// This file defines the middleware system, which allows cross-cutting
// concerns (logging, caching, auditing) to be applied to every executed
// operation.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// OperationKind represents the type of operation being executed.
type OperationKind string

const (
	// OperationFind corresponds to a row-returning fetch.
	OperationFind OperationKind = "find"
	// OperationAggregate corresponds to an aggregate/grouped fetch.
	OperationAggregate OperationKind = "aggregate"
	// OperationInsert corresponds to an insert.
	OperationInsert OperationKind = "insert"
	// OperationUpdate corresponds to an update.
	OperationUpdate OperationKind = "update"
	// OperationDelete corresponds to a delete.
	OperationDelete OperationKind = "delete"
	// OperationRefresh corresponds to re-reading one instance.
	OperationRefresh OperationKind = "refresh"
)

// FindPayload travels through the middleware chain for find and
// aggregate operations. The executor fills Rows inside the chain's
// innermost handler; middlewares that satisfy the operation themselves
// (such as the read cache) set Rows and Cached and skip the rest.
type FindPayload struct {
	Query  *AssembledQuery
	Rows   []Row
	Cached bool
}

// MutationPayload travels through the chain for insert, update, delete
// and refresh operations.
type MutationPayload struct {
	Model      *ModelMeta
	PrimaryKey any
	Values     Row
	Changes    Changes
}

// Handler is the function signature executed by the middleware pipeline.
type Handler func(ctx context.Context, op OperationKind, payload any) error

// Middleware is a function that wraps a Handler with additional logic.
//
// Middlewares are chained globally and executed for every operation.
// They follow the decorator pattern.
type Middleware func(next Handler) Handler

var globalMiddlewareList []Middleware

// Use registers a new global middleware, applied to all operations.
//
// Middlewares run in registration order: the first registered
// middleware is the outermost wrapper.
func Use(mw Middleware) {
	globalMiddlewareList = append(globalMiddlewareList, mw)
}

// runMiddlewares applies the chain of middlewares to the final handler.
func runMiddlewares(final Handler) Handler {
	h := final
	for i := len(globalMiddlewareList) - 1; i >= 0; i-- {
		h = globalMiddlewareList[i](h)
	}
	return h
}

// dispatchOperation executes an operation through the global middleware
// chain. The exec function contains the operation's core logic.
func dispatchOperation(ctx context.Context, op OperationKind, payload any, exec func() error) error {
	handler := runMiddlewares(func(ctx context.Context, op OperationKind, payload any) error {
		return exec()
	})
	return handler(ctx, op, payload)
}

// DebugMiddleware logs all operations passing through the engine.
//
// It measures execution time and prints both success and error cases.
//
// Example:
//
//	core.Use(core.DebugMiddleware())
func DebugMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op OperationKind, payload any) error {
			start := time.Now()
			fmt.Printf("[DEBUG] op=%s payload=%+v\n", op, payload)
			err := next(ctx, op, payload)
			elapsed := time.Since(start)
			if err != nil {
				fmt.Printf("[DEBUG] op=%s error=%v took=%s\n", op, err, elapsed)
			} else {
				fmt.Printf("[DEBUG] op=%s success took=%s\n", op, elapsed)
			}
			return err
		}
	}
}

// Cache defines the interface for pluggable caching mechanisms.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

// memoryCache is a simple in-memory Cache implementation.
type memoryCache struct {
	data  map[string]memoryEntry
	mutex sync.RWMutex
}

type memoryEntry struct {
	value      any
	expiration time.Time
}

// NewMemoryCache creates a new in-memory Cache instance.
func NewMemoryCache() Cache {
	return &memoryCache{
		data: make(map[string]memoryEntry),
	}
}

// Get retrieves a value from the cache by key.
// It returns false if the key does not exist or is expired.
func (c *memoryCache) Get(key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if !entry.expiration.IsZero() && time.Now().After(entry.expiration) {
		return nil, false
	}
	return entry.value, true
}

// Set stores a value in the cache with the given TTL (time-to-live).
// If TTL is 0, the entry does not expire.
func (c *memoryCache) Set(key string, value any, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.data[key] = memoryEntry{value: value, expiration: exp}
}

// CacheMiddleware adds caching for find and aggregate operations.
//
// Results are cached keyed by the assembled query's description. When
// the same query executes again within the TTL window, the cached rows
// are handed to the executor without a database round-trip. Mutating
// operations bypass the cache entirely.
//
// Example:
//
//	cache := core.NewMemoryCache()
//	core.Use(core.CacheMiddleware(cache, time.Minute))
func CacheMiddleware(cache Cache, ttl time.Duration) Middleware {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, op OperationKind, payload any) error {
			if op != OperationFind && op != OperationAggregate {
				return next(ctx, op, payload)
			}
			find, ok := payload.(*FindPayload)
			if !ok {
				return next(ctx, op, payload)
			}

			key := string(op) + ":" + find.Query.Description()
			if rows, hit := cache.Get(key); hit {
				find.Rows = rows.([]Row)
				find.Cached = true
				return nil
			}

			err := next(ctx, op, payload)
			if err == nil {
				cache.Set(key, find.Rows, ttl)
			}
			return err
		}
	}
}
