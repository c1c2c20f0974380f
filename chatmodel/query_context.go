package chatmodel

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// QueryContext carries the identity of a single user query
// through the orchestration, the tool calls and the callbacks.
type QueryContext interface {
	// GetQueryID returns the unique ID of the query
	GetQueryID() string
	// GetQuery returns the user query text
	GetQuery() string
	// StartedAt returns the time the query was received
	StartedAt() time.Time
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type queryContext struct {
	queryID   string
	query     string
	startedAt time.Time
	metadata  sync.Map
}

func (c *queryContext) GetQueryID() string {
	return c.queryID
}

func (c *queryContext) GetQuery() string {
	return c.query
}

func (c *queryContext) StartedAt() time.Time {
	return c.startedAt
}

func (c *queryContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *queryContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewQueryContext returns QueryContext for the query,
// a new ID is generated when queryID is empty.
func NewQueryContext(queryID, query string) QueryContext {
	return &queryContext{
		queryID:   values.StringsCoalesce(queryID, NewQueryID()),
		query:     query,
		startedAt: time.Now(),
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithQueryContext returns a new context with QueryContext value
func WithQueryContext(ctx context.Context, qctx QueryContext) context.Context {
	return context.WithValue(ctx, keyContext, qctx)
}

// GetQueryContext retrieves the QueryContext from the context
func GetQueryContext(ctx context.Context) QueryContext {
	if v, ok := ctx.Value(keyContext).(QueryContext); ok {
		return v
	}
	return nil
}

// GetQueryID retrieves the query ID from the provided context.
// If the context does not contain a QueryContext, it returns an empty string.
func GetQueryID(ctx context.Context) string {
	if v := GetQueryContext(ctx); v != nil {
		return v.GetQueryID()
	}
	return ""
}

// NewQueryID generates a new query ID using the flake ID generator.
func NewQueryID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
