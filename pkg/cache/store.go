package cache

import "github.com/speechgraph/core/internal/graph"

// Store is the durable backing for session knowledge graphs. It is a type
// alias for [graph.Store] so callers outside internal/graph can depend on
// the contract without reaching into an internal package.
type Store = graph.Store
