package graph

import (
	"context"
	"errors"
)

var (
	// ErrAlreadyExists marks a schema statement that found its constraint or index already present.
	ErrAlreadyExists = errors.New("schema object already exists")
	// ErrConnectivity marks a failure to reach the database at all.
	ErrConnectivity = errors.New("graph database unreachable")
	// ErrUnavailable is returned by writes while the circuit breaker is open.
	ErrUnavailable = errors.New("graph store unavailable")
)

// Statement is one parameterized Cypher statement.
type Statement struct {
	Query  string
	Params map[string]any
}

// Row is one result record keyed by column name.
type Row map[string]any

// Executor runs statements against a named graph database.
//
// All statements passed to one ExecuteWrite call run in a single transaction
// and either all commit or none do.
type Executor interface {
	ExecuteWrite(ctx context.Context, stmts ...Statement) error
	ExecuteRead(ctx context.Context, stmt Statement) ([]Row, error)
}
