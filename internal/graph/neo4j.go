package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config holds Neo4j connection settings.
type Config struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	// ConnectTimeout bounds socket connects and the initial connectivity check.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// TxTimeout is the server-side timeout applied to every transaction.
	TxTimeout time.Duration `yaml:"tx_timeout"`
	// MaxRetryTime bounds driver-level retries of transient transaction errors.
	MaxRetryTime time.Duration `yaml:"max_retry_time"`
	MaxPoolSize  int           `yaml:"max_pool_size"`
}

func (c Config) withDefaults() Config {
	if c.User == "" {
		c.User = "neo4j"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.TxTimeout <= 0 {
		c.TxTimeout = 30 * time.Second
	}
	if c.MaxRetryTime <= 0 {
		c.MaxRetryTime = 15 * time.Second
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 50
	}
	return c
}

// Neo4jExecutor implements Executor on the official Neo4j driver.
// It is safe for concurrent use; sessions are opened per call over the driver's pool.
type Neo4jExecutor struct {
	driver    neo4j.DriverWithContext
	database  string
	txTimeout time.Duration
}

// Connect creates a driver and verifies the database is reachable.
func Connect(ctx context.Context, cfg Config) (*Neo4jExecutor, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("graph.Connect: uri required")
	}
	cfg = cfg.withDefaults()

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.ConnectTimeout
		c.MaxTransactionRetryTime = cfg.MaxRetryTime
	})
	if err != nil {
		return nil, fmt.Errorf("graph.Connect: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph.Connect: verify connectivity: %w: %v", ErrConnectivity, err)
	}

	return &Neo4jExecutor{
		driver:    driver,
		database:  cfg.Database,
		txTimeout: cfg.TxTimeout,
	}, nil
}

// Close releases the driver's connections.
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	if e == nil || e.driver == nil {
		return nil
	}
	return e.driver.Close(ctx)
}

// ExecuteWrite implements Executor.
func (e *Neo4jExecutor) ExecuteWrite(ctx context.Context, stmts ...Statement) error {
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: e.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range stmts {
			res, err := tx.Run(ctx, stmt.Query, stmt.Params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, neo4j.WithTxTimeout(e.txTimeout))
	if err != nil {
		return classify(err)
	}
	return nil
}

// ExecuteRead implements Executor.
func (e *Neo4jExecutor) ExecuteRead(ctx context.Context, stmt Statement) ([]Row, error) {
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: e.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, stmt.Query, stmt.Params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(records))
		for _, rec := range records {
			rows = append(rows, Row(rec.AsMap()))
		}
		return rows, nil
	}, neo4j.WithTxTimeout(e.txTimeout))
	if err != nil {
		return nil, classify(err)
	}
	return out.([]Row), nil
}

var alreadyExistsCodes = map[string]bool{
	"Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists": true,
	"Neo.ClientError.Schema.ConstraintAlreadyExists":           true,
	"Neo.ClientError.Schema.IndexAlreadyExists":                true,
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && alreadyExistsCodes[neoErr.Code] {
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	return err
}
