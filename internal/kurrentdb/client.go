package kurrentdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
)

// Client wraps the EventStore client.
type Client struct {
	db     *esdb.Client
	config *Config
	mu     sync.RWMutex
}

// NewClient creates a new KurrentDB client. No connection is made until the
// first call.
func NewClient(cfg *Config) (*Client, error) {
	settings, err := esdb.ParseConnectionString(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Client{
		db:     db,
		config: cfg,
	}, nil
}

// DB returns the underlying EventStore client.
func (c *Client) DB() *esdb.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// HealthCheck verifies the connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stream, err := c.DB().ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}

// StreamRevision returns the number of the last event in a stream, or false
// if the stream does not exist yet.
func (c *Client) StreamRevision(ctx context.Context, streamName string) (uint64, bool, error) {
	stream, err := c.DB().ReadStream(ctx, streamName, esdb.ReadStreamOptions{
		From:      esdb.End{},
		Direction: esdb.Backwards,
	}, 1)
	if err != nil {
		return 0, false, err
	}
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok && esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}

	return event.Event.EventNumber, true, nil
}
