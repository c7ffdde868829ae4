package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Client manages Milvus connections
type Client struct {
	conn client.Client
}

// Config holds Milvus connection configuration
type Config struct {
	Address  string `envconfig:"ADDRESS" default:"localhost:19530" yaml:"address"`
	Username string `envconfig:"USERNAME" yaml:"username"`
	Password string `envconfig:"PASSWORD" yaml:"password"`
}

// NewClient creates a new Milvus client
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var conn client.Client
	var err error

	if cfg.Username != "" && cfg.Password != "" {
		conn, err = client.NewClient(ctx, client.Config{
			Address:  cfg.Address,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	} else {
		conn, err = client.NewClient(ctx, client.Config{
			Address: cfg.Address,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		conn: conn,
	}, nil
}

// Close closes the Milvus connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// HasCollection checks if a collection exists
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	return c.conn.HasCollection(ctx, name)
}

// CreateIndex creates an IVF_FLAT cosine index on the embedding field
func (c *Client) CreateIndex(ctx context.Context, collectionName string, nlist int) error {
	idx, err := entity.NewIndexIvfFlat(entity.COSINE, nlist)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return c.conn.CreateIndex(ctx, collectionName, fieldEmbedding, idx, false)
}

// Prepare creates the collection and its index if needed and loads it for search
func (c *Client) Prepare(ctx context.Context, cfg CollectionConfig) error {
	exists, err := c.HasCollection(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		if err := c.CreateCollection(ctx, cfg); err != nil {
			return err
		}
		if err := c.CreateIndex(ctx, cfg.Name, 128); err != nil {
			return err
		}
	}
	if err := c.LoadCollection(ctx, cfg.Name); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// LoadCollection loads a collection into memory
func (c *Client) LoadCollection(ctx context.Context, collectionName string) error {
	return c.conn.LoadCollection(ctx, collectionName, false)
}

// DropCollection drops a collection
func (c *Client) DropCollection(ctx context.Context, collectionName string) error {
	return c.conn.DropCollection(ctx, collectionName)
}
