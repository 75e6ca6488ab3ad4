package lode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/sluice/search"
	"github.com/pithecene-io/sluice/types"
)

// ErrInvalidArtifactName is returned when an artifact name would escape
// the operation's files/ prefix.
var ErrInvalidArtifactName = errors.New("invalid artifact name")

// Client is a Lode-backed implementation of Publisher.
// Uses Lode's HiveLayout with partition keys: source/day/operation_id/record_kind.
type Client struct {
	dataset lode.Dataset
	config  Config

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewClient(cfg Config, root string) (*Client, error) {
	return NewClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewClientWithFactory(cfg Config, factory lode.StoreFactory) (*Client, error) {
	cfg = cfg.withDefaults()
	ds, err := NewReadDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Client{dataset: ds, config: cfg, storeFactory: factory}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.config }

// PutArtifact uploads r to
// datasets/<dataset>/partitions/source=<s>/day=<d>/operation_id=<id>/files/<name>,
// bypassing Dataset segment/manifest machinery entirely.
func (c *Client) PutArtifact(ctx context.Context, meta *types.OperationMeta, name string, r io.Reader) (string, error) {
	if name == "" || name == "." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidArtifactName, name)
	}

	store, err := c.getOrCreateStore()
	if err != nil {
		return "", WrapInitError(err, c.config.Dataset)
	}

	path := c.buildFilePath(meta, name)
	if err := store.Put(ctx, path, r); err != nil {
		return "", WrapPutError(err, path)
	}
	return path, nil
}

// WriteMatches writes one match record per extracted message in a single
// snapshot. An empty batch writes nothing.
func (c *Client) WriteMatches(ctx context.Context, meta *types.OperationMeta, matches []search.ExtractedMatchValue) error {
	if len(matches) == 0 {
		return nil
	}
	records := make([]any, 0, len(matches))
	for _, m := range matches {
		records = append(records, toMatchRecordMap(c.config, meta, m))
	}
	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}
	return nil
}

// WriteSummary writes the operation summary record.
func (c *Client) WriteSummary(ctx context.Context, s Summary) error {
	if s.Meta == nil {
		return errors.New("summary without operation metadata")
	}
	records := []any{toSummaryRecordMap(c.config, s)}
	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// getOrCreateStore lazily initializes the Store from the factory.
func (c *Client) getOrCreateStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	return c.store, c.storeErr
}

func (c *Client) buildFilePath(meta *types.OperationMeta, name string) string {
	return fmt.Sprintf("datasets/%s/partitions/source=%s/day=%s/operation_id=%s/files/%s",
		c.config.Dataset,
		c.config.Source,
		DeriveDay(meta.StartedAt),
		meta.ID,
		name,
	)
}

// Verify Client implements Publisher.
var _ Publisher = (*Client)(nil)
