package server

import (
	"context"
	"errors"

	"github.com/dray-io/fimcondense/internal/docstore"
	"github.com/dray-io/fimcondense/internal/metadata"
	"github.com/dray-io/fimcondense/internal/objectstore"
)

// DocStoreChecker implements ReadinessChecker for the document store.
type DocStoreChecker struct {
	store docstore.Store
}

// NewDocStoreChecker creates a new DocStoreChecker.
func NewDocStoreChecker(store docstore.Store) *DocStoreChecker {
	return &DocStoreChecker{store: store}
}

func (c *DocStoreChecker) Name() string { return "document_store" }

// CheckReady pings the cluster.
func (c *DocStoreChecker) CheckReady(ctx context.Context) error {
	if c.store == nil {
		return errors.New("document store not configured")
	}
	return c.store.Ping(ctx)
}

// MetadataStoreChecker implements ReadinessChecker for the metadata store.
// It verifies the Oxia connection by reading a key.
type MetadataStoreChecker struct {
	store metadata.MetadataStore
	key   string
}

// NewMetadataStoreChecker creates a checker that reads key. Whether the key
// exists does not matter.
func NewMetadataStoreChecker(store metadata.MetadataStore, key string) *MetadataStoreChecker {
	return &MetadataStoreChecker{store: store, key: key}
}

func (c *MetadataStoreChecker) Name() string { return "metadata_store" }

func (c *MetadataStoreChecker) CheckReady(ctx context.Context) error {
	if c.store == nil {
		return errors.New("metadata store not configured")
	}
	_, err := c.store.Get(ctx, c.key)
	return err
}

// ObjectStoreChecker implements ReadinessChecker for the audit archive.
// A Get on a missing key that returns ErrNotFound proves the bucket is
// reachable with our credentials.
type ObjectStoreChecker struct {
	store objectstore.Store
	key   string
}

// NewObjectStoreChecker creates a checker probing key, which should not exist.
func NewObjectStoreChecker(store objectstore.Store, key string) *ObjectStoreChecker {
	return &ObjectStoreChecker{store: store, key: key}
}

func (c *ObjectStoreChecker) Name() string { return "object_store" }

func (c *ObjectStoreChecker) CheckReady(ctx context.Context) error {
	if c.store == nil {
		return errors.New("object store not configured")
	}
	rc, err := c.store.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil
		}
		return err
	}
	rc.Close()
	return nil
}

// FuncChecker is a simple ReadinessChecker that wraps a function.
type FuncChecker struct {
	name  string
	check func(context.Context) error
}

// NewFuncChecker creates a new FuncChecker with the given name and check function.
func NewFuncChecker(name string, check func(context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, check: check}
}

func (c *FuncChecker) Name() string { return c.name }

// CheckReady calls the wrapped function.
func (c *FuncChecker) CheckReady(ctx context.Context) error {
	if c.check == nil {
		return nil
	}
	return c.check(ctx)
}
