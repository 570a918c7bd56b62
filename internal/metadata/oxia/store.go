package oxia

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/dray-io/fimcondense/internal/metadata"
)

// Config configures the Oxia metadata store.
type Config struct {
	// ServiceAddress is the Oxia service endpoint (e.g., "localhost:6648").
	ServiceAddress string

	// Namespace is the Oxia namespace to use. All keys are scoped to it.
	Namespace string

	// RequestTimeout is the timeout for individual requests.
	// Default: 30 seconds.
	RequestTimeout time.Duration

	// SessionTimeout is the timeout for ephemeral key sessions.
	// When the session expires, all ephemeral keys are deleted.
	// Default: 15 seconds.
	SessionTimeout time.Duration
}

// Store implements MetadataStore using Oxia.
type Store struct {
	client oxiaclient.SyncClient

	mu     sync.RWMutex
	closed bool
}

// New creates a new Oxia metadata store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := []oxiaclient.ClientOption{
		oxiaclient.WithNamespace(cfg.Namespace),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, oxiaclient.WithRequestTimeout(cfg.RequestTimeout))
	}
	if cfg.SessionTimeout > 0 {
		opts = append(opts, oxiaclient.WithSessionTimeout(cfg.SessionTimeout))
	}

	client, err := oxiaclient.NewSyncClient(cfg.ServiceAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("oxia: failed to create client: %w", err)
	}

	return &Store{client: client}, nil
}

func (c Config) validate() error {
	if c.ServiceAddress == "" {
		return errors.New("oxia: service address is required")
	}
	if c.Namespace == "" {
		return errors.New("oxia: namespace is required")
	}
	return nil
}

// oxiaToMetadataVersion converts Oxia's 0-based version to our 1-based version.
// Oxia versions start at 0, but our interface uses 0 to mean "key doesn't exist".
func oxiaToMetadataVersion(oxiaVersion int64) metadata.Version {
	return metadata.Version(oxiaVersion + 1)
}

// metadataToOxiaVersion converts our 1-based version to Oxia's 0-based version.
func metadataToOxiaVersion(metaVersion metadata.Version) int64 {
	return int64(metaVersion - 1)
}

func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return metadata.ErrStoreClosed
	}
	return nil
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) (metadata.GetResult, error) {
	if err := s.checkClosed(); err != nil {
		return metadata.GetResult{}, err
	}

	_, value, version, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return metadata.GetResult{Exists: false}, nil
		}
		return metadata.GetResult{}, fmt.Errorf("oxia: get failed: %w", err)
	}

	return metadata.GetResult{
		Value:   value,
		Version: oxiaToMetadataVersion(version.VersionId),
		Exists:  true,
	}, nil
}

// PutEphemeral stores a value that is automatically deleted when the client session ends.
func (s *Store) PutEphemeral(ctx context.Context, key string, value []byte, opts ...metadata.EphemeralOption) (metadata.Version, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}

	expectNotExists, expectedVersion := metadata.ExtractEphemeralOptions(opts)

	oxiaOpts := []oxiaclient.PutOption{oxiaclient.Ephemeral()}
	if expectNotExists {
		oxiaOpts = append(oxiaOpts, oxiaclient.ExpectedRecordNotExists())
	} else if expectedVersion != nil {
		oxiaOpts = append(oxiaOpts, oxiaclient.ExpectedVersionId(metadataToOxiaVersion(*expectedVersion)))
	}

	_, version, err := s.client.Put(ctx, key, value, oxiaOpts...)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
			return 0, metadata.ErrVersionMismatch
		}
		return 0, fmt.Errorf("oxia: put ephemeral failed: %w", err)
	}

	return oxiaToMetadataVersion(version.VersionId), nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string, opts ...metadata.DeleteOption) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	var oxiaOpts []oxiaclient.DeleteOption
	if expectedVersion := metadata.ExtractDeleteExpectedVersion(opts); expectedVersion != nil {
		oxiaOpts = append(oxiaOpts, oxiaclient.ExpectedVersionId(metadataToOxiaVersion(*expectedVersion)))
	}

	err := s.client.Delete(ctx, key, oxiaOpts...)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			// Delete is idempotent - key not found is not an error
			return nil
		}
		if errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
			return metadata.ErrVersionMismatch
		}
		return fmt.Errorf("oxia: delete failed: %w", err)
	}

	return nil
}

// Close releases resources held by the store. Ephemeral keys are removed by
// the server once the session closes.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

var _ metadata.MetadataStore = (*Store)(nil)
