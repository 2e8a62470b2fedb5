package cherry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
)

const (
	storeBackendFile     = "file"
	storeBackendDatabase = "database"
	storeBackendRedis    = "redis"

	documentDeleteSchedule = "delete_schedule"
	documentAutoban        = "autobanConfig"
	documentWarnings       = "warnings"
	documentAIThreads      = "aiThreads"
	documentSignIns        = "signInRecords"
	documentMemoryPrefix   = "memory/"
)

// KeyValueStore loads and saves named JSON documents.
// Load reports found=false (and no error) for a document that was never
// saved.
type KeyValueStore interface {
	Load(ctx context.Context, name string) (data []byte, found bool, err error)
	Save(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
}

// NewStore returns the KeyValueStore selected by cfg. db is only used
// by the 'database' backend.
func NewStore(cfg *Config, db DBI) (KeyValueStore, error) {
	sc := cfg.Store
	if sc == nil {
		sc = &StoreConfig{Backend: DefaultStoreBackend}
	}
	switch sc.Backend {
	case storeBackendFile, "":
		return newFileStore(cfg.DataDir), nil
	case storeBackendDatabase:
		if db == nil {
			return nil, errors.New("database store requires a database connection")
		}
		return newDatabaseStore(db), nil
	case storeBackendRedis:
		client := redis.NewClient(
			&redis.Options{
				Addr:     sc.RedisAddr,
				Password: sc.RedisPassword,
				DB:       sc.RedisDB,
			},
		)
		return newRedisStore(client, sc.RedisKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", sc.Backend)
	}
}

// Document is the single serialized accessor for one named document.
// All read-modify-write cycles on the document go through Update, which
// holds the document's lock, so concurrent handlers can't lose updates.
//
// A missing or unreadable document loads as the value returned by def.
type Document[T any] struct {
	store  KeyValueStore
	name   string
	def    func() T
	mu     sync.Mutex
	logger *slog.Logger
}

func NewDocument[T any](
	store KeyValueStore,
	name string,
	def func() T,
	logger *slog.Logger,
) *Document[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Document[T]{
		store:  store,
		name:   name,
		def:    def,
		logger: logger.With("document", name),
	}
}

func (d *Document[T]) Name() string {
	return d.name
}

// Load returns the current document value. Read and decode failures are
// logged, and the default value is returned in their place.
func (d *Document[T]) Load(ctx context.Context) T {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, _ := d.load(ctx)
	return v
}

func (d *Document[T]) load(ctx context.Context) (T, error) {
	data, found, err := d.store.Load(ctx, d.name)
	if err != nil {
		d.logger.ErrorContext(ctx, "error loading document", tint.Err(err))
		return d.def(), fmt.Errorf("%w: loading %s: %w", ErrPersistence, d.name, err)
	}
	// null decodes to the zero value, which for maps is nil
	data = bytes.TrimSpace(data)
	if !found || len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return d.def(), nil
	}
	v := d.def()
	if err = json.Unmarshal(data, &v); err != nil {
		d.logger.ErrorContext(ctx, "error decoding document", tint.Err(err))
		return d.def(), fmt.Errorf("%w: decoding %s: %w", ErrPersistence, d.name, err)
	}
	return v, nil
}

func (d *Document[T]) save(ctx context.Context, v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPersistence, d.name, err)
	}
	if err = d.store.Save(ctx, d.name, data); err != nil {
		d.logger.ErrorContext(ctx, "error saving document", tint.Err(err))
		return fmt.Errorf("%w: saving %s: %w", ErrPersistence, d.name, err)
	}
	return nil
}

// Save replaces the document with v
func (d *Document[T]) Save(ctx context.Context, v T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.save(ctx, v)
}

// Update loads the document, applies fn, and saves the result. If fn
// returns an error, nothing is saved and the error is returned.
// A load failure is logged and fn operates on the default value.
func (d *Document[T]) Update(ctx context.Context, fn func(v *T) error) (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, _ := d.load(ctx)
	if err := fn(&v); err != nil {
		return v, err
	}
	return v, d.save(ctx, v)
}

// Delete removes the persisted document
func (d *Document[T]) Delete(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.Delete(ctx, d.name); err != nil {
		return fmt.Errorf("%w: deleting %s: %w", ErrPersistence, d.name, err)
	}
	return nil
}

func emptyMap[K comparable, V any]() func() map[K]V {
	return func() map[K]V {
		return map[K]V{}
	}
}
