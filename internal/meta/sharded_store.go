package meta

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spaolacci/murmur3"

	"github.com/g302ge/cnosdb/pkg/types"
)

// DefaultShardCount is the default number of catalog shards.
const DefaultShardCount = 4

// ShardedStore implements Client over N SQLiteStore shards. Shards are
// selected by murmur3 of "catalog/database", so a database and all of its
// tables live in the same shard and dropping a database stays a single-shard
// transaction.
type ShardedStore struct {
	shards     []*SQLiteStore
	shardCount uint32
	baseDir    string
}

// NewShardedStore opens shardCount stores named meta_shard_NNNN.db in baseDir.
func NewShardedStore(baseDir string, shardCount int) (*ShardedStore, error) {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}

	ss := &ShardedStore{
		shards:     make([]*SQLiteStore, shardCount),
		shardCount: uint32(shardCount),
		baseDir:    baseDir,
	}

	for i := 0; i < shardCount; i++ {
		dbPath := filepath.Join(baseDir, fmt.Sprintf("meta_shard_%04d.db", i))
		store, err := NewSQLiteStore(dbPath)
		if err != nil {
			// Close any already-opened shards
			for j := 0; j < i; j++ {
				ss.shards[j].Close()
			}
			return nil, fmt.Errorf("meta: failed to open shard %d: %w", i, err)
		}
		ss.shards[i] = store
	}

	log.Info().Int("shards", shardCount).Str("dir", baseDir).Msg("sharded meta store initialized")
	return ss, nil
}

func (ss *ShardedStore) shardFor(catalog, db string) *SQLiteStore {
	h := murmur3.Sum32([]byte(catalog + "/" + db))
	return ss.shards[h%ss.shardCount]
}

// ShardCount returns the number of shards.
func (ss *ShardedStore) ShardCount() int {
	return int(ss.shardCount)
}

func (ss *ShardedStore) CreateDatabase(ctx context.Context, catalog string, schema types.DatabaseSchema) error {
	return ss.shardFor(catalog, schema.Name).CreateDatabase(ctx, catalog, schema)
}

func (ss *ShardedStore) DropDatabase(ctx context.Context, catalog, name string) error {
	return ss.shardFor(catalog, name).DropDatabase(ctx, catalog, name)
}

func (ss *ShardedStore) Database(ctx context.Context, catalog, name string) (types.DatabaseSchema, error) {
	return ss.shardFor(catalog, name).Database(ctx, catalog, name)
}

// ListDatabases merges the names held by every shard.
func (ss *ShardedStore) ListDatabases(ctx context.Context, catalog string) ([]string, error) {
	names := []string{}
	for i, shard := range ss.shards {
		part, err := shard.ListDatabases(ctx, catalog)
		if err != nil {
			return nil, fmt.Errorf("meta: shard %d: %w", i, err)
		}
		names = append(names, part...)
	}
	sort.Strings(names)
	return names, nil
}

func (ss *ShardedStore) CreateTable(ctx context.Context, catalog string, schema types.TableSchema) error {
	return ss.shardFor(catalog, schema.DB()).CreateTable(ctx, catalog, schema)
}

func (ss *ShardedStore) DropTable(ctx context.Context, catalog, db, name string) error {
	return ss.shardFor(catalog, db).DropTable(ctx, catalog, db, name)
}

func (ss *ShardedStore) Table(ctx context.Context, catalog, db, name string) (types.TableSchema, error) {
	return ss.shardFor(catalog, db).Table(ctx, catalog, db, name)
}

func (ss *ShardedStore) ListTables(ctx context.Context, catalog, db string) ([]string, error) {
	return ss.shardFor(catalog, db).ListTables(ctx, catalog, db)
}

// Close closes every shard and returns the first error.
func (ss *ShardedStore) Close() error {
	var firstErr error
	for _, shard := range ss.shards {
		if err := shard.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
