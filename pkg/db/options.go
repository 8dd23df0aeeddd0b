package db

import (
	"go.uber.org/zap"

	"github.com/docshard/docshard/pkg/indexing"
	"github.com/docshard/docshard/pkg/storage"
)

// Option configures a Database at open time.
type Option func(*config)

type config struct {
	logger                *zap.SugaredLogger
	shardCount            int
	subShardCount         int
	shardCacheSize        int
	skipInitialIndexBuild bool
}

func defaultConfig() *config {
	return &config{
		logger:         zap.NewNop().Sugar(),
		shardCount:     indexing.DefaultShardCount,
		subShardCount:  storage.DefaultSubShardCount,
		shardCacheSize: indexing.DefaultCacheSize,
	}
}

// WithLogger sets the logger used by the database and everything it opens.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithShardCount sets the number of on-disk shards per index.
func WithShardCount(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shardCount = n
		}
	}
}

// WithSubShardCount sets the number of document sub-shards per primary shard.
func WithSubShardCount(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.subShardCount = n
		}
	}
}

// WithShardCacheSize sets how many index shards each index keeps in memory.
func WithShardCacheSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shardCacheSize = n
		}
	}
}

// WithSkipInitialIndexBuild opens collections without rebuilding indexes that
// are declared in the schema but absent on disk. They build lazily on first
// write instead.
func WithSkipInitialIndexBuild() Option {
	return func(c *config) {
		c.skipInitialIndexBuild = true
	}
}
