package manager

import (
	"time"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxContextsPerModel = 10
	defaultContextTTL          = 30 * time.Minute
	defaultJanitorInterval     = 5 * time.Minute
	defaultDrainTimeout        = 5 * time.Second
	defaultStreamWorkers       = 8
	defaultBatchWorkers        = 1
	defaultBatchQueueDepth     = 32
)

// bytesPerParameter is the fp16 weight size used for memory estimates.
const bytesPerParameter = 2

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// MemoryLimitBytes caps estimated memory across loaded models.
	// 0 means unlimited.
	MemoryLimitBytes uint64
	// MaxContextsPerModel bounds each model's context pool.
	MaxContextsPerModel int
	// ContextTTL is the idle time after which a pooled context is evicted.
	ContextTTL time.Duration
	// JanitorInterval is the period of the idle-context sweep.
	JanitorInterval time.Duration
	// DrainTimeout bounds how long unload waits for a pool to go idle.
	DrainTimeout time.Duration
	// StreamWorkers bounds concurrently generating streaming sessions.
	StreamWorkers int
	// BatchWorkers is the number of batch queue consumers.
	BatchWorkers int
	// BatchQueueDepth bounds submitted-but-unstarted batch requests.
	BatchQueueDepth int
	// Publisher receives lifecycle events; nil drops them.
	Publisher EventPublisher
}

// withDefaults returns cfg with unset fields replaced by package defaults.
func (cfg Config) withDefaults() Config {
	if cfg.MaxContextsPerModel <= 0 {
		cfg.MaxContextsPerModel = defaultMaxContextsPerModel
	}
	if cfg.ContextTTL <= 0 {
		cfg.ContextTTL = defaultContextTTL
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = defaultJanitorInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.StreamWorkers <= 0 {
		cfg.StreamWorkers = defaultStreamWorkers
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = defaultBatchWorkers
	}
	if cfg.BatchQueueDepth <= 0 {
		cfg.BatchQueueDepth = defaultBatchQueueDepth
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	return cfg
}
