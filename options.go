package kvlite

import (
	"regexp"
	"time"

	"github.com/kvlite-go/kvlite/internal/codec"
)

// cacheNamePattern restricts CacheName to characters safe in both file
// paths and SQL identifiers.
var cacheNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-. ]*$`)

// Mode selects which bundled SQLite driver backs the cache.
type Mode int

const (
	// Persistent opens a file-backed database via mattn/go-sqlite3, with
	// WAL journaling, surviving process restarts.
	Persistent Mode = iota
	// Volatile opens an in-process, shared-cache database via
	// modernc.org/sqlite; everything is lost when the keep-alive
	// connection is closed.
	Volatile
)

// Options configures a Cache. The zero value is not usable directly; call
// DefaultOptions and override fields.
type Options struct {
	// Mode selects the persistent or volatile driver.
	Mode Mode

	// CacheName identifies this cache instance; must match
	// ^[A-Za-z0-9_\-. ]*$. Used to derive the connection string and, for
	// the volatile driver, to namespace the shared in-memory database.
	CacheName string

	// DataDir is the directory the persistent SQLite file lives in. It is
	// created if it does not exist. Ignored for Volatile.
	DataDir string

	// EntriesTableName and SchemaName name the backing table and (if the
	// driver supports schemas) its schema. Cache.SetEntriesTable changes
	// them at runtime and rewires every cached SQL template.
	EntriesTableName string
	SchemaName       string

	// DefaultPartition is used when a caller omits a partition.
	DefaultPartition string

	// StaticInterval is the sliding interval used by Static-mode entries.
	// Defaults to 30 days.
	StaticInterval time.Duration

	// MaxCacheSizeMB is an advisory upper bound; the persistent driver maps
	// it to PRAGMA max_page_count.
	MaxCacheSizeMB int

	// MinValueLengthForCompression is the byte threshold above which the
	// codec snappy-compresses a serialized value. Defaults to 4096.
	MinValueLengthForCompression int

	// ChancesOfAutoCleanup is the probability, in [0,1], that a successful
	// write triggers a ConsiderExpiry Clear afterward. Defaults to 0.01.
	ChancesOfAutoCleanup float64

	// MaxParentKeyCountPerItem caps how many parent pointers a single
	// Add* call may specify. Both bundled drivers provide 5 parent columns;
	// Open rejects a value above 5 with KindInvalidArgument.
	MaxParentKeyCountPerItem int

	// MaxParentKeyTreeDepth bounds how deep parent chains may nest: an Add*
	// call whose new entry would sit deeper than this below its topmost
	// ancestor fails with KindTooManyParents.
	MaxParentKeyTreeDepth int

	// MaxOpenConns / MaxIdleConns size the underlying *sql.DB pool.
	MaxOpenConns int
	MaxIdleConns int

	// SuppressTransientLog, if non-nil, is consulted before logging a
	// KindTransient error; returning true suppresses the log line (but the
	// error is still recorded in LastError).
	SuppressTransientLog func(error) bool

	// Serializer selects the wire format the codec wraps. Defaults to
	// codec.JSONSerializer{}; set codec.BinarySerializer{} for values that
	// don't round-trip cleanly through JSON.
	Serializer codec.Serializer
}

// DefaultOptions returns the engine's defaults.
func DefaultOptions() Options {
	return Options{
		Mode:                         Persistent,
		CacheName:                    "kvlite",
		DataDir:                      "./data",
		EntriesTableName:             "kvl_cache_entries",
		SchemaName:                   "",
		DefaultPartition:             "default",
		StaticInterval:               30 * 24 * time.Hour,
		MaxCacheSizeMB:               0,
		MinValueLengthForCompression: 4096,
		ChancesOfAutoCleanup:         0.01,
		MaxParentKeyCountPerItem:     5,
		MaxParentKeyTreeDepth:        8,
		MaxOpenConns:                 16,
		MaxIdleConns:                 4,
		Serializer:                   codec.JSONSerializer{},
	}
}

// validate checks the option fields the facade must reject before Open
// touches a driver at all.
func (o *Options) validate() error {
	if !cacheNamePattern.MatchString(o.CacheName) {
		return newErr("Options.validate", KindInvalidArgument, nil)
	}
	if o.StaticInterval < 0 {
		return newErr("Options.validate", KindInvalidArgument, nil)
	}
	if o.ChancesOfAutoCleanup < 0 || o.ChancesOfAutoCleanup > 1 {
		return newErr("Options.validate", KindInvalidArgument, nil)
	}
	if o.MaxParentKeyCountPerItem < 0 || o.MaxParentKeyCountPerItem > 5 {
		return newErr("Options.validate", KindInvalidArgument, nil)
	}
	if o.EntriesTableName == "" {
		return newErr("Options.validate", KindInvalidArgument, nil)
	}
	return nil
}
