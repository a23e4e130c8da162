package sql

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	// drivers for every supported dialect
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/sllt/kitesql/pkg/kitesql/datasource"
)

// Opener opens the handle a connection pins its session on.
type Opener func(ctx context.Context, dialect Dialect, cfg *DBConfig) (*sql.DB, error)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger statements are recorded to.
func WithLogger(logger datasource.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics sets the metrics statements are recorded to.
func WithMetrics(metrics datasource.Metrics) Option {
	return func(r *Registry) { r.metrics = metrics }
}

// WithTracer sets the tracer operations open spans on.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) { r.tracer = tracer }
}

// WithOpener replaces the default driver based opener.
func WithOpener(opener Opener) Option {
	return func(r *Registry) { r.opener = opener }
}

// Registry maps aliases to open connections. The first registered alias is the default.
// Registration is meant to happen at startup; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*DB
	def   string

	logger  datasource.Logger
	metrics datasource.Metrics
	tracer  trace.Tracer
	opener  Opener
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		conns:  make(map[string]*DB),
		opener: openDriver,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.tracer == nil {
		r.tracer = otel.GetTracerProvider().Tracer("kitesql")
	}

	if r.metrics != nil {
		r.metrics.NewHistogram(statsHistogram, "Response time of SQL queries in milliseconds.",
			.05, .075, .1, .125, .15, .2, .3, .5, .75, 1, 2, 3, 4, 5, 7.5, 10)
		r.metrics.NewCounter(batchCounter, "Number of failed batch statement executions.")
	}

	return r
}

func openDriver(_ context.Context, dialect Dialect, cfg *DBConfig) (*sql.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	return otelsql.Open(dialect.driverName(), dsn,
		otelsql.WithAttributes(attribute.String("db.system", string(dialect))))
}

// Register opens a connection for cfg under alias. An empty alias falls back to cfg.Alias and
// then to "default". Registering a taken alias fails with ErrDuplicateAlias and leaves the
// registry unchanged.
func (r *Registry) Register(ctx context.Context, alias string, cfg *DBConfig) (*DB, error) {
	if alias == "" && cfg != nil {
		alias = cfg.Alias
	}

	if alias == "" {
		alias = defaultAlias
	}

	if cfg == nil {
		cfg = &DBConfig{}
	}

	if r.has(alias) {
		return nil, newError(ErrDuplicateAlias, "Register", alias, nil)
	}

	dialect, err := ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, newError(ErrConnection, "Register", alias, err)
	}

	pool, err := r.opener(ctx, dialect, cfg)
	if err != nil {
		return nil, newError(ErrConnection, "Register", alias, err)
	}

	db, err := newDB(ctx, alias, pool, cfg, dialect, r.logger, r.metrics, r.tracer)
	if err != nil {
		pool.Close()
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[alias]; ok {
		db.Close()
		return nil, newError(ErrDuplicateAlias, "Register", alias, nil)
	}

	r.conns[alias] = db

	if r.def == "" {
		r.def = alias
	}

	if r.logger != nil {
		r.logger.Logf("connected to '%s' database '%s' at '%s' as '%s'", dialect, cfg.Database, cfg.HostName, alias)
	}

	return db, nil
}

func (r *Registry) has(alias string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conns[alias]

	return ok
}

// Get returns the connection registered under alias, or the default one for an empty alias.
func (r *Registry) Get(alias string) (*DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if alias == "" {
		alias = r.def
	}

	db, ok := r.conns[alias]
	if !ok {
		return nil, newError(ErrAliasNotFound, "Get", alias, nil)
	}

	return db, nil
}

// SetDefault makes a registered alias the default.
func (r *Registry) SetDefault(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[alias]; !ok {
		return newError(ErrAliasNotFound, "SetDefault", alias, nil)
	}

	r.def = alias

	return nil
}

// Default returns the default alias, empty before the first registration.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.def
}

// Aliases returns the registered aliases, sorted.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	aliases := make([]string, 0, len(r.conns))
	for a := range r.conns {
		aliases = append(aliases, a)
	}

	sort.Strings(aliases)

	return aliases
}

// Close closes every registered connection and empties the registry. Lookups afterwards fail
// with ErrAliasNotFound; aliases may be registered again.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error

	for _, db := range r.conns {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	r.conns = make(map[string]*DB)
	r.def = ""

	return errors.Join(errs...)
}
