package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type condition struct {
	or   bool
	expr string
	args []any
}

// QueryBuilder collects the parts of one query and applies them to a fresh
// gorm chain when executed. It is owned by a single caller and is not safe
// for concurrent use.
type QueryBuilder[T any] struct {
	db         *gorm.DB
	table      string
	alias      string
	selects    []string
	conditions []condition
	params     map[string]any
	orders     []string
	offset     *int
	limit      *int
	cacheable  bool
	cache      *cacheBinding
	err        error
}

func newQueryBuilder[T any](db *gorm.DB, table string, alias string, cache *cacheBinding) *QueryBuilder[T] {
	return &QueryBuilder[T]{
		db:     db,
		table:  table,
		alias:  alias,
		params: make(map[string]any),
		cache:  cache,
	}
}

func (qb *QueryBuilder[T]) RootAlias() string {
	return qb.alias
}

func (qb *QueryBuilder[T]) RootTable() string {
	return qb.table
}

// Error returns the first builder misuse recorded so far.
func (qb *QueryBuilder[T]) Error() error {
	return qb.err
}

func (qb *QueryBuilder[T]) addError(err error) {
	if qb.err == nil {
		qb.err = err
	}
}

// Select replaces the projection.
func (qb *QueryBuilder[T]) Select(exprs ...string) *QueryBuilder[T] {
	qb.selects = append([]string(nil), exprs...)
	return qb
}

func (qb *QueryBuilder[T]) AddSelect(exprs ...string) *QueryBuilder[T] {
	qb.selects = append(qb.selects, exprs...)
	return qb
}

// Where replaces every condition collected so far.
func (qb *QueryBuilder[T]) Where(expr string, args ...any) *QueryBuilder[T] {
	qb.conditions = []condition{{expr: expr, args: args}}
	return qb
}

func (qb *QueryBuilder[T]) AndWhere(expr string, args ...any) *QueryBuilder[T] {
	qb.conditions = append(qb.conditions, condition{expr: expr, args: args})
	return qb
}

func (qb *QueryBuilder[T]) OrWhere(expr string, args ...any) *QueryBuilder[T] {
	qb.conditions = append(qb.conditions, condition{or: true, expr: expr, args: args})
	return qb
}

// SetParameter binds a value for @name placeholders in conditions without
// positional arguments.
func (qb *QueryBuilder[T]) SetParameter(name string, value any) *QueryBuilder[T] {
	qb.params[name] = value
	return qb
}

func (qb *QueryBuilder[T]) Parameter(name string) (any, bool) {
	v, ok := qb.params[name]
	return v, ok
}

// OrderBy replaces every ordering collected so far.
func (qb *QueryBuilder[T]) OrderBy(expr string, direction SortDirection) *QueryBuilder[T] {
	qb.orders = nil
	return qb.AddOrderBy(expr, direction)
}

func (qb *QueryBuilder[T]) AddOrderBy(expr string, direction SortDirection) *QueryBuilder[T] {
	qb.orders = append(qb.orders, fmt.Sprintf("%s %s", expr, direction))
	return qb
}

func (qb *QueryBuilder[T]) SetFirstResult(offset int) *QueryBuilder[T] {
	qb.offset = &offset
	return qb
}

func (qb *QueryBuilder[T]) SetMaxResults(limit int) *QueryBuilder[T] {
	qb.limit = &limit
	return qb
}

func (qb *QueryBuilder[T]) FirstResult() (int, bool) {
	if qb.offset == nil {
		return 0, false
	}
	return *qb.offset, true
}

func (qb *QueryBuilder[T]) MaxResults() (int, bool) {
	if qb.limit == nil {
		return 0, false
	}
	return *qb.limit, true
}

func (qb *QueryBuilder[T]) SetCacheable(cacheable bool) *QueryBuilder[T] {
	qb.cacheable = cacheable
	return qb
}

func (qb *QueryBuilder[T]) Cacheable() bool {
	return qb.cacheable
}

func (qb *QueryBuilder[T]) apply(db *gorm.DB) *gorm.DB {
	tx := db.Table(fmt.Sprintf("%s AS %s", qb.table, qb.alias))
	if len(qb.selects) > 0 {
		tx = tx.Select(strings.Join(qb.selects, ", "))
	}
	for _, c := range qb.conditions {
		args := c.args
		if len(args) == 0 && len(qb.params) > 0 && strings.Contains(c.expr, "@") {
			args = []any{qb.params}
		}
		if c.or {
			tx = tx.Or(c.expr, args...)
		} else {
			tx = tx.Where(c.expr, args...)
		}
	}
	for _, order := range qb.orders {
		tx = tx.Order(order)
	}
	if qb.offset != nil {
		tx = tx.Offset(*qb.offset)
	}
	if qb.limit != nil {
		tx = tx.Limit(*qb.limit)
	}
	return tx
}

// SQL renders the statement with its parameters inlined, without executing it.
func (qb *QueryBuilder[T]) SQL() string {
	return qb.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []map[string]any
		return qb.apply(tx).Find(&rows)
	})
}

// Result executes the query and materializes every row. Cacheable queries are
// served from the query cache when one is configured. Rows read inside a
// transaction are never stored, as they may not be committed.
func (qb *QueryBuilder[T]) Result(ctx context.Context) ([]T, error) {
	if qb.err != nil {
		return nil, qb.err
	}

	var (
		key   string
		codec rowCodec[T]
	)
	if qb.cacheable && qb.cache != nil {
		key, codec = qb.cacheLookup(ctx)
		if key != "" {
			if rows, ok := qb.cachedRows(ctx, key, codec); ok {
				return rows, nil
			}
		}
	}

	var rows []T
	if err := qb.apply(qb.db.WithContext(ctx)).Find(&rows).Error; err != nil {
		return nil, err
	}

	if key != "" && !inTransaction(ctx) {
		qb.storeRows(ctx, key, codec, rows)
	}
	return rows, nil
}

// cacheLookup returns the cache key of the query under the current generation
// of T, or an empty key when the cache cannot be used.
func (qb *QueryBuilder[T]) cacheLookup(ctx context.Context) (string, rowCodec[T]) {
	sch, err := schemaOf[T](qb.db)
	if err != nil {
		logrus.Warnf("QueryBuilder.Result: no schema for query cache: %v", err)
		return "", rowCodec[T]{}
	}
	namespace := cacheNamespace[T]()
	generation, err := qb.cache.cache.Generation(ctx, namespace)
	if err != nil {
		logrus.Warnf("QueryBuilder.Result: query cache generation [%s] failed: %v", namespace, err)
		return "", rowCodec[T]{}
	}
	return cacheKey(namespace, generation, qb.SQL()), rowCodec[T]{schema: sch}
}

func (qb *QueryBuilder[T]) cachedRows(ctx context.Context, key string, codec rowCodec[T]) ([]T, bool) {
	raw, ok, err := qb.cache.cache.Get(ctx, key)
	if err != nil {
		logrus.Warnf("QueryBuilder.Result: query cache get [%s] failed: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	rows, err := codec.decode(ctx, raw)
	if err != nil {
		logrus.Warnf("QueryBuilder.Result: query cache entry [%s] is unreadable: %v", key, err)
		return nil, false
	}
	logrus.Debugf("QueryBuilder.Result: query cache hit [%s]", key)
	return rows, true
}

func (qb *QueryBuilder[T]) storeRows(ctx context.Context, key string, codec rowCodec[T], rows []T) {
	raw, err := codec.encode(ctx, rows)
	if err != nil {
		logrus.Warnf("QueryBuilder.Result: encode rows for query cache failed: %v", err)
		return
	}
	if err := qb.cache.cache.Set(ctx, key, raw, qb.cache.ttl); err != nil {
		logrus.Warnf("QueryBuilder.Result: query cache set [%s] failed: %v", key, err)
	}
}

// OneOrNull returns the single matching row, nil when there is none and
// NonUniqueResultError when there are several.
func (qb *QueryBuilder[T]) OneOrNull(ctx context.Context) (*T, error) {
	rows, err := qb.Result(ctx)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, fmt.Errorf("%d rows: %w", len(rows), NonUniqueResultError)
	}
}

// SingleScalarResult expects exactly one row with exactly one column.
func (qb *QueryBuilder[T]) SingleScalarResult(ctx context.Context) (any, error) {
	if qb.err != nil {
		return nil, qb.err
	}
	rows, err := qb.apply(qb.db.WithContext(ctx)).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(columns) != 1 {
		return nil, fmt.Errorf("%d columns selected: %w", len(columns), NonScalarResultError)
	}

	var values []any
	for rows.Next() {
		var value any
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(values) {
	case 0:
		return nil, NoResultError
	case 1:
		return values[0], nil
	default:
		return nil, fmt.Errorf("%d rows: %w", len(values), NonUniqueResultError)
	}
}
