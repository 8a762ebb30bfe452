package data

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceConfig holds the per entity type configuration of an EntityService.
type ServiceConfig struct {
	// Alias names the root entity in generated queries.
	// Default: "e"
	Alias string

	// IDColumn is the identity column.
	// Default: "id"
	IDColumn string

	// DeletedColumn is the soft delete marker column of renewable entities.
	// Default: "deleted"
	DeletedColumn string

	// Table overrides the table gorm derives for the entity type.
	Table string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Alias:         "e",
		IDColumn:      DefaultIDColumn,
		DeletedColumn: DefaultDeletedColumn,
	}
}

func (c *ServiceConfig) validate() {
	if c.Alias == "" {
		c.Alias = "e"
	}
	if c.IDColumn == "" {
		c.IDColumn = DefaultIDColumn
	}
	if c.DeletedColumn == "" {
		c.DeletedColumn = DefaultDeletedColumn
	}
}

type serviceOptions struct {
	cache *cacheBinding
}

type ServiceOption func(*serviceOptions)

// WithQueryCache serves cacheable queries from cache, keeping results for ttl.
// Every write through the service drops the cached results of its entity type.
func WithQueryCache(cache QueryCache, ttl time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		if cache != nil {
			o.cache = &cacheBinding{cache: cache, ttl: ttl}
		}
	}
}

type AggregateFunction string

const (
	Count AggregateFunction = "COUNT"
	Sum   AggregateFunction = "SUM"
	Avg   AggregateFunction = "AVG"
	Min   AggregateFunction = "MIN"
	Max   AggregateFunction = "MAX"
)

func (f AggregateFunction) valid() bool {
	switch f {
	case Count, Sum, Avg, Min, Max:
		return true
	}
	return false
}

type softDelete[PT any] struct {
	setDeleted func(PT)
	renew      func(PT)
}

type trace[PT any] struct {
	setCreator  func(PT, string)
	setModifier func(PT, string)
	setDeletor  func(PT, string)
}

// EntityService offers CRUD, soft delete and patch operations for one entity
// type. Whether deletes are soft is fixed by the constructor used.
//
// An EntityService is meant for one unit of work at a time; it holds no
// entities and resolves its session from ctx on every call.
type EntityService[T any, ID comparable, PT Entity[T, ID]] struct {
	transactionManager TransactionManager
	repository         *GormRepository[T, ID, PT]
	config             ServiceConfig
	kind               Kind
	mutators           Mutators[PT]
	softDelete         *softDelete[PT]
	trace              *trace[PT]
	cache              *cacheBinding
}

func NewEntityService[T any, ID comparable, PT Entity[T, ID]](transactionManager TransactionManager, config ServiceConfig, mutators Mutators[PT], opts ...ServiceOption) *EntityService[T, ID, PT] {
	return newEntityService[T, ID, PT](transactionManager, config, mutators, KindPlain, opts)
}

func NewRenewableEntityService[T any, ID comparable, PT RenewableEntity[T, ID]](transactionManager TransactionManager, config ServiceConfig, mutators Mutators[PT], opts ...ServiceOption) *EntityService[T, ID, PT] {
	s := newEntityService[T, ID, PT](transactionManager, config, mutators, KindRenewable, opts)
	s.softDelete = &softDelete[PT]{
		setDeleted: func(e PT) { e.SetDeleted() },
		renew:      func(e PT) { e.Renew() },
	}
	return s
}

func NewTraceableEntityService[T any, ID comparable, PT TraceableEntity[T, ID]](transactionManager TransactionManager, config ServiceConfig, mutators Mutators[PT], opts ...ServiceOption) *EntityService[T, ID, PT] {
	s := newEntityService[T, ID, PT](transactionManager, config, mutators, KindTraceable, opts)
	s.softDelete = &softDelete[PT]{
		setDeleted: func(e PT) { e.SetDeleted() },
		renew:      func(e PT) { e.Renew() },
	}
	s.trace = &trace[PT]{
		setCreator:  func(e PT, actor string) { e.SetCreator(actor) },
		setModifier: func(e PT, actor string) { e.SetModifier(actor) },
		setDeletor:  func(e PT, actor string) { e.SetDeletor(actor) },
	}
	return s
}

func newEntityService[T any, ID comparable, PT Entity[T, ID]](transactionManager TransactionManager, config ServiceConfig, mutators Mutators[PT], kind Kind, opts []ServiceOption) *EntityService[T, ID, PT] {
	config.validate()
	if config.Table == "" {
		config.Table = tableOf[T](transactionManager.Session(context.Background()))
	}
	if !validIdentifier(config.Alias) {
		panic(fmt.Sprintf("EntityService: invalid alias %q", config.Alias))
	}
	var options serviceOptions
	for _, opt := range opts {
		opt(&options)
	}
	if mutators == nil {
		mutators = Mutators[PT]{}
	}
	logrus.Debugf("NewEntityService: %s entity [%T] table [%s] alias [%s]", kind, PT(nil), config.Table, config.Alias)
	return &EntityService[T, ID, PT]{
		transactionManager: transactionManager,
		repository:         NewGormRepository[T, ID, PT](transactionManager, config.IDColumn, config.Table),
		config:             config,
		kind:               kind,
		mutators:           mutators,
		cache:              options.cache,
	}
}

func tableOf[T any](db *gorm.DB) string {
	sch, err := schemaOf[T](db)
	if err != nil {
		panic(fmt.Sprintf("EntityService: cannot resolve table of %T: %v", new(T), err))
	}
	return sch.Table
}

// invalidate drops the cached query results of T. Inside a transaction the
// results are dropped again once it commits, so reads made in between by
// other sessions are not kept either.
func (s *EntityService[T, ID, PT]) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	namespace := cacheNamespace[T]()
	s.cache.invalidate(ctx, namespace)
	onCommit(ctx, func() { s.cache.invalidate(ctx, namespace) })
}

func (s *EntityService[T, ID, PT]) Kind() Kind {
	return s.kind
}

func (s *EntityService[T, ID, PT]) Config() ServiceConfig {
	return s.config
}

func (s *EntityService[T, ID, PT]) GetRepository() *GormRepository[T, ID, PT] {
	return s.repository
}

// Save inserts a transient entity, assigning its identity, or writes every
// field of a persisted one.
func (s *EntityService[T, ID, PT]) Save(ctx context.Context, entity PT) error {
	actor, hasActor := ActorFrom(ctx)
	if isZero(entity.GetID()) {
		if s.trace != nil && hasActor {
			s.trace.setCreator(entity, actor)
			s.trace.setModifier(entity, actor)
		}
		if _, err := s.repository.Create(ctx, entity); err != nil {
			return err
		}
		s.invalidate(ctx)
		return nil
	}
	if s.trace != nil && hasActor {
		s.trace.setModifier(entity, actor)
	}
	if _, err := s.repository.Update(ctx, entity); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Refresh discards unsaved changes of entity by reloading it.
func (s *EntityService[T, ID, PT]) Refresh(ctx context.Context, entity PT) error {
	return s.repository.Reload(ctx, entity)
}

// GetQueryBuilder returns a builder selecting the entity under the configured alias.
func (s *EntityService[T, ID, PT]) GetQueryBuilder(ctx context.Context) *QueryBuilder[T] {
	qb := newQueryBuilder[T](s.transactionManager.Session(ctx), s.config.Table, s.config.Alias, s.cache)
	return qb.Select(s.config.Alias + ".*")
}

// GetAggregateQueryBuilder selects fn(entityAlias.column), labelled alias when
// given. An empty entityAlias means the configured one. column, alias and
// entityAlias are written into the SQL and must be plain identifiers.
func (s *EntityService[T, ID, PT]) GetAggregateQueryBuilder(ctx context.Context, fn AggregateFunction, column string, alias string, entityAlias string) *QueryBuilder[T] {
	if entityAlias == "" {
		entityAlias = s.config.Alias
	}
	field := fmt.Sprintf("%s(%s.%s)", fn, entityAlias, column)
	if alias != "" {
		field = field + " AS " + alias
	}
	qb := newQueryBuilder[T](s.transactionManager.Session(ctx), s.config.Table, s.config.Alias, s.cache)
	if !fn.valid() {
		qb.addError(fmt.Errorf("%q: %w", string(fn), UnknownAggregateFunctionError))
	}
	for _, name := range []string{column, entityAlias} {
		if !validIdentifier(name) {
			qb.addError(fmt.Errorf("%q: %w", name, InvalidIdentifierError))
		}
	}
	if alias != "" && !validIdentifier(alias) {
		qb.addError(fmt.Errorf("%q: %w", alias, InvalidIdentifierError))
	}
	return qb.Select(field)
}

func (s *EntityService[T, ID, PT]) GetCountQueryBuilder(ctx context.Context, column string, alias string, entityAlias string) *QueryBuilder[T] {
	return s.GetAggregateQueryBuilder(ctx, Count, column, alias, entityAlias)
}

func (s *EntityService[T, ID, PT]) GetSumQueryBuilder(ctx context.Context, column string, alias string, entityAlias string) *QueryBuilder[T] {
	return s.GetAggregateQueryBuilder(ctx, Sum, column, alias, entityAlias)
}

func (s *EntityService[T, ID, PT]) GetAvgQueryBuilder(ctx context.Context, column string, alias string, entityAlias string) *QueryBuilder[T] {
	return s.GetAggregateQueryBuilder(ctx, Avg, column, alias, entityAlias)
}

func (s *EntityService[T, ID, PT]) GetMinQueryBuilder(ctx context.Context, column string, alias string, entityAlias string) *QueryBuilder[T] {
	return s.GetAggregateQueryBuilder(ctx, Min, column, alias, entityAlias)
}

func (s *EntityService[T, ID, PT]) GetMaxQueryBuilder(ctx context.Context, column string, alias string, entityAlias string) *QueryBuilder[T] {
	return s.GetAggregateQueryBuilder(ctx, Max, column, alias, entityAlias)
}

func (s *EntityService[T, ID, PT]) notFound(id ID) error {
	return fmt.Errorf("entity %s with id %v: %w", s.config.Alias, id, NotFoundError)
}

// findByMarker looks an entity up by identity among live (deleted == false)
// or tombstoned (deleted == true) rows.
func (s *EntityService[T, ID, PT]) findByMarker(ctx context.Context, id ID, deleted bool) (PT, error) {
	marker := column(s.config.Alias, s.config.DeletedColumn) + " IS NULL"
	if deleted {
		marker = column(s.config.Alias, s.config.DeletedColumn) + " IS NOT NULL"
	}
	qb := s.GetQueryBuilder(ctx)
	qb.Where(column(s.config.Alias, s.config.IDColumn)+" = @id").
		SetParameter("id", id).
		AndWhere(marker).
		SetMaxResults(1)
	entity, err := qb.OneOrNull(ctx)
	if err != nil {
		return nil, err
	}
	return PT(entity), nil
}

// GetOrNull is Get returning nil instead of NotFoundError.
func (s *EntityService[T, ID, PT]) GetOrNull(ctx context.Context, id ID) (PT, error) {
	if s.kind.Renewable() {
		return s.findByMarker(ctx, id, false)
	}
	return s.repository.Find(ctx, id)
}

// Get fetches a live entity. Tombstoned entities are reported as NotFoundError.
func (s *EntityService[T, ID, PT]) Get(ctx context.Context, id ID) (PT, error) {
	entity, err := s.GetOrNull(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, s.notFound(id)
	}
	return entity, nil
}

func (s *EntityService[T, ID, PT]) getDeleted(ctx context.Context, id ID) (PT, error) {
	if !s.kind.Renewable() {
		return nil, s.notFound(id)
	}
	entity, err := s.findByMarker(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, s.notFound(id)
	}
	return entity, nil
}

// Delete tombstones a live renewable entity or removes a plain one.
func (s *EntityService[T, ID, PT]) Delete(ctx context.Context, id ID) error {
	entity, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.softDelete == nil {
		logrus.Debugf("EntityService.Delete: remove %s [%v]", s.config.Alias, id)
		return s.remove(ctx, entity)
	}

	s.softDelete.setDeleted(entity)
	if actor, ok := ActorFrom(ctx); ok && s.trace != nil {
		s.trace.setDeletor(entity, actor)
	}
	logrus.Debugf("EntityService.Delete: tombstone %s [%v]", s.config.Alias, id)
	return s.update(ctx, entity)
}

// Undelete makes a tombstoned entity live again.
func (s *EntityService[T, ID, PT]) Undelete(ctx context.Context, id ID) error {
	entity, err := s.getDeleted(ctx, id)
	if err != nil {
		return err
	}
	s.softDelete.renew(entity)
	logrus.Debugf("EntityService.Undelete: renew %s [%v]", s.config.Alias, id)
	return s.update(ctx, entity)
}

// Purge removes a tombstoned entity physically.
func (s *EntityService[T, ID, PT]) Purge(ctx context.Context, id ID) error {
	entity, err := s.getDeleted(ctx, id)
	if err != nil {
		return err
	}
	logrus.Debugf("EntityService.Purge: remove %s [%v]", s.config.Alias, id)
	return s.remove(ctx, entity)
}

func (s *EntityService[T, ID, PT]) update(ctx context.Context, entity PT) error {
	if _, err := s.repository.Update(ctx, entity); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *EntityService[T, ID, PT]) remove(ctx context.Context, entity PT) error {
	if err := s.repository.Delete(ctx, entity); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Patch sets a single field of a live entity through its registered mutator
// and saves it. The identity column can never be patched.
func (s *EntityService[T, ID, PT]) Patch(ctx context.Context, id ID, key string, value any) error {
	entity, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	mutator, ok := s.mutators[key]
	if !ok || key == s.config.IDColumn {
		return fmt.Errorf("%s.%s: %w", s.config.Alias, key, MissingColumnError)
	}
	if err := mutator(entity, value); err != nil {
		return fmt.Errorf("patch %s.%s: %w", s.config.Alias, key, err)
	}
	return s.Save(ctx, entity)
}

// Duplicate saves a clone of a live entity as a new row.
func (s *EntityService[T, ID, PT]) Duplicate(ctx context.Context, id ID) (PT, error) {
	entity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	clone := PT(entity.Clone())
	if err := s.Save(ctx, clone); err != nil {
		return nil, err
	}
	logrus.Debugf("EntityService.Duplicate: %s [%v] as [%v]", s.config.Alias, id, clone.GetID())
	return clone, nil
}
