package data_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/reuben-baek/entity-service/data"
	"github.com/reuben-baek/entity-service/database"
)

const entityAlias = "test"

func init() {
	logrus.SetLevel(logrus.DebugLevel)
}

type TestEntity struct {
	ID     uint   `gorm:"primaryKey"`
	Name   string `gorm:"size:150"`
	Score  float64
	Rank   int64
	Active bool
	Token  string `gorm:"size:64" json:"-"`
}

func (TestEntity) TableName() string {
	return "test_table"
}

func (e *TestEntity) GetID() uint {
	return e.ID
}

func (e *TestEntity) Clone() *TestEntity {
	clone := *e
	clone.ID = 0
	return &clone
}

type RenewableTestEntity struct {
	ID      uint    `gorm:"primaryKey"`
	Name    string  `gorm:"size:150"`
	Deletor *string `gorm:"size:50"`
}

func (RenewableTestEntity) TableName() string {
	return "renewable_test_table"
}

func (e *RenewableTestEntity) GetID() uint {
	return e.ID
}

func (e *RenewableTestEntity) Clone() *RenewableTestEntity {
	clone := *e
	clone.ID = 0
	return &clone
}

func (e *RenewableTestEntity) Renew() {
	e.Deletor = nil
}

func (e *RenewableTestEntity) SetDeleted() {
	deleted := "deleted"
	e.Deletor = &deleted
}

func (e *RenewableTestEntity) IsDeleted() bool {
	return e.Deletor != nil
}

type TraceableTestEntity struct {
	ID       string `gorm:"primaryKey;size:36"`
	Name     string
	Creator  *string
	Modifier *string
	Deletor  *string
	Created  *time.Time
	Modified *time.Time
	Deleted  *time.Time
}

func (TraceableTestEntity) TableName() string {
	return "traceable_test_table"
}

func (e *TraceableTestEntity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.Created = &now
	return nil
}

func (e *TraceableTestEntity) BeforeSave(tx *gorm.DB) error {
	now := time.Now().UTC()
	e.Modified = &now
	return nil
}

func (e *TraceableTestEntity) GetID() string {
	return e.ID
}

func (e *TraceableTestEntity) Clone() *TraceableTestEntity {
	clone := *e
	clone.ID = ""
	clone.Created = nil
	return &clone
}

func (e *TraceableTestEntity) Renew() {
	e.Deleted = nil
	e.Deletor = nil
}

func (e *TraceableTestEntity) SetDeleted() {
	now := time.Now().UTC()
	e.Deleted = &now
}

func (e *TraceableTestEntity) IsDeleted() bool {
	return e.Deleted != nil
}

func (e *TraceableTestEntity) SetCreator(creator string)   { e.Creator = &creator }
func (e *TraceableTestEntity) GetCreator() *string         { return e.Creator }
func (e *TraceableTestEntity) SetModifier(modifier string) { e.Modifier = &modifier }
func (e *TraceableTestEntity) GetModifier() *string        { return e.Modifier }
func (e *TraceableTestEntity) SetDeletor(deletor string)   { e.Deletor = &deletor }
func (e *TraceableTestEntity) GetDeletor() *string         { return e.Deletor }
func (e *TraceableTestEntity) GetCreated() *time.Time      { return e.Created }
func (e *TraceableTestEntity) GetModified() *time.Time     { return e.Modified }
func (e *TraceableTestEntity) GetDeleted() *time.Time      { return e.Deleted }

func testMutators() data.Mutators[*TestEntity] {
	return data.Mutators[*TestEntity]{
		"name":   data.StringMutator(func(e *TestEntity, v string) { e.Name = v }),
		"score":  data.FloatMutator(func(e *TestEntity, v float64) { e.Score = v }),
		"rank":   data.IntMutator(func(e *TestEntity, v int64) { e.Rank = v }),
		"active": data.BoolMutator(func(e *TestEntity, v bool) { e.Active = v }),
		// registered on purpose: the identity column is refused even with a mutator
		"id": data.IntMutator(func(e *TestEntity, v int64) { e.ID = uint(v) }),
	}
}

func getGormDB(t *testing.T) *gorm.DB {
	cfg := database.DefaultConfig()
	cfg.DSN = "file::memory:"
	cfg.LogLevel = "info"
	cfg.MaxOpenConns = 1
	db, err := database.Open(cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&TestEntity{}, &RenewableTestEntity{}, &TraceableTestEntity{}))
	return db
}

type fixture struct {
	db                 *gorm.DB
	transactionManager *data.GormTransactionManager
	service            *data.EntityService[TestEntity, uint, *TestEntity]
	renewableService   *data.EntityService[RenewableTestEntity, uint, *RenewableTestEntity]
	traceableService   *data.EntityService[TraceableTestEntity, string, *TraceableTestEntity]
}

func newFixture(t *testing.T, opts ...data.ServiceOption) *fixture {
	db := getGormDB(t)
	transactionManager := data.NewGormTransactionManager(db)

	config := data.DefaultServiceConfig()
	config.Alias = entityAlias
	config.DeletedColumn = "deletor"

	return &fixture{
		db:                 db,
		transactionManager: transactionManager,
		service:            data.NewEntityService[TestEntity, uint](transactionManager, config, testMutators(), opts...),
		renewableService: data.NewRenewableEntityService[RenewableTestEntity, uint](transactionManager, config, data.Mutators[*RenewableTestEntity]{
			"name": data.StringMutator(func(e *RenewableTestEntity, v string) { e.Name = v }),
		}, opts...),
		traceableService: data.NewTraceableEntityService[TraceableTestEntity, string](transactionManager, data.ServiceConfig{Alias: entityAlias}, data.Mutators[*TraceableTestEntity]{
			"name": data.StringMutator(func(e *TraceableTestEntity, v string) { e.Name = v }),
		}, opts...),
	}
}

func (f *fixture) createEntity(t *testing.T, name string) *TestEntity {
	entity := &TestEntity{Name: name}
	require.NoError(t, f.db.Create(entity).Error)
	return entity
}

func (f *fixture) createRenewableEntity(t *testing.T, name string) *RenewableTestEntity {
	entity := &RenewableTestEntity{Name: name}
	require.NoError(t, f.db.Create(entity).Error)
	return entity
}

func (f *fixture) findRenewableEntity(t *testing.T, id uint) *RenewableTestEntity {
	var entity RenewableTestEntity
	err := f.db.Take(&entity, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(t, err)
	return &entity
}

var background = context.Background()
