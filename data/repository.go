package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository[T any, ID comparable, PT Entity[T, ID]] interface {
	FindOne(ctx context.Context, id ID) (PT, error)
	Create(ctx context.Context, entity PT) (PT, error)
	Update(ctx context.Context, entity PT) (PT, error)
	Delete(ctx context.Context, entity PT) error
}

// GormRepository looks entities up by identity regardless of their soft
// delete marker. A non-empty table replaces the one gorm derives for T.
type GormRepository[T any, ID comparable, PT Entity[T, ID]] struct {
	transactionManager TransactionManager
	idColumn           string
	table              string
}

func NewGormRepository[T any, ID comparable, PT Entity[T, ID]](transactionManager TransactionManager, idColumn string, table string) *GormRepository[T, ID, PT] {
	if idColumn == "" {
		idColumn = DefaultIDColumn
	}
	return &GormRepository[T, ID, PT]{transactionManager: transactionManager, idColumn: idColumn, table: table}
}

func (u *GormRepository[T, ID, PT]) session(ctx context.Context) *gorm.DB {
	db := u.session(ctx)
	if u.table != "" {
		return db.Table(u.table)
	}
	return db
}

func (u *GormRepository[T, ID, PT]) byID(id ID) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: u.idColumn}, Value: id}
}

func isZero[ID comparable](id ID) bool {
	var zero ID
	return id == zero
}

func (u *GormRepository[T, ID, PT]) FindOne(ctx context.Context, id ID) (PT, error) {
	var entity T
	db := u.session(ctx)
	if err := db.Where(u.byID(id)).Take(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError
		}
		return nil, err
	}
	return PT(&entity), nil
}

// Find is FindOne returning nil instead of NotFoundError.
func (u *GormRepository[T, ID, PT]) Find(ctx context.Context, id ID) (PT, error) {
	entity, err := u.FindOne(ctx, id)
	if errors.Is(err, NotFoundError) {
		return nil, nil
	}
	return entity, err
}

func (u *GormRepository[T, ID, PT]) Create(ctx context.Context, entity PT) (PT, error) {
	db := u.session(ctx)
	if err := db.Create(entity).Error; err != nil {
		return nil, err
	}
	logrus.Debugf("GormRepository.Create: %T id [%v]", entity, entity.GetID())
	return entity, nil
}

func (u *GormRepository[T, ID, PT]) Update(ctx context.Context, entity PT) (PT, error) {
	if isZero(entity.GetID()) {
		panic("entity.ID is missing")
	}
	db := u.session(ctx)
	if err := db.Save(entity).Error; err != nil {
		return nil, err
	}
	logrus.Debugf("GormRepository.Update: %T id [%v]", entity, entity.GetID())
	return entity, nil
}

// Delete removes the row physically, bypassing any gorm soft delete scope.
func (u *GormRepository[T, ID, PT]) Delete(ctx context.Context, entity PT) error {
	id := entity.GetID()
	if isZero(id) {
		panic("entity.ID is missing")
	}
	db := u.session(ctx)
	var model T
	if err := db.Unscoped().Where(u.byID(id)).Delete(&model).Error; err != nil {
		return err
	}
	logrus.Debugf("GormRepository.Delete: %T id [%v]", entity, id)
	return nil
}

// Reload overwrites entity with its stored state.
func (u *GormRepository[T, ID, PT]) Reload(ctx context.Context, entity PT) error {
	id := entity.GetID()
	if isZero(id) {
		return fmt.Errorf("reload transient %T: %w", entity, NotFoundError)
	}
	fresh, err := u.FindOne(ctx, id)
	if err != nil {
		return err
	}
	*entity = *fresh
	return nil
}
