package data

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type GormTransactionManager struct {
	db *gorm.DB
}

func NewGormTransactionManager(db *gorm.DB) *GormTransactionManager {
	return &GormTransactionManager{db: db}
}

type gormTransactionKey struct{}

type gormTransaction struct {
	id          uuid.UUID
	tx          *gorm.DB
	afterCommit []func()
}

// inTransaction reports whether ctx carries a transaction opened by a
// GormTransactionManager.
func inTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(gormTransactionKey{}).(*gormTransaction)
	return ok
}

// onCommit queues f to run after the transaction carried by ctx commits. It
// reports false, without queueing, when ctx carries no transaction.
func onCommit(ctx context.Context, f func()) bool {
	transaction, ok := ctx.Value(gormTransactionKey{}).(*gormTransaction)
	if !ok {
		return false
	}
	transaction.afterCommit = append(transaction.afterCommit, f)
	return true
}

func (g *GormTransactionManager) Do(ctx context.Context, f func(ctx context.Context) error) error {
	if inTransaction(ctx) {
		// already inside a transaction; the outermost Do commits
		return f(ctx)
	}

	tx := g.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	transaction := &gormTransaction{id: uuid.New(), tx: tx}
	newCtx := context.WithValue(ctx, gormTransactionKey{}, transaction)
	logrus.Debugf("GormTransactionManager.Do: begin transaction [%s]", transaction.id)

	panicked := true
	defer func() {
		if panicked {
			logrus.Warnf("GormTransactionManager.Do: rollback transaction [%s] on panic", transaction.id)
			tx.Rollback()
		}
	}()

	err := f(newCtx)
	panicked = false // if f is panicked, this statement is not executed.

	if err != nil {
		logrus.Debugf("GormTransactionManager.Do: rollback transaction [%s]: %v", transaction.id, err)
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	logrus.Debugf("GormTransactionManager.Do: commit transaction [%s]", transaction.id)
	for _, f := range transaction.afterCommit {
		f()
	}
	return nil
}

func (g *GormTransactionManager) Session(ctx context.Context) *gorm.DB {
	transaction, ok := ctx.Value(gormTransactionKey{}).(*gormTransaction)
	if !ok {
		return g.db.WithContext(ctx)
	}
	return transaction.tx
}
