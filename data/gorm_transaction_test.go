package data_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reuben-baek/entity-service/data"
)

func TestGormTransactionManager(t *testing.T) {
	f := newFixture(t)
	transactionManager := f.transactionManager

	t.Run("commit", func(t *testing.T) {
		ctx := context.Background()
		reuben := &TestEntity{Name: "reuben.b"}
		err := transactionManager.Do(ctx, func(ctx context.Context) error {
			if err := f.service.Save(ctx, reuben); err != nil {
				return err
			}
			return f.service.Patch(ctx, reuben.ID, "name", "reuben baek")
		})
		assert.Nil(t, err)
		assert.NotEmpty(t, reuben.ID)

		found, err := f.service.Get(ctx, reuben.ID)
		require.NoError(t, err)
		assert.Equal(t, reuben.ID, found.ID)
		assert.Equal(t, "reuben baek", found.Name)
	})

	t.Run("rollback", func(t *testing.T) {
		ctx := context.Background()
		reuben := &TestEntity{Name: "reuben.b"}
		err := transactionManager.Do(ctx, func(ctx context.Context) error {
			if err := f.service.Save(ctx, reuben); err != nil {
				return err
			}
			return errors.New("fail to save")
		})
		assert.NotNil(t, err)
		assert.NotEmpty(t, reuben.ID)

		found, err := f.service.GetRepository().FindOne(ctx, reuben.ID)
		assert.Equal(t, data.NotFoundError, err)
		assert.Empty(t, found)
	})

	t.Run("rollback soft delete", func(t *testing.T) {
		ctx := context.Background()
		created := f.createRenewableEntity(t, "reuben.b")
		err := transactionManager.Do(ctx, func(ctx context.Context) error {
			if err := f.renewableService.Delete(ctx, created.ID); err != nil {
				return err
			}
			return errors.New("fail to delete")
		})
		assert.NotNil(t, err)

		found, err := f.renewableService.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, found.IsDeleted())
	})

	t.Run("nested", func(t *testing.T) {
		ctx := context.Background()
		outer := &TestEntity{Name: "outer"}
		inner := &TestEntity{Name: "inner"}
		err := transactionManager.Do(ctx, func(ctx context.Context) error {
			if err := f.service.Save(ctx, outer); err != nil {
				return err
			}
			if err := transactionManager.Do(ctx, func(ctx context.Context) error {
				return f.service.Save(ctx, inner)
			}); err != nil {
				return err
			}
			return errors.New("fail after nested")
		})
		assert.NotNil(t, err)

		for _, id := range []uint{outer.ID, inner.ID} {
			found, err := f.service.GetOrNull(ctx, id)
			assert.NoError(t, err)
			assert.Nil(t, found)
		}
	})

	t.Run("rollback on panic", func(t *testing.T) {
		ctx := context.Background()
		reuben := &TestEntity{Name: "reuben.b"}
		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Printf("panic: %v\n", r)
				}
			}()
			transactionManager.Do(ctx, func(ctx context.Context) error {
				if err := f.service.Save(ctx, reuben); err != nil {
					return err
				}
				panic("something wrong")
			})
		}()
		found, err := f.service.GetRepository().FindOne(ctx, reuben.ID)
		assert.Equal(t, data.NotFoundError, err)
		assert.Empty(t, found)
	})
}
