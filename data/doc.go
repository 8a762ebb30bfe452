// Package data provides a generic entity service over gorm.
//
// An EntityService offers CRUD, patch and aggregate queries for one entity
// type. Services built with NewRenewableEntityService or
// NewTraceableEntityService tombstone entities on Delete instead of removing
// them; tombstoned entities are invisible to Get until Undelete, and Purge
// removes them for good.
//
//	tm := data.NewGormTransactionManager(db)
//	users := data.NewRenewableEntityService[User, uint](tm, data.DefaultServiceConfig(), data.Mutators[*User]{
//		"name": data.StringMutator(func(u *User, v string) { u.Name = v }),
//	})
//
//	err := tm.Do(ctx, func(ctx context.Context) error {
//		return users.Patch(ctx, id, "name", "reuben")
//	})
//
// Every call resolves its session through the TransactionManager, so calls
// made with the context passed to Do share one transaction.
//
// Aliases, column names and result labels are written into SQL as they are.
// AddSorting and the aggregate builders reject anything but plain identifiers;
// the columns given to the condition helpers and to Where must never come
// from user input.
package data
