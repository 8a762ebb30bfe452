package data

import (
	"context"

	"gorm.io/gorm"
)

// TransactionManager provides the session every service call runs on.
// Session returns the ambient transaction opened by Do, or the root session
// when ctx carries none.
type TransactionManager interface {
	Do(ctx context.Context, f func(ctx context.Context) error) error
	Session(ctx context.Context) *gorm.DB
}
