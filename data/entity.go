package data

import "time"

// Identifiable is implemented by every entity managed by an EntityService.
// The zero ID marks a transient entity that has never been saved.
type Identifiable[ID comparable] interface {
	GetID() ID
}

// Entity is the constraint for the pointer type PT of an entity struct T.
// Clone must return a copy whose identity is reset, so saving it inserts a new row.
type Entity[T any, ID comparable] interface {
	*T
	Identifiable[ID]
	Clone() *T
}

// Renewable is implemented by entities that are tombstoned instead of removed.
type Renewable interface {
	Renew()
	SetDeleted()
	IsDeleted() bool
}

// RenewableEntity is the constraint for entities supporting soft delete.
type RenewableEntity[T any, ID comparable] interface {
	Entity[T, ID]
	Renewable
}

// Traceable carries actor and time provenance for each state transition.
type Traceable interface {
	Renewable
	SetCreator(creator string)
	GetCreator() *string
	SetModifier(modifier string)
	GetModifier() *string
	SetDeletor(deletor string)
	GetDeletor() *string
	GetCreated() *time.Time
	GetModified() *time.Time
	GetDeleted() *time.Time
}

// TraceableEntity is the constraint for entities recording provenance.
type TraceableEntity[T any, ID comparable] interface {
	Entity[T, ID]
	Traceable
}

// Kind describes the capability level an EntityService was registered with.
type Kind int

const (
	KindPlain Kind = iota + 1
	KindRenewable
	KindTraceable
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindRenewable:
		return "renewable"
	case KindTraceable:
		return "traceable"
	default:
		return "unknown"
	}
}

// Renewable reports whether entities of this kind are soft deleted.
func (k Kind) Renewable() bool {
	return k == KindRenewable || k == KindTraceable
}
