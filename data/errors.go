package data

import "errors"

var (
	// NotFoundError is returned when no row matches an identity lookup under
	// the visibility rules of the operation (live only or tombstoned only).
	NotFoundError = errors.New("not found")

	// MissingColumnError is returned by Patch for the identity column or a
	// field without a registered mutator.
	MissingColumnError = errors.New("missing column")

	// InvalidValueError is returned when a mutator cannot accept the patch value.
	InvalidValueError = errors.New("invalid value")

	InvalidSortDirectionError = errors.New("invalid sort direction")

	// InvalidIdentifierError is returned for a column or alias that is not a
	// plain SQL identifier.
	InvalidIdentifierError = errors.New("invalid identifier")

	NoResultError        = errors.New("no result")
	NonUniqueResultError = errors.New("non unique result")
	NonScalarResultError = errors.New("non scalar result")

	UnknownAggregateFunctionError = errors.New("unknown aggregate function")
)
