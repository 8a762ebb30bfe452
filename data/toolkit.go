package data

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultIDColumn      = "id"
	DefaultDeletedColumn = "deleted"

	// Wildcard is the SQL LIKE wildcard TrimLikeValue wraps values with by default.
	Wildcard = "%"
)

type SortDirection string

const (
	Asc  SortDirection = "ASC"
	Desc SortDirection = "DESC"
)

// ParseSortDirection accepts asc/desc in any case.
func ParseSortDirection(s string) (SortDirection, error) {
	switch SortDirection(strings.ToUpper(strings.TrimSpace(s))) {
	case Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	default:
		return "", fmt.Errorf("%q: %w", s, InvalidSortDirectionError)
	}
}

// Sort is one key of a multi-key ordering.
type Sort struct {
	Column    string
	Direction SortDirection
}

// Pagination is applied only when both Offset and Limit are set.
type Pagination struct {
	Offset *int
	Limit  *int
}

// PaginationFromArgs reads "offset" and "limit" from loosely typed arguments.
// A key is kept only when its value is an int.
func PaginationFromArgs(args map[string]any) Pagination {
	var p Pagination
	if v, ok := args["offset"].(int); ok {
		p.Offset = &v
	}
	if v, ok := args["limit"].(int); ok {
		p.Limit = &v
	}
	return p
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func column(alias string, name string) string {
	return alias + "." + name
}

// AddNonDeletedCondition replaces the conditions of qb with "deleted column is null".
func AddNonDeletedCondition[T any](qb *QueryBuilder[T], alias string, deletedColumn string) {
	if deletedColumn == "" {
		deletedColumn = DefaultDeletedColumn
	}
	qb.Where(column(alias, deletedColumn) + " IS NULL")
}

// AddEmptyCondition replaces the conditions of qb with an always true predicate
// on the identity column.
func AddEmptyCondition[T any](qb *QueryBuilder[T], alias string, idColumn string) {
	if idColumn == "" {
		idColumn = DefaultIDColumn
	}
	qb.Where(column(alias, idColumn) + " IS NOT NULL")
}

// AddSorting appends the sorts in order; the first one is the primary key.
// On an unknown direction or a column that is not a plain identifier nothing
// is applied.
func AddSorting[T any](qb *QueryBuilder[T], sorts []Sort, alias string) error {
	if !validIdentifier(alias) {
		return fmt.Errorf("sort alias %q: %w", alias, InvalidIdentifierError)
	}
	directions := make([]SortDirection, 0, len(sorts))
	for _, s := range sorts {
		if !validIdentifier(s.Column) {
			return fmt.Errorf("sort by %q: %w", s.Column, InvalidIdentifierError)
		}
		d, err := ParseSortDirection(string(s.Direction))
		if err != nil {
			return fmt.Errorf("sort by %s: %w", s.Column, err)
		}
		directions = append(directions, d)
	}
	for i, s := range sorts {
		qb.AddOrderBy(column(alias, s.Column), directions[i])
	}
	return nil
}

func AddPagination[T any](qb *QueryBuilder[T], pagination Pagination) {
	if pagination.Offset == nil || pagination.Limit == nil {
		return
	}
	qb.SetFirstResult(*pagination.Offset)
	qb.SetMaxResults(*pagination.Limit)
}

var likeEscaper = strings.NewReplacer("%", `\%`, "_", `\_`)

// TrimLikeValue escapes the LIKE metacharacters of value and wraps it with left and right.
func TrimLikeValue(value string, left string, right string) string {
	return left + likeEscaper.Replace(value) + right
}

// AddLikeCondition ANDs a substring match on alias.column.
func AddLikeCondition[T any](qb *QueryBuilder[T], alias string, columnName string, value string) {
	qb.AndWhere(column(alias, columnName)+` LIKE ? ESCAPE '\'`, TrimLikeValue(value, Wildcard, Wildcard))
}

// GetItemsResult runs qb and exports each row. Rows the export reports as
// absent are dropped, the rest keep their order.
func GetItemsResult[T any, O any](ctx context.Context, qb *QueryBuilder[T], export func(*T) (O, bool), cacheable bool) ([]O, error) {
	qb.SetCacheable(cacheable)
	rows, err := qb.Result(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]O, 0, len(rows))
	for i := range rows {
		if item, ok := export(&rows[i]); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// GetCountResult runs qb as a single scalar query and returns it as an integer.
func GetCountResult[T any](ctx context.Context, qb *QueryBuilder[T]) (int64, error) {
	value, err := qb.SingleScalarResult(ctx)
	if err != nil {
		return 0, err
	}
	return toInt64(value)
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64: %w", v, NonScalarResultError)
		}
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%T: %w", value, NonScalarResultError)
	}
}

func parseInt(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, NonScalarResultError)
	}
	return int64(f), nil
}
