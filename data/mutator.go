package data

import "fmt"

// Mutator assigns a patch value to one field of an entity. Values are limited
// to string, integer, float, bool and nil.
type Mutator[PT any] func(entity PT, value any) error

// Mutators maps patchable field names to their mutators.
type Mutators[PT any] map[string]Mutator[PT]

func invalidValue(expected string, value any) error {
	return fmt.Errorf("expected %s, got %T: %w", expected, value, InvalidValueError)
}

func StringMutator[PT any](set func(PT, string)) Mutator[PT] {
	return func(entity PT, value any) error {
		s, ok := value.(string)
		if !ok {
			return invalidValue("string", value)
		}
		set(entity, s)
		return nil
	}
}

// NullableStringMutator also accepts nil.
func NullableStringMutator[PT any](set func(PT, *string)) Mutator[PT] {
	return func(entity PT, value any) error {
		switch v := value.(type) {
		case nil:
			set(entity, nil)
		case string:
			set(entity, &v)
		default:
			return invalidValue("string or nil", value)
		}
		return nil
	}
}

// integer converts the integer kinds a patch value may have. uint64 is left
// out as it does not fit int64.
func integer(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	}
	return 0, false
}

func IntMutator[PT any](set func(PT, int64)) Mutator[PT] {
	return func(entity PT, value any) error {
		n, ok := integer(value)
		if !ok {
			return invalidValue("integer", value)
		}
		set(entity, n)
		return nil
	}
}

// FloatMutator accepts floats and every integer kind IntMutator accepts.
func FloatMutator[PT any](set func(PT, float64)) Mutator[PT] {
	return func(entity PT, value any) error {
		switch v := value.(type) {
		case float32:
			set(entity, float64(v))
		case float64:
			set(entity, v)
		default:
			n, ok := integer(value)
			if !ok {
				return invalidValue("float", value)
			}
			set(entity, float64(n))
		}
		return nil
	}
}

func BoolMutator[PT any](set func(PT, bool)) Mutator[PT] {
	return func(entity PT, value any) error {
		b, ok := value.(bool)
		if !ok {
			return invalidValue("bool", value)
		}
		set(entity, b)
		return nil
	}
}
