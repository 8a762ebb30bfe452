package data

import (
	"context"
	"fmt"
	"reflect"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

func schemaOf[T any](db *gorm.DB) (*schema.Schema, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, err
	}
	return stmt.Schema, nil
}

func cacheNamespace[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

// rowCodec encodes rows column by column after the gorm schema of T, each
// value with the JSON encoding of its own field type. Struct json tags play
// no part, so every field gorm maps survives a round trip.
type rowCodec[T any] struct {
	schema *schema.Schema
}

func (c rowCodec[T]) encode(ctx context.Context, rows []T) ([]byte, error) {
	encoded := make([]map[string]any, 0, len(rows))
	for i := range rows {
		rv := reflect.ValueOf(&rows[i]).Elem()
		row := make(map[string]any, len(c.schema.Fields))
		for _, field := range c.schema.Fields {
			if field.DBName == "" {
				continue
			}
			value, _ := field.ValueOf(ctx, rv)
			row[field.DBName] = value
		}
		encoded = append(encoded, row)
	}
	return json.Marshal(encoded)
}

func (c rowCodec[T]) decode(ctx context.Context, raw []byte) ([]T, error) {
	var encoded []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, err
	}
	rows := make([]T, len(encoded))
	for i, row := range encoded {
		rv := reflect.ValueOf(&rows[i]).Elem()
		for _, field := range c.schema.Fields {
			if field.DBName == "" {
				continue
			}
			value, ok := row[field.DBName]
			if !ok {
				continue
			}
			target := reflect.New(field.FieldType)
			if err := json.Unmarshal(value, target.Interface()); err != nil {
				return nil, fmt.Errorf("decode column %s: %w", field.DBName, err)
			}
			field.ReflectValueOf(ctx, rv).Set(target.Elem())
		}
	}
	return rows, nil
}
