package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

var (
	errSelectDataNotPointer = errors.New("data is not a pointer")
	errSelectUnsupported    = errors.New("unsupported select destination type")
)

// Select runs query with params and binds the result into data, which must point to a slice
// or a struct. Parameters go through the same binding as every other operation.
//
// Example:
//
//  1. Get multiple rows with only one column
//     ids := make([]int, 0)
//     err := db.Select(ctx, &ids, "select id from users")
//
//  2. Get a single object from database
//     type user struct {
//     Name  string
//     ID    int
//     Image string
//     }
//     u := user{}
//     err := db.Select(ctx, &u, "select * from users where id=?", 1)
//
//  3. Get array of objects from multiple rows
//     type user struct {
//     Name  string
//     ID    int
//     Image string `db:"image_url"`
//     }
//     users := []user{}
//     err := db.Select(ctx, &users, "select * from users")
func (d *DB) Select(ctx context.Context, data any, query string, params ...any) (err error) {
	if err := ctx.Err(); err != nil {
		return newError(ErrExecution, "Select", d.alias, err)
	}

	// destination must be settable so callers can read scanned results
	rvo := reflect.ValueOf(data)
	if !rvo.IsValid() || rvo.Kind() != reflect.Ptr || rvo.IsNil() {
		return newError(ErrInvalidResult, "Select", d.alias, errSelectDataNotPointer)
	}

	rv := rvo.Elem()

	switch rv.Kind() { //nolint:exhaustive // We only support slice and struct destinations.
	case reflect.Slice, reflect.Struct:
	default:
		return newError(ErrInvalidResult, "Select", d.alias, fmt.Errorf("%w: %s", errSelectUnsupported, rv.Kind()))
	}

	ctx, done := d.observe(ctx, "Select", query)
	defer func() { done(err, params) }()

	cur, _, err := d.query(ctx, "Select", query, params)
	if err != nil {
		return err
	}

	defer cur.Close()

	if rv.Kind() == reflect.Slice {
		err = selectSlice(cur.Rows, rv)
	} else {
		err = selectStruct(cur.Rows, rv)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return newError(ErrInvalidResult, "Select", d.alias, err)
	default:
		return newError(ErrNoResult, "Select", d.alias, err)
	}
}

func selectSlice(rows *sql.Rows, rv reflect.Value) error {
	slice := reflect.MakeSlice(rv.Type(), 0, 0)

	for rows.Next() {
		val := reflect.New(rv.Type().Elem())

		if rv.Type().Elem().Kind() == reflect.Struct {
			if err := rowsToStruct(rows, val); err != nil {
				return err
			}
		} else if err := rows.Scan(val.Interface()); err != nil {
			return err
		}

		slice = reflect.Append(slice, val.Elem())
	}

	if err := rows.Err(); err != nil {
		return err
	}

	rv.Set(slice)

	return nil
}

func selectStruct(rows *sql.Rows, rv reflect.Value) error {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}

		return sql.ErrNoRows
	}

	if err := rowsToStruct(rows, rv); err != nil {
		return err
	}

	return rows.Err()
}

func rowsToStruct(rows *sql.Rows, vo reflect.Value) error {
	v := vo
	if vo.Kind() == reflect.Ptr {
		v = vo.Elem()
	}

	// map fields and their indexes by normalized name
	fieldNameIndex := map[string]int{}

	for i := 0; i < v.Type().NumField(); i++ {
		f := v.Type().Field(i)
		if !f.IsExported() {
			continue
		}

		name := f.Tag.Get("db")
		if name == "" {
			name = ToSnakeCase(f.Name)
		}

		fieldNameIndex[name] = i
	}

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	fields := make([]any, 0, len(columns))

	for _, c := range columns {
		if i, ok := fieldNameIndex[c]; ok {
			fields = append(fields, v.Field(i).Addr().Interface())
		} else {
			var discard any

			fields = append(fields, &discard)
		}
	}

	return rows.Scan(fields...)
}

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// ToSnakeCase converts a Go field name to its default column name.
func ToSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")

	return strings.ToLower(snake)
}
