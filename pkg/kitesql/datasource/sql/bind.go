package sql

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Tag is the type tag of a bound parameter.
type Tag byte

const (
	TagInteger Tag = 'i'
	TagFloat   Tag = 'd'
	TagText    Tag = 's'
)

const textTimeLayout = "2006-01-02 15:04:05.999999"

// Param is one bound parameter.
type Param struct {
	Tag   Tag
	Value any
}

// Binding is the ordered parameter list of a statement.
type Binding []Param

// Signature returns one tag character per parameter, in order.
func (b Binding) Signature() string {
	sig := make([]byte, len(b))
	for i, p := range b {
		sig[i] = byte(p.Tag)
	}

	return string(sig)
}

// Args returns the values to hand to the driver.
func (b Binding) Args() []any {
	args := make([]any, len(b))
	for i, p := range b {
		args[i] = p.Value
	}

	return args
}

// Bind infers a tag for every parameter from its runtime type.
//
// nil binds as an integer-tagged NULL. Integers and floats keep their value. Everything else is
// rendered to text, trimmed and passed through escape. driver.Valuer values are resolved first.
func Bind(params []any, escape func(string) string) (Binding, error) {
	b := make(Binding, 0, len(params))

	for i, v := range params {
		p, err := bindOne(v, escape)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}

		b = append(b, p)
	}

	return b, nil
}

func bindOne(v any, escape func(string) string) (Param, error) {
	if valuer, ok := v.(driver.Valuer); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
			return Param{Tag: TagInteger}, nil
		}

		resolved, err := valuer.Value()
		if err != nil {
			return Param{}, err
		}

		v = resolved
	}

	if v == nil {
		return Param{Tag: TagInteger}, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return Param{Tag: TagInteger}, nil
		}

		return bindOne(rv.Elem().Interface(), escape)
	}

	switch rv.Kind() { //nolint:exhaustive // everything else is text.
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Param{Tag: TagInteger, Value: rv.Int()}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Param{Tag: TagInteger, Value: rv.Uint()}, nil
	case reflect.Float32, reflect.Float64:
		return Param{Tag: TagFloat, Value: rv.Float()}, nil
	}

	text := strings.TrimSpace(toText(v))
	if escape != nil {
		text = escape(text)
	}

	return Param{Tag: TagText, Value: text}, nil
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(textTimeLayout)
	case bool:
		if t {
			return "1"
		}

		return "0"
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
