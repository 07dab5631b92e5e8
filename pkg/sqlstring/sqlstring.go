// Package sqlstring renders Go values as MySQL literals.
package sqlstring

import (
	"encoding/hex"
	"reflect"
	"strconv"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"

	stringpool "github.com/ajitpratap0/tabular/pkg/strings"
)

// TimeLayout is the DATETIME literal layout, millisecond precision.
const TimeLayout = "2006-01-02 15:04:05.000"

// Escape returns v as a literal safe to splice into a statement.
//
//	nil                 NULL
//	bool                true / false
//	integers, floats    verbatim
//	time.Time           '2006-01-02 15:04:05.000'
//	[]byte              X'68656c6c6f'
//	string              quoted, backslash escaped
//	slices, arrays      comma-joined escaped elements
//	anything else       fmt %v, quoted and escaped
func Escape(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(x)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return stringpool.ValueToString(x)
	case time.Time:
		return Quote(x.Format(TimeLayout))
	case *time.Time:
		if x == nil {
			return "NULL"
		}
		return Quote(x.Format(TimeLayout))
	case []byte:
		if x == nil {
			return "NULL"
		}
		return "X'" + hex.EncodeToString(x) + "'"
	case string:
		return Quote(x)
	case []string:
		parts := make([]string, len(x))
		for i, s := range x {
			parts[i] = Quote(s)
		}
		return stringpool.JoinPooled(parts, ", ")
	case []interface{}:
		return EscapeList(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "NULL"
		}
		return Escape(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]interface{}, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return EscapeList(items)
	}

	return Quote(stringpool.ValueToString(v))
}

// EscapeList escapes each element and joins them with ", ".
func EscapeList(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = Escape(v)
	}
	return stringpool.JoinPooled(parts, ", ")
}

// Quote wraps s in single quotes after MySQL backslash escaping.
func Quote(s string) string {
	return "'" + mysql.Escape(s) + "'"
}
