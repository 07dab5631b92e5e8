package accessor

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabular/pkg/sqlstring"
	stringpool "github.com/ajitpratap0/tabular/pkg/strings"
)

// SelectOptions narrows a Select. A nil *SelectOptions selects every
// column of every row.
type SelectOptions struct {
	// Fields restricts the projected columns when non-empty
	Fields []string
	Where  Where
	// Limit and Offset accept integers, floats and numeric strings. They
	// are truncated to their leading integer ("3abc" is 3, 2.9 is 2) and
	// omitted unless strictly positive.
	Limit  interface{}
	Offset interface{}
}

func buildSelect(table string, opts *SelectOptions, logger *zap.Logger) string {
	if opts == nil {
		opts = &SelectOptions{}
	}

	sb := stringpool.NewSQLBuilder(64)
	defer sb.Close()

	sb.WriteQuery("SELECT ")
	if len(opts.Fields) > 0 {
		sb.WriteIdentifiers(opts.Fields)
	} else {
		sb.WriteQuery("*")
	}
	sb.WriteQuery(" FROM ").WriteQuery(table).WriteQuery(opts.Where.render(logger))

	if n, ok := coerceInt(opts.Limit); ok && n > 0 {
		sb.WriteQuery(" LIMIT ").WriteInt(n)
	}
	if n, ok := coerceInt(opts.Offset); ok && n > 0 {
		sb.WriteQuery(" OFFSET ").WriteInt(n)
	}
	sb.WriteQuery(";")
	return sb.String()
}

func buildInsert(table, assignments string) string {
	return "INSERT INTO " + table + " SET " + assignments + ";"
}

func buildUpdate(table, assignments string, where Where, logger *zap.Logger) string {
	return "UPDATE " + table + " SET " + assignments + where.render(logger) + ";"
}

func buildDelete(table string, where Where, logger *zap.Logger) string {
	return "DELETE FROM " + table + where.render(logger) + ";"
}

// fieldValues renders `key` = <escaped value> pairs, comma-joined, for
// the keys present in known. Keys are visited in sorted order.
func fieldValues(values map[string]interface{}, known map[string]struct{}, logger *zap.Logger) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(known) == 0 && len(keys) > 0 {
		logger.Warn("table fields not loaded, every value is dropped", zap.Strings("keys", keys))
		return ""
	}

	sb := stringpool.NewSQLBuilder(len(keys) * 24)
	defer sb.Close()

	n := 0
	for _, k := range keys {
		if _, ok := known[k]; !ok {
			logger.Warn("field is not in the table schema and is not written", zap.String("field", k))
			continue
		}
		if n > 0 {
			sb.WriteQuery(",")
		}
		sb.WriteIdentifier(k).WriteQuery(" = ").WriteQuery(sqlstring.Escape(values[k]))
		n++
	}
	return sb.String()
}

// coerceInt truncates v to its leading integer. Strings may carry leading
// whitespace and a sign; parsing stops at the first non-digit.
func coerceInt(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return clampUint(uint64(x))
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return clampUint(x)
	case float32:
		return coerceFloat(float64(x))
	case float64:
		return coerceFloat(x)
	case string:
		return leadingInt(x)
	case []byte:
		return leadingInt(string(x))
	}
	return leadingInt(stringpool.ValueToString(v))
}

func clampUint(u uint64) (int64, bool) {
	if u > 1<<63-1 {
		return 0, false
	}
	return int64(u), true
}

func coerceFloat(f float64) (int64, bool) {
	if f != f || f >= 1<<63 || f <= -(1<<63) {
		return 0, false
	}
	return int64(f), true
}

func leadingInt(s string) (int64, bool) {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
