package accessor

import (
	"strings"

	"go.uber.org/zap"

	stringpool "github.com/ajitpratap0/tabular/pkg/strings"
)

// ClauseKind tags the variants of Clause
type ClauseKind int

const (
	// KindCompare is a `column` op 'value' comparison
	KindCompare ClauseKind = iota
	// KindAnd is the AND connective
	KindAnd
	// KindOr is the OR connective
	KindOr
	// KindRaw is a caller-supplied SQL fragment, emitted verbatim
	KindRaw
)

// Clause is one item of a WHERE list.
type Clause struct {
	Kind     ClauseKind
	Column   string
	Op       string
	Value    interface{}
	Fragment string
}

// Where is an ordered list of clauses. Items are emitted in order with no
// implicit connective, so comparisons are normally separated by And or Or.
type Where []Clause

var comparisonOps = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
	"LIKE": {}, "NOT LIKE": {}, "IS": {}, "IS NOT": {}, "IN": {}, "NOT IN": {},
}

// Compare builds a comparison. The value is quoted but not escaped.
func Compare(column, op string, value interface{}) Clause {
	return Clause{Kind: KindCompare, Column: column, Op: op, Value: value}
}

// Eq is Compare(column, "=", value)
func Eq(column string, value interface{}) Clause {
	return Compare(column, "=", value)
}

// And returns the AND connective
func And() Clause { return Clause{Kind: KindAnd} }

// Or returns the OR connective
func Or() Clause { return Clause{Kind: KindOr} }

// Raw returns a fragment emitted as is, e.g. "(" or "`deleted_at` IS NULL".
// It is the only way to put arbitrary SQL into a WHERE list.
func Raw(fragment string) Clause {
	return Clause{Kind: KindRaw, Fragment: fragment}
}

// NormalizeOp upper-cases op and collapses inner whitespace. The second
// result is false for unsupported operators.
func NormalizeOp(op string) (string, bool) {
	norm := strings.ToUpper(strings.Join(strings.Fields(op), " "))
	_, ok := comparisonOps[norm]
	return norm, ok
}

// render returns "" for an empty list, otherwise " WHERE" followed by each
// clause padded with spaces. Invalid comparisons are dropped with a warning.
func (w Where) render(logger *zap.Logger) string {
	if len(w) == 0 {
		return ""
	}

	sb := stringpool.NewSQLBuilder(16 + len(w)*24)
	defer sb.Close()

	sb.WriteQuery(" WHERE")
	for _, c := range w {
		switch c.Kind {
		case KindCompare:
			op, ok := NormalizeOp(c.Op)
			if c.Column == "" || !ok {
				logger.Warn("invalid where comparison dropped",
					zap.String("column", c.Column),
					zap.String("op", c.Op))
				continue
			}
			sb.WriteSpace().
				WriteIdentifier(c.Column).
				WriteSpace().
				WriteQuery(op).
				WriteSpace().
				WriteQuoted(stringpool.ValueToString(c.Value)).
				WriteSpace()
		case KindAnd:
			sb.WriteQuery(" AND ")
		case KindOr:
			sb.WriteQuery(" OR ")
		case KindRaw:
			sb.WriteSpace().WriteQuery(c.Fragment).WriteSpace()
		default:
			logger.Warn("unknown where clause kind dropped", zap.Int("kind", int(c.Kind)))
		}
	}
	return sb.String()
}
