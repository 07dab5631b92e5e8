package main

import (
	"regexp"
	"strings"


	"github.com/ajitpratap0/tabular/pkg/accessor"
	"github.com/ajitpratap0/tabular/pkg/errors"
	"github.com/ajitpratap0/tabular/pkg/json"
)

var (
	wordCondition   = regexp.MustCompile(`^\s*([^\s=<>!]+)\s+((?i:not\s+like|like|is\s+not|is|not\s+in|in))\s+(.*)$`)
	symbolCondition = regexp.MustCompile(`^\s*([^\s=<>!]+)\s*(>=|<=|!=|<>|=|<|>)\s*(.*)$`)
)

// parseCondition turns "age>=18" or "name like a%" into a comparison.
// The value is taken verbatim.
func parseCondition(cond string) (accessor.Clause, error) {
	m := symbolCondition.FindStringSubmatch(cond)
	if m == nil {
		m = wordCondition.FindStringSubmatch(cond)
	}
	if m == nil {
		return accessor.Clause{}, errors.New(errors.ErrorTypeValidation, "invalid where condition").
			WithDetail("condition", cond)
	}

	op, ok := accessor.NormalizeOp(m[2])
	if !ok {
		return accessor.Clause{}, errors.New(errors.ErrorTypeValidation, "unsupported operator").
			WithDetail("condition", cond)
	}
	return accessor.Compare(m[1], op, m[3]), nil
}

// parseWhere joins the conditions with AND, or with OR when or is set.
func parseWhere(conds []string, or bool) (accessor.Where, error) {
	var where accessor.Where
	for i, cond := range conds {
		c, err := parseCondition(cond)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			if or {
				where = append(where, accessor.Or())
			} else {
				where = append(where, accessor.And())
			}
		}
		where = append(where, c)
	}
	return where, nil
}

// parseAssignments reads key=value pairs. Values that parse as JSON
// literals (numbers, true, false, null, quoted strings) keep their type;
// anything else is a plain string.
func parseAssignments(pairs []string, raw string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(pairs))

	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid JSON values")
		}
	}

	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.New(errors.ErrorTypeValidation, "expected key=value").
				WithDetail("pair", pair)
		}
		values[key] = literal(val)
	}
	return values, nil
}

func literal(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return s
	}
	return v
}
