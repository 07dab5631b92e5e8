package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tabular/pkg/accessor"
	"github.com/ajitpratap0/tabular/pkg/errors"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		cond string
		want accessor.Clause
	}{
		{"id=3", accessor.Compare("id", "=", "3")},
		{"age >= 18", accessor.Compare("age", ">=", "18")},
		{"a<>b", accessor.Compare("a", "<>", "b")},
		{"title=x is y", accessor.Compare("title", "=", "x is y")},
		{"name like a%", accessor.Compare("name", "LIKE", "a%")},
		{"name NOT   LIKE a=b", accessor.Compare("name", "NOT LIKE", "a=b")},
		{"deleted_at is not NULL", accessor.Compare("deleted_at", "IS NOT", "NULL")},
		{"note=", accessor.Compare("note", "=", "")},
	}

	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			got, err := parseCondition(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConditionRejects(t *testing.T) {
	for _, cond := range []string{"", "id", "=3", "name between 1 and 2"} {
		_, err := parseCondition(cond)
		require.Error(t, err, cond)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), cond)
	}
}

func TestParseWhereConnectives(t *testing.T) {
	w, err := parseWhere([]string{"a=1", "b=2"}, false)
	require.NoError(t, err)
	assert.Equal(t, accessor.Where{
		accessor.Compare("a", "=", "1"), accessor.And(), accessor.Compare("b", "=", "2"),
	}, w)

	w, err = parseWhere([]string{"a=1", "b=2"}, true)
	require.NoError(t, err)
	assert.Equal(t, accessor.Or(), w[1])

	w, err = parseWhere(nil, false)
	require.NoError(t, err)
	assert.Empty(t, w)

	_, err = parseWhere([]string{"a=1", "broken"}, false)
	assert.Error(t, err)
}

func TestParseAssignments(t *testing.T) {
	values, err := parseAssignments(
		[]string{"name=ann", "age=31", "active=true", "nick=null", `quoted="42"`, "tags=[1,2]", "eq=a=b"},
		`{"email": "ann@example.com", "age": 1}`,
	)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"email":  "ann@example.com",
		"name":   "ann",
		"age":    float64(31),
		"active": true,
		"nick":   nil,
		"quoted": "42",
		"tags":   "[1,2]",
		"eq":     "a=b",
	}, values)
}

func TestParseAssignmentsRejects(t *testing.T) {
	_, err := parseAssignments([]string{"novalue"}, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = parseAssignments([]string{"=x"}, "")
	assert.Error(t, err)

	_, err = parseAssignments(nil, "{not json")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
