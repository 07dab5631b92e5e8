package accessor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func known(fields ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}

func TestWhereRender(t *testing.T) {
	tests := []struct {
		name  string
		where Where
		want  string
	}{
		{"empty", nil, ""},
		{"single", Where{Eq("id", 1)}, " WHERE `id` = '1' "},
		{"value is not escaped", Where{Eq("name", "O'Brien")}, " WHERE `name` = 'O'Brien' "},
		{
			"connectives",
			Where{Eq("id", 1), And(), Compare("age", ">=", 18), Or(), Compare("name", "like", "a%")},
			" WHERE `id` = '1'  AND  `age` >= '18'  OR  `name` LIKE 'a%' ",
		},
		{"raw fragment", Where{Raw("`deleted_at` IS NULL")}, " WHERE `deleted_at` IS NULL "},
		{"operator whitespace collapsed", Where{Compare("name", " not   like ", "x")}, " WHERE `name` NOT LIKE 'x' "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.where.render(zap.NewNop()))
		})
	}
}

func TestWhereDropsInvalidComparisons(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	got := Where{
		Compare("id", "; DROP TABLE users", 1),
		Compare("", "=", 1),
		Eq("ok", "yes"),
	}.render(zap.New(core))

	assert.Equal(t, " WHERE `ok` = 'yes' ", got)
	assert.Equal(t, 2, logs.FilterMessage("invalid where comparison dropped").Len())
}

func TestFieldValues(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core)

	got := fieldValues(map[string]interface{}{
		"name":  "O'Brien",
		"id":    7,
		"bogus": true,
		"email": nil,
	}, known("id", "name", "email"), log)

	assert.Equal(t, "`email` = NULL,`id` = 7,`name` = 'O\\'Brien'", got)
	assert.Equal(t, 1, logs.FilterField(zap.String("field", "bogus")).Len())
}

func TestFieldValuesWithoutKnownFields(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	assert.Equal(t, "", fieldValues(map[string]interface{}{"id": 1}, nil, zap.New(core)))
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "", fieldValues(nil, nil, zap.New(core)))
}

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name string
		opts *SelectOptions
		want string
	}{
		{"nil options", nil, "SELECT * FROM users;"},
		{"probe", &SelectOptions{Limit: 1, Offset: 0}, "SELECT * FROM users LIMIT 1;"},
		{"projection", &SelectOptions{Fields: []string{"id", "name"}}, "SELECT `id`,`name` FROM users;"},
		{
			"where limit offset",
			&SelectOptions{Where: Where{Eq("id", 3)}, Limit: "10", Offset: 20},
			"SELECT * FROM users WHERE `id` = '3'  LIMIT 10 OFFSET 20;",
		},
		{"leading integer", &SelectOptions{Limit: "3abc"}, "SELECT * FROM users LIMIT 3;"},
		{"not a number", &SelectOptions{Limit: "abc"}, "SELECT * FROM users;"},
		{"float truncated", &SelectOptions{Limit: 2.9}, "SELECT * FROM users LIMIT 2;"},
		{"negative omitted", &SelectOptions{Limit: -5, Offset: "-1"}, "SELECT * FROM users;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildSelect("users", tt.opts, zap.NewNop()))
		})
	}
}

func TestBuildWrites(t *testing.T) {
	log := zap.NewNop()
	where := Where{Eq("id", 1), And(), Eq("x", "y")}

	assert.Equal(t, "INSERT INTO users SET `id` = 1;", buildInsert("users", "`id` = 1"))
	assert.Equal(t, "INSERT INTO users SET ;", buildInsert("users", ""))
	assert.Equal(t, "UPDATE users SET `name` = 'x' WHERE `id` = '1'  AND  `x` = 'y' ;",
		buildUpdate("users", "`name` = 'x'", where, log))
	assert.Equal(t, "UPDATE users SET `name` = 'x';", buildUpdate("users", "`name` = 'x'", nil, log))
	assert.Equal(t, "DELETE FROM users WHERE `id` = '1'  AND  `x` = 'y' ;", buildDelete("users", where, log))
	assert.Equal(t, "DELETE FROM users;", buildDelete("users", nil, log))
}

func TestCoerceInt(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int64
		ok   bool
	}{
		{nil, 0, false},
		{3, 3, true},
		{int64(-4), -4, true},
		{uint16(8), 8, true},
		{uint64(1 << 63), 0, false},
		{2.9, 2, true},
		{float32(-2.9), -2, true},
		{"42", 42, true},
		{"  7 rows", 7, true},
		{"+5", 5, true},
		{"-12x", -12, true},
		{"3abc", 3, true},
		{"abc", 0, false},
		{"-", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
		{[]byte("15"), 15, true},
		{time.Duration(9), 9, true},
	}

	for _, tt := range tests {
		got, ok := coerceInt(tt.in)
		assert.Equal(t, tt.ok, ok, "coerceInt(%#v)", tt.in)
		assert.Equal(t, tt.want, got, "coerceInt(%#v)", tt.in)
	}
}
