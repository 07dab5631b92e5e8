package sqlstring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type label string

type point struct{ X, Y int }

func TestEscape(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 250*int(time.Millisecond), time.UTC)
	n := 7
	var nilPtr *int

	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil", nil, "NULL"},
		{"true", true, "true"},
		{"false", false, "false"},
		{"int", 42, "42"},
		{"negative", int64(-3), "-3"},
		{"uint", uint16(9), "9"},
		{"float", 2.5, "2.5"},
		{"string", "ada", "'ada'"},
		{"quote", "O'Brien", `'O\'Brien'`},
		{"backslash", `a\b`, `'a\\b'`},
		{"newline", "a\nb", `'a\nb'`},
		{"time", ts, "'2024-03-09 14:05:07.250'"},
		{"time pointer", &ts, "'2024-03-09 14:05:07.250'"},
		{"bytes", []byte("hi"), "X'6869'"},
		{"nil bytes", []byte(nil), "NULL"},
		{"strings", []string{"a", "b'c"}, `'a', 'b\'c'`},
		{"mixed list", []interface{}{1, "x", nil}, "1, 'x', NULL"},
		{"int slice", []int{1, 2, 3}, "1, 2, 3"},
		{"pointer", &n, "7"},
		{"nil pointer", nilPtr, "NULL"},
		{"named string", label("it's"), `'it\'s'`},
		{"struct", point{1, 2}, "'{1 2}'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "''", Quote(""))
	assert.Equal(t, `'\"quoted\"'`, Quote(`"quoted"`))
}
