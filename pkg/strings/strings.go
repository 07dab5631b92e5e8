// Package strings provides pooled string building for SQL text generation in tabular.
package strings

import (
	"fmt"
	"strconv"
	"sync"
	"unsafe"
)

// BytesToString converts byte slice to string without allocation
// WARNING: The returned string shares memory with the byte slice.
// Do not modify the byte slice after calling this function.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// Builder provides efficient string building with zero-copy operations
type Builder struct {
	buf []byte
}

// NewBuilder creates a new string builder
func NewBuilder(capacity int) *Builder {
	return &Builder{
		buf: make([]byte, 0, capacity),
	}
}

// WriteString appends a string to the builder
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends a single byte
func (b *Builder) WriteByte(c byte) {
	b.buf = append(b.buf, c)
}

// Write implements io.Writer interface
func (b *Builder) Write(p []byte) (n int, err error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns the built string using zero-copy conversion
func (b *Builder) String() string {
	return BytesToString(b.buf)
}

// Len returns the length of the built string
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset resets the builder for reuse
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// Clone creates a copy of a string (useful when you need to own the memory)
func Clone(s string) string {
	if len(s) == 0 {
		return ""
	}
	b := make([]byte, len(s))
	copy(b, s)
	return BytesToString(b)
}

var (
	// Statements and short messages
	smallBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(1024)
		},
	}

	// Multi-row statements, wide SET clauses
	largeBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(16 * 1024)
		},
	}
)

// BuilderSize represents different builder sizes
type BuilderSize int

const (
	Small BuilderSize = iota // < 1KB
	Large                    // 1KB+
)

func sizeFor(n int) BuilderSize {
	if n > 1024 {
		return Large
	}
	return Small
}

// GetBuilder retrieves a pooled builder of the specified size
func GetBuilder(size BuilderSize) *Builder {
	pool := smallBuilderPool
	if size == Large {
		pool = largeBuilderPool
	}

	builder := pool.Get().(*Builder)
	builder.Reset()
	return builder
}

// PutBuilder returns a builder to the appropriate pool
func PutBuilder(builder *Builder, size BuilderSize) {
	if builder == nil {
		return
	}

	pool := smallBuilderPool
	if size == Large {
		pool = largeBuilderPool
	}

	builder.Reset()
	pool.Put(builder)
}

// Sprintf provides a pooled alternative to fmt.Sprintf
func Sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}

	size := sizeFor(len(format) + len(args)*16)
	builder := GetBuilder(size)
	defer PutBuilder(builder, size)

	fmt.Fprintf(builder, format, args...)

	return Clone(builder.String())
}

// JoinPooled efficiently joins strings using pooled builder
func JoinPooled(parts []string, delimiter string) string {
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}

	totalLen := (len(parts) - 1) * len(delimiter)
	for _, s := range parts {
		totalLen += len(s)
	}

	size := sizeFor(totalLen)
	builder := GetBuilder(size)
	defer PutBuilder(builder, size)

	builder.WriteString(parts[0])
	for i := 1; i < len(parts); i++ {
		builder.WriteString(delimiter)
		builder.WriteString(parts[i])
	}

	return Clone(builder.String())
}

// SQLBuilder provides MySQL statement building on top of a pooled builder.
// Identifiers are backtick-quoted; values must already be rendered by the caller.
type SQLBuilder struct {
	builder *Builder
	size    BuilderSize
}

// NewSQLBuilder creates a new SQL builder
func NewSQLBuilder(estimatedLength int) *SQLBuilder {
	size := sizeFor(estimatedLength)
	return &SQLBuilder{
		builder: GetBuilder(size),
		size:    size,
	}
}

// WriteQuery writes a SQL query part
func (sb *SQLBuilder) WriteQuery(query string) *SQLBuilder {
	sb.builder.WriteString(query)
	return sb
}

// WriteSpace adds a space
func (sb *SQLBuilder) WriteSpace() *SQLBuilder {
	sb.builder.WriteByte(' ')
	return sb
}

// WriteIdentifier writes a backtick-quoted identifier.
// The name is written as given; backticks inside it are not doubled.
func (sb *SQLBuilder) WriteIdentifier(name string) *SQLBuilder {
	sb.builder.WriteByte('`')
	sb.builder.WriteString(name)
	sb.builder.WriteByte('`')
	return sb
}

// WriteIdentifiers writes a comma-separated list of backtick-quoted identifiers
func (sb *SQLBuilder) WriteIdentifiers(names []string) *SQLBuilder {
	for i, name := range names {
		if i > 0 {
			sb.builder.WriteByte(',')
		}
		sb.WriteIdentifier(name)
	}
	return sb
}

// WriteQuoted wraps value in single quotes without escaping it
func (sb *SQLBuilder) WriteQuoted(value string) *SQLBuilder {
	sb.builder.WriteByte('\'')
	sb.builder.WriteString(value)
	sb.builder.WriteByte('\'')
	return sb
}

// WriteInt writes an integer value
func (sb *SQLBuilder) WriteInt(value int64) *SQLBuilder {
	sb.builder.WriteString(strconv.FormatInt(value, 10))
	return sb
}

// Len returns the number of bytes written so far
func (sb *SQLBuilder) Len() int {
	return sb.builder.Len()
}

// String returns the built SQL query
func (sb *SQLBuilder) String() string {
	return Clone(sb.builder.String())
}

// Close releases the builder back to the pool
func (sb *SQLBuilder) Close() {
	if sb.builder != nil {
		PutBuilder(sb.builder, sb.size)
		sb.builder = nil
	}
}

// ValueToString efficiently converts interface{} values to strings
func ValueToString(value interface{}) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []byte:
		return string(v)
	default:
		return Sprintf("%v", value)
	}
}
