package sqldriver

import (
	"database/sql"
	stderrors "errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/tabular/pkg/driver"
)

func TestConfigFromCredentials(t *testing.T) {
	c := NewConnector(zaptest.NewLogger(t), 2*time.Second)
	cfg := c.config(driver.Credentials{Host: "db", Port: 3307, User: "app", Password: "pw", Database: "shop"})

	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "pw", cfg.Passwd)
	assert.Equal(t, "tcp", cfg.Net)
	assert.Equal(t, "db:3307", cfg.Addr)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	// the database is selected with USE after connecting
	assert.Empty(t, cfg.DBName)
}

func TestReturnsRows(t *testing.T) {
	tests := []struct {
		sql  string
		want bool
	}{
		{"SELECT * FROM users LIMIT 1;", true},
		{"  select `id` FROM users;", true},
		{"(SELECT 1)", true},
		{"SHOW TABLES", true},
		{"INSERT INTO users SET `name` = 'a';", false},
		{"UPDATE users SET `name` = 'a';", false},
		{"DELETE FROM users;", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, returnsRows(tt.sql), tt.sql)
	}
}

type fakeRows struct {
	cols   []string
	data   [][]interface{}
	pos    int
	closed bool
	err    error
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	for i, d := range dest {
		*(d.(*interface{})) = r.data[r.pos-1][i]
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

func TestScan(t *testing.T) {
	rows := &fakeRows{
		cols: []string{"id", "name", "note"},
		data: [][]interface{}{
			{int64(1), []byte("ada"), nil},
			{int64(2), []byte("grace"), []byte("admiral")},
		},
	}

	res, err := scan(rows)
	require.NoError(t, err)
	assert.True(t, rows.closed)
	assert.Equal(t, []string{"id", "name", "note"}, res.Fields)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "ada", res.Rows[0]["name"])
	assert.Nil(t, res.Rows[0]["note"])
	assert.Equal(t, "admiral", res.Rows[1]["note"])
}

func TestScanPropagatesRowsErr(t *testing.T) {
	rows := &fakeRows{cols: []string{"id"}, err: stderrors.New("interrupted")}
	_, err := scan(rows)
	assert.EqualError(t, err, "interrupted")
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.True(t, driver.IsBroken(classify(mysql.ErrInvalidConn)))
	assert.True(t, driver.IsBroken(classify(sql.ErrConnDone)))

	serverErr := &mysql.MySQLError{Number: 1146, Message: "Table 'shop.nope' doesn't exist"}
	assert.False(t, driver.IsBroken(classify(serverErr)))
}

func TestUseStatementQuotesDatabase(t *testing.T) {
	assert.Equal(t, "USE `shop`", useStatement("shop"))
	assert.Equal(t, "USE `a``b`", useStatement("a`b"))
	assert.Equal(t, "USE `x``; DROP TABLE t; --`", useStatement("x`; DROP TABLE t; --"))
}
