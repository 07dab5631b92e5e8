package testutil

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/tabular/pkg/driver"
)

// Environment variables read by MySQLCredentials
const (
	EnvMySQLHost     = "TABULAR_TEST_MYSQL_HOST"
	EnvMySQLPort     = "TABULAR_TEST_MYSQL_PORT"
	EnvMySQLUser     = "TABULAR_TEST_MYSQL_USER"
	EnvMySQLPassword = "TABULAR_TEST_MYSQL_PASSWORD"
	EnvMySQLDatabase = "TABULAR_TEST_MYSQL_DATABASE"
)

// MySQLCredentials returns live server credentials from the environment,
// skipping the test in short mode or when no server is configured.
func MySQLCredentials(t *testing.T) driver.Credentials {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	host := os.Getenv(EnvMySQLHost)
	if host == "" {
		t.Skipf("Skipping integration test, %s is not set", EnvMySQLHost)
	}

	port := 3306
	if p := os.Getenv(EnvMySQLPort); p != "" {
		n, err := strconv.Atoi(p)
		require.NoError(t, err, EnvMySQLPort)
		port = n
	}

	creds := driver.Credentials{
		Host:     host,
		Port:     port,
		User:     os.Getenv(EnvMySQLUser),
		Password: os.Getenv(EnvMySQLPassword),
		Database: os.Getenv(EnvMySQLDatabase),
	}
	if creds.User == "" {
		creds.User = "root"
	}
	if creds.Database == "" {
		creds.Database = "tabular_test"
	}
	return creds
}

// IntegrationTestSuite provides base functionality for tests against a live server
type IntegrationTestSuite struct {
	suite.Suite
	Creds     driver.Credentials
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.Creds = MySQLCredentials(s.T())
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 2*time.Minute)
	s.startTime = time.Now()
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	if s.cancel != nil {
		s.cancel()
	}
	s.T().Logf("Integration test suite completed in %v", time.Since(s.startTime))
}

// Context returns the suite context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}
