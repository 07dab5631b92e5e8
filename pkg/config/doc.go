// Package config loads tabular configuration.
//
// # Usage
//
//	cfg, err := config.Load("tabular.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # File format
//
//	database:
//	  driver: native
//	  host: db.internal
//	  port: 3306
//	  user: app
//	  password: ${DB_PASSWORD}
//	  name: shop
//	pool:
//	  max_connections: 10
//	  idle_timeout_millis: 30000
//
// # Environment
//
// ${VAR_NAME} references are substituted before parsing. Every key can
// also be overridden with a TABULAR_ prefixed variable, dots replaced by
// underscores: TABULAR_POOL_MAX_CONNECTIONS=4.
package config
