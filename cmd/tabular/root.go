package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabular/pkg/accessor"
	"github.com/ajitpratap0/tabular/pkg/config"
	"github.com/ajitpratap0/tabular/pkg/driver"
	"github.com/ajitpratap0/tabular/pkg/json"
	"github.com/ajitpratap0/tabular/pkg/logger"
	"github.com/ajitpratap0/tabular/pkg/profiling"
)

// cli holds the persistent flags shared by every command.
type cli struct {
	configPath   string
	driver       string
	database     string
	logLevel     string
	metricsFile  string
	profileDir   string
	profiles     []string
	timeout      time.Duration
	newConnector connectorFactory
}

func newCLI() *cli {
	return &cli{newConnector: defaultConnector}
}

// writeResult is printed for insert, update and delete.
type writeResult struct {
	AffectedRows uint64 `json:"affected_rows"`
	InsertID     uint64 `json:"insert_id,omitempty"`
	Duration     string `json:"duration"`
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "tabular",
		Short: "Tabular - pooled single table access for MySQL",
		Long: `Tabular reads and writes one MySQL table at a time through a bounded
connection pool. The table's columns are discovered on first use and values
for unknown columns are dropped.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Path to YAML configuration file (defaults plus TABULAR_* environment when empty)")
	flags.StringVar(&c.driver, "driver", "", "Driver adapter: native or sql (overrides configuration)")
	flags.StringVarP(&c.database, "database", "d", "", "Database to select after connecting (overrides configuration)")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&c.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")
	flags.StringVar(&c.profileDir, "profile-dir", "", "Write pprof profiles for this run into the directory")
	flags.StringSliceVar(&c.profiles, "profile", []string{"cpu", "memory"}, "Profiles to collect with --profile-dir: cpu, memory, block, mutex, goroutine, trace")
	flags.DurationVar(&c.timeout, "timeout", 30*time.Second, "Timeout for the whole command")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tabular v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(c.columnsCommand(), c.selectCommand(), c.insertCommand(), c.updateCommand(), c.deleteCommand())
	return root
}

func (c *cli) columnsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "columns <table>",
		Short: "List the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args[0], func(ctx context.Context, a *app, acc *accessor.Accessor) error {
				return writeJSON(cmd.OutOrStdout(), acc.Fields())
			})
		},
	}
}

func (c *cli) selectCommand() *cobra.Command {
	var (
		fields []string
		where  []string
		or     bool
		limit  string
		offset string
		format string
	)

	cmd := &cobra.Command{
		Use:   "select <table>",
		Short: "Print matching rows as JSON",
		Example: `  tabular select users --where "age>=18" --where "name like a%" --limit 10
  tabular select users --fields id,name --where id=3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "ndjson" {
				return fmt.Errorf("unknown output format %q", format)
			}
			w, err := parseWhere(where, or)
			if err != nil {
				return err
			}
			opts := &accessor.SelectOptions{Fields: fields, Where: w}
			if limit != "" {
				opts.Limit = limit
			}
			if offset != "" {
				opts.Offset = offset
			}

			return c.run(cmd, args[0], func(ctx context.Context, a *app, acc *accessor.Accessor) error {
				res, err := a.do(ctx, func(cb accessor.Callback) { acc.Select(ctx, opts, cb) })
				if err != nil {
					return err
				}
				if format == "ndjson" {
					return json.WriteLines(cmd.OutOrStdout(), res.Rows)
				}
				rows := res.Rows
				if rows == nil {
					rows = []map[string]interface{}{}
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "Columns to return (default all)")
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition such as id=3 or \"name like a%\" (repeatable)")
	cmd.Flags().BoolVar(&or, "or", false, "Join conditions with OR instead of AND")
	cmd.Flags().StringVar(&limit, "limit", "", "Maximum number of rows")
	cmd.Flags().StringVar(&offset, "offset", "", "Rows to skip")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json (array) or ndjson (one row per line)")
	return cmd
}

func (c *cli) insertCommand() *cobra.Command {
	var (
		set  []string
		data string
	)

	cmd := &cobra.Command{
		Use:     "insert <table>",
		Short:   "Insert one row",
		Example: `  tabular insert users --set name=ann --set age=31`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(set, data)
			if err != nil {
				return err
			}
			return c.run(cmd, args[0], func(ctx context.Context, a *app, acc *accessor.Accessor) error {
				res, err := a.do(ctx, func(cb accessor.Callback) { acc.Create(ctx, values, cb) })
				return printWrite(cmd.OutOrStdout(), res, err)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&set, "set", "s", nil, "Column assignment key=value (repeatable)")
	cmd.Flags().StringVar(&data, "json", "", "Column values as a JSON object")
	return cmd
}

func (c *cli) updateCommand() *cobra.Command {
	var (
		set   []string
		data  string
		where []string
		or    bool
	)

	cmd := &cobra.Command{
		Use:     "update <table>",
		Short:   "Update matching rows",
		Example: `  tabular update users --set name=bob --where id=3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(set, data)
			if err != nil {
				return err
			}
			w, err := parseWhere(where, or)
			if err != nil {
				return err
			}
			return c.run(cmd, args[0], func(ctx context.Context, a *app, acc *accessor.Accessor) error {
				res, err := a.do(ctx, func(cb accessor.Callback) { acc.Update(ctx, w, values, cb) })
				return printWrite(cmd.OutOrStdout(), res, err)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&set, "set", "s", nil, "Column assignment key=value (repeatable)")
	cmd.Flags().StringVar(&data, "json", "", "Column values as a JSON object")
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition (repeatable); without one every row is updated")
	cmd.Flags().BoolVar(&or, "or", false, "Join conditions with OR instead of AND")
	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	var (
		where []string
		or    bool
		all   bool
	)

	cmd := &cobra.Command{
		Use:     "delete <table>",
		Short:   "Delete matching rows",
		Example: `  tabular delete sessions --where "expires_at<2024-01-01"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := parseWhere(where, or)
			if err != nil {
				return err
			}
			if len(w) == 0 && !all {
				return fmt.Errorf("refusing to delete every row of %s without --all", args[0])
			}
			return c.run(cmd, args[0], func(ctx context.Context, a *app, acc *accessor.Accessor) error {
				res, err := a.do(ctx, func(cb accessor.Callback) { acc.Remove(ctx, w, cb) })
				return printWrite(cmd.OutOrStdout(), res, err)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition (repeatable)")
	cmd.Flags().BoolVar(&or, "or", false, "Join conditions with OR instead of AND")
	cmd.Flags().BoolVar(&all, "all", false, "Allow deleting every row when no condition is given")
	return cmd
}

// loadConfig applies flag overrides on top of the file and environment.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.driver != "" {
		cfg.Database.Driver = c.driver
	}
	if c.database != "" {
		cfg.Database.Name = c.database
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run wires the stack, opens table and hands it to fn.
func (c *cli) run(cmd *cobra.Command, table string, fn func(ctx context.Context, a *app, acc *accessor.Accessor) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return err
	}
	logger.Set(log)

	if c.profileDir != "" {
		types, err := profiling.ParseTypes(c.profiles)
		if err != nil {
			return err
		}
		pcfg := profiling.DefaultConfig()
		pcfg.OutputDir = c.profileDir
		pcfg.Types = types
		profiler := profiling.New(pcfg, log)
		if err := profiler.Start(); err != nil {
			return err
		}
		defer profiler.Stop()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	a, err := newApp(cfg, log, c.newConnector)
	if err != nil {
		return err
	}

	runErr := func() error {
		acc, err := a.table(ctx, table)
		if err != nil {
			return err
		}
		return fn(ctx, a, acc)
	}()
	if runErr != nil {
		log.Error("command failed", zap.String("table", table), zap.Error(runErr))
	}

	if err := a.close(c.metricsFile); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func printWrite(w io.Writer, res *driver.Result, err error) error {
	if err != nil {
		return err
	}
	return writeJSON(w, writeResult{
		AffectedRows: res.AffectedRows,
		InsertID:     res.InsertID,
		Duration:     res.Duration.String(),
	})
}

func writeJSON(w io.Writer, v interface{}) error {
	return json.Write(w, v, "  ")
}
