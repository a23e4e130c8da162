package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/sllt/kitesql/pkg/kitesql/config"
	"github.com/sllt/kitesql/pkg/kitesql/datasource/sql"
	"github.com/sllt/kitesql/pkg/kitesql/logging"
	"github.com/sllt/kitesql/pkg/kitesql/metrics"
)

// operation runs one statement on db and returns what gets printed.
type operation func(ctx context.Context, cmd *cli.Command, db *sql.DB) (any, error)

func run(op operation) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() == 0 {
			return fmt.Errorf("please provide a statement, e.g.: kitesql %s \"SELECT 1\"", cmd.Name)
		}

		logger := logging.New(logging.Options{
			Level:  logging.GetLevelFromString(cmd.String("log-level")),
			File:   cmd.String("log-file"),
			Output: cmd.Root().ErrWriter,
		})

		registry, err := connect(ctx, cmd, logger)
		if err != nil {
			return err
		}

		defer registry.Close()

		db, err := registry.Get(cmd.String("alias"))
		if err != nil {
			return err
		}

		result, err := op(ctx, cmd, db)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.Root().Writer)
		enc.SetIndent("", "  ")

		return enc.Encode(result)
	}
}

// connect registers the selected connection. Only that one is opened so an unreachable
// neighbour in the connections file does not fail the command.
func connect(ctx context.Context, cmd *cli.Command, logger logging.Logger) (*sql.Registry, error) {
	env := config.NewEnvFile(cmd.String("env-dir"), logger)

	if level := env.Get("LOG_LEVEL"); level != "" && !cmd.IsSet("log-level") {
		logger.ChangeLevel(logging.GetLevelFromString(level))
	}

	configs := []*sql.DBConfig{sql.FromConfig(env)}

	if path := cmd.String("config"); path != "" {
		var err error

		if configs, err = sql.LoadConnections(path); err != nil {
			return nil, err
		}
	}

	cfg, err := pick(configs, cmd.String("alias"))
	if err != nil {
		return nil, err
	}

	registry := sql.NewRegistry(
		sql.WithLogger(logger),
		sql.WithMetrics(metrics.NewMetricsManager(logger)),
	)

	if _, err := registry.Register(ctx, aliasOf(cfg), cfg); err != nil {
		return nil, err
	}

	return registry, nil
}

func pick(configs []*sql.DBConfig, alias string) (*sql.DBConfig, error) {
	if alias == "" {
		return configs[0], nil
	}

	for _, cfg := range configs {
		if aliasOf(cfg) == alias {
			return cfg, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", sql.ErrAliasNotFound, alias)
}

func aliasOf(cfg *sql.DBConfig) string {
	if cfg.Alias == "" {
		return "default"
	}

	return cfg.Alias
}

func statement(cmd *cli.Command) (string, []any) {
	args := cmd.Args().Slice()

	return args[0], parseParams(args[1:], cmd.Bool("text"))
}

func formatter(cmd *cli.Command) sql.RowFormatter {
	return sql.FormatFields(cmd.StringSlice("fields")...)
}

// parseParams turns command line arguments into bind parameters. Integers and floats keep their
// numeric type and "null" binds NULL unless asText is set.
func parseParams(args []string, asText bool) []any {
	params := make([]any, len(args))

	for i, a := range args {
		if asText {
			params[i] = a
			continue
		}

		params[i] = parseParam(a)
	}

	return params
}

func parseParam(s string) any {
	if strings.EqualFold(s, "null") {
		return nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}

	return s
}

func parseSets(raw string) ([][]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var sets [][]any
	if err := dec.Decode(&sets); err != nil {
		return nil, fmt.Errorf("parsing --sets: %w", err)
	}

	for _, set := range sets {
		for i, v := range set {
			n, ok := v.(json.Number)
			if !ok {
				continue
			}

			if i64, err := n.Int64(); err == nil {
				set[i] = i64
			} else if f, err := n.Float64(); err == nil {
				set[i] = f
			}
		}
	}

	return sets, nil
}

func selectMany(ctx context.Context, cmd *cli.Command, db *sql.DB) (any, error) {
	query, params := statement(cmd)

	return db.SelectMany(ctx, query, params, formatter(cmd))
}

func selectOne(ctx context.Context, cmd *cli.Command, db *sql.DB) (any, error) {
	query, params := statement(cmd)

	row, found, err := db.SelectOne(ctx, query, params, formatter(cmd))
	if err != nil || !found {
		return nil, err
	}

	return row, nil
}

func selectScalar(ctx context.Context, cmd *cli.Command, db *sql.DB) (any, error) {
	query, params := statement(cmd)

	return db.SelectScalar(ctx, query, params)
}

func selectColumn(ctx context.Context, cmd *cli.Command, db *sql.DB) (any, error) {
	query, params := statement(cmd)

	return db.SelectColumn(ctx, query, params)
}

type execResult struct {
	Affected     int64 `json:"affected"`
	LastInsertID int64 `json:"lastInsertId"`
}

func execute(ctx context.Context, cmd *cli.Command, db *sql.DB) (any, error) {
	query, params := statement(cmd)

	affected, err := db.Execute(ctx, query, params)
	if err != nil {
		return nil, err
	}

	return execResult{Affected: affected, LastInsertID: db.LastInsertID()}, nil
}

func callProcedure(ctx context.Context, cmd *cli.Command, db *sql.DB) (any, error) {
	name, params := statement(cmd)

	return db.CallProcedure(ctx, name, params, formatter(cmd))
}

func executeBatch(ctx context.Context, cmd *cli.Command, db *sql.DB) (any, error) {
	sets, err := parseSets(cmd.String("sets"))
	if err != nil {
		return nil, err
	}

	return db.ExecuteBatch(ctx, cmd.Args().First(), sets)
}

func selectPage(ctx context.Context, cmd *cli.Command, db *sql.DB) (any, error) {
	query, params := statement(cmd)
	draw := parseParam(cmd.String("draw"))

	if cmd.Bool("call") {
		return db.CallProcedureAsPage(ctx, draw, query, params, formatter(cmd))
	}

	return db.SelectPage(ctx, sql.PageQuery{
		Draw:       draw,
		Query:      query,
		Params:     params,
		TotalQuery: cmd.String("total"),
	}, formatter(cmd))
}
