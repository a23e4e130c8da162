package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "kitesql",
		Usage:     "Run statements against configured SQL connections and print the results as JSON",
		Version:   CLIVersion,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML file with a connections list (default: DB_* environment)",
				Sources: cli.EnvVars("KITESQL_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-dir",
				Usage: "Folder holding .env files",
				Value: "./configs",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "DEBUG, INFO, NOTICE, WARN, ERROR or FATAL",
				Value:   "WARN",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write logs to this rotating file",
			},
		},
		Commands: []*cli.Command{
			newQueryCommand("query", "Print every row of a query", selectMany),
			newQueryCommand("one", "Print the first row of a query, or null", selectOne),
			newQueryCommand("scalar", "Print column 0 of the first row", selectScalar),
			newQueryCommand("column", "Print column 0 of every row", selectColumn),
			newQueryCommand("exec", "Execute a statement and print the affected rows", execute),
			newQueryCommand("call", "Call a stored procedure and print its first result set", callProcedure),
			{
				Name:      "batch",
				Usage:     "Execute a statement once per parameter set",
				ArgsUsage: "<sql>",
				Flags: append(connectionFlags(),
					&cli.StringFlag{
						Name:     "sets",
						Usage:    `JSON array of parameter arrays, e.g. '[[1,"a"],[2,"b"]]'`,
						Required: true,
					},
				),
				Action: run(executeBatch),
			},
			{
				Name:      "page",
				Usage:     "Print a datatable page",
				ArgsUsage: "<sql|procedure> [params...]",
				Flags: append(connectionFlags(),
					&cli.StringFlag{
						Name:  "draw",
						Usage: "Token echoed back in the page",
					},
					&cli.StringFlag{
						Name:  "total",
						Usage: "Statement returning the unfiltered row count",
					},
					&cli.BoolFlag{
						Name:  "call",
						Usage: "Treat the first argument as a procedure returning rows, filtered and total counts",
					},
				),
				Action: run(selectPage),
			},
		},
	}
}

func connectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "alias",
			Usage: "Connection alias (default: the first configured connection)",
		},
		&cli.StringSliceFlag{
			Name:  "fields",
			Usage: "Columns whose text is normalized to NFC UTF-8",
		},
		&cli.BoolFlag{
			Name:  "text",
			Usage: "Bind every parameter as text instead of inferring numbers and null",
		},
	}
}

func newQueryCommand(name, usage string, op operation) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<sql> [params...]",
		Flags:     connectionFlags(),
		Action:    run(op),
	}
}
