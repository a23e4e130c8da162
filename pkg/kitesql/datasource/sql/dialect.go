package sql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Dialect represents a SQL dialect a connection talks.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var errUnsupportedDialect = errors.New("unsupported dialect")

// ParseDialect normalizes a configured dialect name.
//
// Supported values include:
//   - mysql, mariadb (the default when empty)
//   - postgres, postgresql, supabase, cockroachdb
//   - sqlite, sqlite3
func ParseDialect(dialect string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "", string(DialectMySQL), "mariadb":
		return DialectMySQL, nil
	case string(DialectPostgres), "postgresql", "supabase", "cockroachdb":
		return DialectPostgres, nil
	case string(DialectSQLite), "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedDialect, dialect)
	}
}

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	default:
		return "mysql"
	}
}

// Escape applies the dialect's string literal escaping. For MySQL it matches
// mysql_real_escape_string; the others double single quotes.
func (d Dialect) Escape(s string) string {
	if d != DialectMySQL && d != "" {
		return strings.ReplaceAll(s, "'", "''")
	}

	var out strings.Builder

	out.Grow(len(s) + 8)

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 0:
			out.WriteString(`\0`)
		case '\n':
			out.WriteString(`\n`)
		case '\r':
			out.WriteString(`\r`)
		case '\x1a':
			out.WriteString(`\Z`)
		case '\'', '"', '\\':
			out.WriteByte('\\')
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}

// rebind turns ? placeholders into $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var (
		counter = 1
		out     strings.Builder
	)

	out.Grow(len(query) + 8)

	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			out.WriteByte(query[i])
			continue
		}

		out.WriteByte('$')
		out.WriteString(strconv.Itoa(counter))
		counter++
	}

	return out.String()
}

// placeholders counts the bind parameters query expects, ignoring quoted text and comments.
// Postgres statements expect as many parameters as their highest $n.
func (d Dialect) placeholders(query string) int {
	var count, highest int

	for i := 0; i < len(query); i++ {
		c := query[i]

		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(query, i, d == DialectMySQL && c != '`')
		case d == DialectPostgres && (c == 'E' || c == 'e') && i+1 < len(query) && query[i+1] == '\'' &&
			(i == 0 || !isIdentByte(query[i-1])):
			i = skipQuoted(query, i+1, true)
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			i = skipUntil(query, i+2, "\n")
		case c == '#' && d == DialectMySQL:
			i = skipUntil(query, i+1, "\n")
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			i = skipUntil(query, i+2, "*/")
		case c == '?' && d != DialectPostgres:
			count++
		case c == '$' && d == DialectPostgres:
			if tag := dollarTag(query, i); tag != "" {
				i = skipUntil(query, i+len(tag), tag)
				continue
			}

			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}

			if n, err := strconv.Atoi(query[i+1 : j]); err == nil && n > highest {
				highest = n
			}

			i = j - 1
		}
	}

	if d == DialectPostgres {
		return highest
	}

	return count
}

// skipQuoted returns the index of the quote closing the literal opened at start.
// A doubled quote is part of the literal, and so is any byte after a backslash when backslash is set.
func skipQuoted(query string, start int, backslash bool) int {
	quote := query[start]

	for i := start + 1; i < len(query); i++ {
		switch {
		case query[i] == '\\' && backslash:
			i++
		case query[i] == quote:
			if i+1 < len(query) && query[i+1] == quote {
				i++
				continue
			}

			return i
		}
	}

	return len(query)
}

// dollarTag returns the $tag$ opening a Postgres dollar-quoted body at start, or "" when the $
// does not open one. $1 is a parameter and a $ inside an identifier is part of its name.
func dollarTag(query string, start int) string {
	if start > 0 && isIdentByte(query[start-1]) {
		return ""
	}

	for j := start + 1; j < len(query); j++ {
		c := query[j]

		switch {
		case c == '$':
			return query[start : j+1]
		case c >= '0' && c <= '9':
			if j == start+1 {
				return ""
			}
		case !isIdentByte(c):
			return ""
		}
	}

	return ""
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

func skipUntil(query string, from int, terminator string) int {
	idx := strings.Index(query[from:], terminator)
	if idx < 0 {
		return len(query)
	}

	return from + idx + len(terminator) - 1
}

// foundRowsQuery is the fast row count of the previous statement on the same session.
func (d Dialect) foundRowsQuery() string {
	if d == DialectMySQL {
		return "SELECT FOUND_ROWS()"
	}

	return ""
}
