package statement

import (
	"strings"
	"unicode"

	"github.com/aandersen2323/filemaker-mcp-server/internal/toolerr"
)

// Query passes caller SQL through unchanged when it is a single SELECT.
func Query(sql string) (Statement, error) {
	if strings.TrimSpace(sql) == "" {
		return Statement{}, toolerr.Validation("query", nil, "sql is required")
	}
	stripped := strings.TrimSpace(stripLiterals(sql))
	stripped = strings.TrimRight(stripped, "; \t\r\n")
	if strings.Contains(stripped, ";") {
		return Statement{}, toolerr.Validation("query", toolerr.ErrNotSelect, "multiple statements")
	}
	if !strings.EqualFold(firstWord(stripped), "SELECT") {
		return Statement{}, toolerr.Validation("query", toolerr.ErrNotSelect, "")
	}
	return Statement{SQL: sql, Kind: KindQuery}, nil
}

// stripLiterals blanks out comments, string literals and quoted identifiers
// so keyword and separator checks only see SQL structure.
func stripLiterals(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			i += 2
			for i+1 < len(sql) && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i++
			b.WriteByte(' ')
		case c == '\'' || c == '"':
			quote := c
			i++
			for i < len(sql) {
				if sql[i] == quote {
					if i+1 < len(sql) && sql[i+1] == quote {
						i += 2
						continue
					}
					break
				}
				i++
			}
			b.WriteString(" x ")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, "( \t\r\n")
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		return s
	}
	return s[:end]
}
