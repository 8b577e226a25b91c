package migrate

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/format"
)

// splitStatements breaks a migration script into individual SQL statements.
// It first tries a real SQL parse so that semicolons inside string literals
// or comments don't split a statement in two; if the parser can't make
// sense of the script (SQLite's dialect diverges from what the parser
// understands in places) it falls back to a line-oriented semicolon split.
func splitStatements(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if statements := splitWithParser(content); len(statements) > 0 {
		return statements
	}
	return splitBySemicolon(content)
}

func splitWithParser(content string) []string {
	p := parser.New()
	stmtNodes, _, err := p.Parse(content, "", "")
	if err != nil || len(stmtNodes) == 0 {
		return nil
	}

	statements := make([]string, 0, len(stmtNodes))
	for _, node := range stmtNodes {
		if node == nil {
			continue
		}
		var sb strings.Builder
		ctx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
		if err := node.Restore(ctx); err != nil {
			return nil
		}
		if stmt := strings.TrimSpace(sb.String()); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	if len(statements) == 0 {
		return nil
	}
	return statements
}

func splitBySemicolon(content string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") || trimmed == "" {
			continue
		}

		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}
	return statements
}
