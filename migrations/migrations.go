// Package migrations 内嵌各数据库的建表脚本。
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

//go:embed postgres/*.sql mysql/*.sql
var files embed.FS

// Load 读取指定数据库与方向（up/down）的迁移脚本
func Load(driver, direction string) (string, error) {
	if direction != "up" && direction != "down" {
		return "", fmt.Errorf("unsupported direction %q", direction)
	}
	content, err := files.ReadFile(fmt.Sprintf("%s/001_initial_schema.%s.sql", driver, direction))
	if err != nil {
		return "", fmt.Errorf("no migration for %s: %w", driver, err)
	}
	return string(content), nil
}

// Apply 在一个连接上依次执行脚本中的语句
func Apply(ctx context.Context, db *sql.DB, script string, log *zap.Logger) error {
	stmts := SplitStatements(script)
	for i, stmt := range stmts {
		firstLine := strings.SplitN(stmt, "\n", 2)[0]
		log.Info("apply statement", zap.Int("index", i+1), zap.Int("total", len(stmts)), zap.String("sql", firstLine))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d failed: %w", i+1, err)
		}
	}
	return nil
}

// SplitStatements 按分号分割 SQL 语句，忽略字符串中的分号与整行注释
func SplitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	var inString bool
	var quote rune

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(script, "\n") {
		if !inString && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, r := range line {
			switch {
			case r == '\'' || r == '"' || r == '`':
				if !inString {
					inString, quote = true, r
				} else if r == quote {
					inString = false
				}
				current.WriteRune(r)
			case r == ';' && !inString:
				flush()
			default:
				current.WriteRune(r)
			}
		}
		current.WriteRune('\n')
	}
	flush()
	return statements
}
