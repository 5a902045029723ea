// Package dbutil 提供数据库方言抽象和工具函数
//
// 通过 Dialect 接口屏蔽 PostgreSQL 与 SQLite 的 SQL 差异，
// 使 repository 层可以编写与数据库无关的业务逻辑。
package dbutil

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DriverType 数据库驱动类型
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite"
)

// Dialect 数据库方言接口
//
// 不同数据库的 SQL 语法差异通过该接口屏蔽：
//   - 占位符：PostgreSQL 用 $1, $2；SQLite 用 ?
//   - 时间函数：PostgreSQL 用 NOW()；SQLite 用 datetime('now')
//   - 类型转换：PostgreSQL 有 ::type 语法
type Dialect interface {
	// DriverType 返回驱动类型标识
	DriverType() DriverType

	// Rebind 将 PostgreSQL 风格的占位符 ($1, $2, ...) 转换为目标数据库的占位符格式
	Rebind(query string) string

	// CurrentTimestamp 返回当前时间戳的 SQL 表达式
	CurrentTimestamp() string

	// BooleanLiteral 返回布尔字面量
	BooleanLiteral(b bool) string

	// AutoMigrate 自动创建/迁移数据库 Schema
	AutoMigrate(db *sql.DB) error
}

// pgPlaceholderRe 匹配 PostgreSQL 风格占位符 $1, $2, ...
var pgPlaceholderRe = regexp.MustCompile(`\$(\d+)`)

// pgCastRe 匹配 PostgreSQL 类型转换 ::type
var pgCastRe = regexp.MustCompile(`::(\w+)`)

// RebindToPositional 保持 $N 占位符不变（PostgreSQL 专用）
func RebindToPositional(query string) string {
	return query
}

// RebindToQuestion 将 $N 占位符转换为 ? （SQLite 专用）
func RebindToQuestion(query string) string {
	return pgPlaceholderRe.ReplaceAllString(query, "?")
}

// StripPgCasts 去除 PostgreSQL 类型转换 (::varchar, ::text 等)
func StripPgCasts(query string) string {
	return pgCastRe.ReplaceAllString(query, "")
}

// PlaceholderList 生成指定数量的占位符列表，如 "$1, $2, $3"
func PlaceholderList(d Dialect, start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	result := strings.Join(parts, ", ")
	return d.Rebind(result)
}

// MonthExpr 返回按月截断 created_at 的表达式（YYYY-MM）
//
// analytics 的按月聚合需要；两种数据库的日期格式化函数不同。
func MonthExpr(d Dialect, column string) string {
	if d.DriverType() == DriverSQLite {
		return fmt.Sprintf("strftime('%%Y-%%m', %s)", column)
	}
	return fmt.Sprintf("to_char(%s, 'YYYY-MM')", column)
}

// EpochDiffExpr 返回两个时间戳列的秒差表达式
func EpochDiffExpr(d Dialect, later, earlier string) string {
	if d.DriverType() == DriverSQLite {
		return fmt.Sprintf("(julianday(%s) - julianday(%s)) * 86400", later, earlier)
	}
	return fmt.Sprintf("EXTRACT(EPOCH FROM (%s - %s))", later, earlier)
}

// scanTimeLayouts SQLite 驱动写入文本时间戳时可能使用的格式
var scanTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

// ScanTime 时间戳扫描适配器
//
// SQLite 的聚合表达式（如 MAX(created_at)）丢失列的声明类型，
// 驱动按原始文本返回，database/sql 无法直接转换为 time.Time，
// 该类型在扫描时补上解析；PostgreSQL 路径仍收到 time.Time。
type ScanTime struct {
	Time time.Time
}

var _ sql.Scanner = (*ScanTime)(nil)

func (s *ScanTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		s.Time = time.Time{}
		return nil
	case time.Time:
		s.Time = x
		return nil
	case []byte:
		return s.parse(string(x))
	case string:
		return s.parse(x)
	}
	return fmt.Errorf("dbutil: cannot scan %T into time.Time", v)
}

func (s *ScanTime) parse(v string) error {
	for _, layout := range scanTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			s.Time = t
			return nil
		}
	}
	return fmt.Errorf("dbutil: cannot parse %q as time", v)
}
