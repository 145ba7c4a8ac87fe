package advisorlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"huddle/internal/advisor"

	_ "modernc.org/sqlite"
)

// Store 持久化顾问往返记录（提示词、原始输出、降级标记），方便事后排查
// 某条建议当时到底看到了什么。与主库分离，单独一个 SQLite 文件。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Record 一次顾问往返。
type Record struct {
	ID           int64     `json:"id"`
	At           time.Time `json:"at"`
	Provider     string    `json:"provider"`
	Purpose      string    `json:"purpose"`
	SystemPrompt string    `json:"system_prompt"`
	UserPrompt   string    `json:"user_prompt"`
	RawOutput    string    `json:"raw_output"`
	Degraded     bool      `json:"degraded"`
}

const schema = `
CREATE TABLE IF NOT EXISTS advisor_exchanges (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	ts            INTEGER NOT NULL,
	provider      TEXT NOT NULL,
	purpose       TEXT NOT NULL,
	system_prompt TEXT NOT NULL,
	user_prompt   TEXT NOT NULL,
	raw_output    TEXT NOT NULL,
	degraded      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_advisor_exchanges_ts ON advisor_exchanges(ts);
`

// New 打开（必要时创建）往返日志库。
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("advisor log: 数据库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db, path: path}, nil
}

// RecordExchange 实现 advisor.Recorder。
func (s *Store) RecordExchange(ctx context.Context, x advisor.Exchange) error {
	if s == nil || s.db == nil {
		return nil
	}
	at := x.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO advisor_exchanges (ts, provider, purpose, system_prompt, user_prompt, raw_output, degraded)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		at.Unix(), x.Provider, x.Purpose, x.SystemPrompt, x.UserPrompt, x.RawOutput, boolToInt(x.Degraded))
	return err
}

// Recent 最新往返在前。
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("advisor log 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, provider, purpose, system_prompt, user_prompt, raw_output, degraded
		 FROM advisor_exchanges ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			ts       int64
			degraded int
		)
		if err := rows.Scan(&r.ID, &ts, &r.Provider, &r.Purpose,
			&r.SystemPrompt, &r.UserPrompt, &r.RawOutput, &degraded); err != nil {
			return nil, err
		}
		r.At = time.Unix(ts, 0).UTC()
		r.Degraded = degraded != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
