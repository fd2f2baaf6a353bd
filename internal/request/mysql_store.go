package request

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "MantlePilot/internal/errors"
	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 记录请求状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS chat_requests (
        id VARCHAR(64) PRIMARY KEY,
        query TEXT NOT NULL,
        wallet_address VARCHAR(64) DEFAULT '',
        chain_id VARCHAR(32) DEFAULT '',
        metadata TEXT,
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        outcome_type VARCHAR(32) DEFAULT '',
        outcome_reply TEXT,
        outcome_category VARCHAR(32) DEFAULT '',
        outcome_action_kind VARCHAR(32) DEFAULT '',
        outcome_safety_score INT NOT NULL DEFAULT 0,
        outcome_safety_level VARCHAR(16) DEFAULT '',
        outcome_degraded TINYINT(1) NOT NULL DEFAULT 0,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_request_status (status),
        INDEX idx_request_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 chat_requests 表失败")
	}
	return nil
}

// Create 插入新的请求记录。
func (s *MySQLStore) Create(ctx context.Context, req *Request) error {
	if req == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "request 不能为空")
	}
	if strings.TrimSpace(req.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "请求 ID 不能为空")
	}

	now := time.Now().Unix()
	req.CreatedAt = now
	req.UpdatedAt = now

	metadataValue, err := marshalMetadata(req.Metadata)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码请求 metadata 失败")
	}

	const stmt = `INSERT INTO chat_requests
        (id, query, wallet_address, chain_id, metadata, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		req.ID,
		req.Query,
		req.WalletAddress,
		req.ChainID,
		metadataValue,
		req.Status,
		req.Attempts,
		req.MaxRetries,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrRequestConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入请求失败")
	}
	return nil
}

const selectColumns = `id, query, wallet_address, chain_id, metadata, status, attempts, max_retries, last_error, error_code,
        outcome_type, outcome_reply, outcome_category, outcome_action_kind, outcome_safety_score, outcome_safety_level, outcome_degraded,
        created_at, updated_at`

// Get 查询指定请求。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Request, error) {
	stmt := `SELECT ` + selectColumns + ` FROM chat_requests WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)
	req, err := scanRequest(row.Scan)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询请求失败")
	}
	return req, nil
}

// Claim 将请求标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Request, error) {
	const updateStmt = `UPDATE chat_requests SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新请求状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		req, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch req.Status {
		case StatusSucceeded:
			return req, ErrRequestCompleted
		case StatusRunning:
			return req, ErrRequestConflict
		default:
			if req.Attempts >= req.MaxRetries {
				return req, ErrRequestExhausted
			}
			return req, ErrRequestConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded 将请求标记为成功。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, outcome Outcome) error {
	const stmt = `UPDATE chat_requests SET status = ?, outcome_type = ?, outcome_reply = ?, outcome_category = ?,
        outcome_action_kind = ?, outcome_safety_score = ?, outcome_safety_level = ?, outcome_degraded = ?,
        updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusSucceeded,
		outcome.Type,
		outcome.Reply,
		outcome.Category,
		outcome.ActionKind,
		outcome.SafetyScore,
		outcome.SafetyLevel,
		outcome.Degraded,
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记请求成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// MarkFailed 将请求标记为失败，并在必要时终止重试。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	const stmt = `UPDATE chat_requests SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusFailed,
		lastError,
		string(code),
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记请求失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// List 返回最近的请求。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Request, error) {
	opts.applyDefaults()

	query := `SELECT ` + selectColumns + ` FROM chat_requests`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询请求列表失败")
	}
	defer rows.Close()

	requests := make([]*Request, 0, opts.Limit)
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析请求记录失败")
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历请求失败")
	}
	return requests, nil
}

// Stats 返回符合过滤条件的请求聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (RequestStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS succeeded,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM chat_requests`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, query, args...)

	var stats RequestStats
	if err := row.Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return RequestStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询请求统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRequest(scan func(dest ...any) error) (*Request, error) {
	var req Request
	var outcome Outcome
	var metadata sql.NullString
	var degraded int

	if err := scan(
		&req.ID,
		&req.Query,
		&req.WalletAddress,
		&req.ChainID,
		&metadata,
		&req.Status,
		&req.Attempts,
		&req.MaxRetries,
		&req.LastError,
		&req.ErrorCode,
		&outcome.Type,
		&outcome.Reply,
		&outcome.Category,
		&outcome.ActionKind,
		&outcome.SafetyScore,
		&outcome.SafetyLevel,
		&degraded,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}

	decodedMetadata, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	req.Metadata = decodedMetadata

	outcome.Degraded = degraded != 0
	if outcome.Type != "" || outcome.Reply != "" {
		req.Outcome = &outcome
	}
	return &req, nil
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for range opts.Statuses {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.HasOutcome != nil {
		if *opts.HasOutcome {
			conditions = append(conditions, "(outcome_type <> '' OR outcome_reply <> '')")
		} else {
			conditions = append(conditions, "(outcome_type = '' AND (outcome_reply IS NULL OR outcome_reply = ''))")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR query LIKE ? OR wallet_address LIKE ? OR last_error LIKE ? OR outcome_reply LIKE ? OR outcome_action_kind LIKE ?)")
		args = append(args,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
		)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
