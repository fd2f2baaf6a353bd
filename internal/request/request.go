package request

import (
	stdErrors "errors"

	xerrors "MantlePilot/internal/errors"
)

// Status 表示请求在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome 保存一次请求处理的结果快照，供查询接口返回。
type Outcome struct {
	Type        string `json:"type"`
	Reply       string `json:"reply"`
	Category    string `json:"category"`
	ActionKind  string `json:"action_kind,omitempty"`
	SafetyScore int    `json:"safety_score,omitempty"`
	SafetyLevel string `json:"safety_level,omitempty"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// Request 描述了排队处理的用户提问。
type Request struct {
	ID            string         `json:"id"`
	Query         string         `json:"query"`
	WalletAddress string         `json:"wallet_address,omitempty"`
	ChainID       string         `json:"chain_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Status        Status         `json:"status"`
	Attempts      int            `json:"attempts"`
	MaxRetries    int            `json:"max_retries"`
	LastError     string         `json:"last_error,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	Outcome       *Outcome       `json:"outcome,omitempty"`
	CreatedAt     int64          `json:"created_at"`
	UpdatedAt     int64          `json:"updated_at"`
}

var (
	// ErrRequestNotFound 表示指定的请求不存在。
	ErrRequestNotFound = xerrors.New(CodeRequestNotFound, "request not found")
	// ErrRequestConflict 表示请求在当前状态下无法进行所请求的操作。
	ErrRequestConflict = xerrors.New(CodeRequestConflict, "request conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrRequestCompleted 表示请求已经成功完成。
	ErrRequestCompleted = xerrors.New(CodeRequestCompleted, "request already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrRequestExhausted 表示请求的重试次数已经耗尽。
	ErrRequestExhausted = xerrors.New(CodeRequestExhausted, "request retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeRequestNotFound   xerrors.Code = "REQUEST_NOT_FOUND"
	CodeRequestConflict   xerrors.Code = "REQUEST_CONFLICT"
	CodeRequestCompleted  xerrors.Code = "REQUEST_COMPLETED"
	CodeRequestExhausted  xerrors.Code = "REQUEST_RETRIES_EXHAUSTED"
	CodeRequestValidation xerrors.Code = "REQUEST_VALIDATION_FAILED"
	CodeRequestPublish    xerrors.Code = "REQUEST_PUBLISH_FAILED"
	CodeRequestProcessing xerrors.Code = "REQUEST_PROCESSING_FAILED"
	CodeDangerousAction   xerrors.Code = "DANGEROUS_ACTION_DETECTED"
)

func init() {
	xerrors.Register(CodeRequestNotFound, xerrors.Attributes{
		Message:   "request not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRequestConflict, xerrors.Attributes{
		Message:   "request conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRequestCompleted, xerrors.Attributes{
		Message:   "request already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRequestExhausted, xerrors.Attributes{
		Message:   "request retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeRequestValidation, xerrors.Attributes{
		Message:   "request validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeRequestPublish, xerrors.Attributes{
		Message:   "failed to publish request",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeRequestProcessing, xerrors.Attributes{
		Message:   "request processing failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeDangerousAction, xerrors.Attributes{
		Message:   "dangerous action detected",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// IsRequestError 判断错误是否为统一请求错误。
func IsRequestError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrRequestNotFound) {
		return target == CodeRequestNotFound
	}
	if stdErrors.Is(err, ErrRequestConflict) {
		return target == CodeRequestConflict
	}
	if stdErrors.Is(err, ErrRequestCompleted) {
		return target == CodeRequestCompleted
	}
	if stdErrors.Is(err, ErrRequestExhausted) {
		return target == CodeRequestExhausted
	}
	return false
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

// IsValidStatus 检查给定的请求状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
