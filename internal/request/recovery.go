package request

import (
	"context"

	"MantlePilot/internal/assistant"
	xerrors "MantlePilot/internal/errors"
)

// RecoveryHandler 定义了在请求处理失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因进行补偿或降级。
	// 返回的 Outcome 将作为降级结果写入请求；若返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, req *Request, cause error) (*Outcome, error)
}

// DegradedRecovery 在协作方（大模型或节点）失联时返回兜底回复。
type DegradedRecovery struct {
	Reply string
}

// Recover 对协作方故障给出降级回复，其余错误交还失败流程。
func (r *DegradedRecovery) Recover(_ context.Context, req *Request, cause error) (*Outcome, error) {
	switch xerrors.CodeOf(cause) {
	case xerrors.CodeCollaboratorFailure, xerrors.CodeTimeout:
	default:
		return nil, nil
	}
	reply := r.Reply
	if reply == "" {
		reply = "The assistant is temporarily unavailable. Your request was recorded, please try again shortly."
	}
	return &Outcome{
		Type:     string(assistant.OutcomeText),
		Reply:    reply,
		Degraded: true,
	}, nil
}

var _ RecoveryHandler = (*DegradedRecovery)(nil)
