package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// Service 负责对 API 请求做静态令牌认证。
// 令牌只保存摘要，避免配置泄露时直接暴露明文。
type Service struct {
	mode    Mode
	tokens  map[string]*Subject
	digests []string
}

// NewService 构造认证服务实例。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(string(cfg.Mode)))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{
		mode:   mode,
		tokens: make(map[string]*Subject, len(cfg.Tokens)),
	}
	if mode == ModeDisabled {
		return svc, nil
	}
	if mode != ModeToken {
		return nil, errors.New("不支持的认证模式: " + string(cfg.Mode))
	}
	if len(cfg.Tokens) == 0 {
		return nil, errors.New("token 模式至少需要一个接入令牌")
	}
	for _, seed := range cfg.Tokens {
		token := strings.TrimSpace(seed.Token)
		if token == "" {
			return nil, errors.New("接入令牌不能为空")
		}
		digest := digestOf(token)
		svc.tokens[digest] = &Subject{
			Name:        seed.Name,
			Permissions: append([]string(nil), seed.Permissions...),
			Disabled:    seed.Disabled,
		}
		svc.digests = append(svc.digests, digest)
	}
	return svc, nil
}

// Enabled 返回认证是否开启。
func (s *Service) Enabled() bool {
	return s != nil && s.mode != ModeDisabled
}

// AuthenticateRequest 校验 Authorization 头并返回对应主体。
func (s *Service) AuthenticateRequest(_ context.Context, authorization string) (*Subject, error) {
	if !s.Enabled() {
		return nil, nil
	}
	token := strings.TrimSpace(authorization)
	if token == "" {
		return nil, ErrMissingToken
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	digest := digestOf(token)
	// 常数时间逐一比较，令牌数量很小，代价可以接受。
	var matched *Subject
	for _, candidate := range s.digests {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(digest)) == 1 {
			matched = s.tokens[candidate]
		}
	}
	if matched == nil {
		return nil, ErrInvalidToken
	}
	if matched.Disabled {
		return nil, ErrSubjectRevoked
	}
	matched.normalise()
	return matched, nil
}

func digestOf(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
