package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"MantlePilot/internal/assistant"
	"MantlePilot/internal/auth"
	xerrors "MantlePilot/internal/errors"
	"MantlePilot/internal/observability/metrics"
	"MantlePilot/internal/request"
)

// Server 负责暴露 REST 接口，供前端驱动助手处理用户提问。
type Server struct {
	addr        string
	coordinator *assistant.Coordinator
	requests    *request.Service
	auth        *auth.Service
}

// Option 配置 Server 的可选能力。
type Option func(*Server)

// WithAuth 为 /api/ 路径启用令牌认证。
func WithAuth(service *auth.Service) Option {
	return func(s *Server) {
		s.auth = service
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, coordinator *assistant.Coordinator, requests *request.Service, opts ...Option) *Server {
	s := &Server{addr: addr, coordinator: coordinator, requests: requests}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/v1/chat", s.instrument("chat", s.handleChat))
	apiMux.HandleFunc("/api/v1/requests", s.instrument("requests", s.handleRequests))
	apiMux.HandleFunc("/api/v1/requests/", s.instrument("request_detail", s.handleRequestDetail))

	apiHandler := http.Handler(apiMux)
	if s.auth.Enabled() {
		apiHandler = s.auth.Middleware(auth.MiddlewareConfig{
			RequiredPermissions: map[string][]string{
				http.MethodGet:  {"requests:read"},
				http.MethodPost: {"chat:invoke"},
			},
		})(apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// handleChat 同步处理一次提问，直接返回协调器的结论。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.coordinator == nil {
		http.Error(w, "协调器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req assistant.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	outcome, err := s.coordinator.Process(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitRequest(w, r)
	case http.MethodGet:
		s.handleListRequests(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleSubmitRequest 将提问写入队列异步处理。
func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	if s.requests == nil {
		http.Error(w, "请求服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req assistant.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	record, err := s.requests.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if s.requests == nil {
		http.Error(w, "请求服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts := make([]request.ListOption, 0, 4)
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, request.WithLimit(parsed))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, request.WithOffset(parsed))
		}
	}
	if raw := query.Get("status"); raw != "" {
		statuses := make([]request.Status, 0, 4)
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, request.Status(strings.TrimSpace(part)))
		}
		opts = append(opts, request.WithStatuses(statuses...))
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, request.WithQuery(raw))
	}

	records, err := s.requests.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRequestDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.requests == nil {
		http.Error(w, "请求服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/requests/")
	if id == "stats" {
		stats, err := s.requests.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "非法的请求 ID", http.StatusBadRequest)
		return
	}

	record, err := s.requests.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument 为处理器附加 HTTP 指标采集。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 将统一错误码映射为 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, xerrors.CodeAddressMalformed, request.CodeRequestValidation:
		status = http.StatusBadRequest
	case xerrors.CodeNotFound, request.CodeRequestNotFound:
		status = http.StatusNotFound
	case xerrors.CodeConflict, request.CodeRequestConflict:
		status = http.StatusConflict
	case xerrors.CodeInitializationFailure:
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
