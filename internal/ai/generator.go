package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrDisabled     = errors.New("generative provider is not configured")
	ErrNoJSON       = errors.New("ai response does not contain json")
	ErrSchema       = errors.New("ai response violates schema")
	defaultBackoff  = 300 * time.Millisecond
	defaultTimeout  = 20 * time.Second
	maxLoggedPrompt = 16 << 10
)

// PermanentError marks failures that a retry cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent оборачивает ошибку как неповторяемую.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// ProviderError is returned when every attempt failed. Callers recover from it
// by switching to their deterministic path.
type ProviderError struct {
	Kind     string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RequestLog describes one generative call for auditing.
type RequestLog struct {
	SessionID string
	Kind      string
	Provider  string
	Model     string
	Prompt    string
	Response  string
	Raw       []byte
	Attempts  int
	Success   bool
	Error     string
	Duration  time.Duration
}

type RequestLogger interface {
	LogRequest(ctx context.Context, log RequestLog) error
}

type GeneratorConfig struct {
	Provider   string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Generator wraps a Client with a per-attempt timeout, bounded retries,
// JSON extraction and schema validation.
type Generator struct {
	client Client
	cfg    GeneratorConfig
	audit  RequestLogger
	logger *slog.Logger
}

// Call is a single structured generation request.
type Call struct {
	Kind      string
	SessionID string
	System    string
	Prompt    string
}

// NewGenerator создает генератор; nil client означает выключенный провайдер.
func NewGenerator(client Client, cfg GeneratorConfig, audit RequestLogger, logger *slog.Logger) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, cfg: cfg, audit: audit, logger: logger}
}

// Enabled сообщает, настроен ли провайдер.
func (g *Generator) Enabled() bool {
	return g != nil && g.client != nil
}

func (g *Generator) Provider() string {
	if !g.Enabled() {
		return "none"
	}
	return g.cfg.Provider
}

func (g *Generator) Model() string {
	if !g.Enabled() {
		return ""
	}
	return g.cfg.Model
}

// GenerateJSON выполняет вызов, декодирует JSON в target и проверяет его через validate.
// Нарушение схемы не повторяется: повтор делается только для транспортных ошибок и таймаутов.
func (g *Generator) GenerateJSON(ctx context.Context, call Call, target any, validate func() error) error {
	if !g.Enabled() {
		return &ProviderError{Kind: call.Kind, Err: ErrDisabled}
	}

	messages := []Message{
		{Role: "system", Content: call.System},
		{Role: "user", Content: call.Prompt},
	}

	started := time.Now()
	attempts := 0
	var content string
	var raw []byte
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		attempts++
		content, raw, lastErr = g.chat(ctx, messages)
		if lastErr == nil {
			lastErr = decodeAndValidate(content, target, validate)
			if lastErr == nil {
				break
			}
			lastErr = Permanent(lastErr)
		}

		var permanent *PermanentError
		if errors.As(lastErr, &permanent) || ctx.Err() != nil || attempt == g.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(g.cfg.Backoff * time.Duration(1<<attempt)):
		}
	}

	g.record(ctx, call, content, raw, attempts, lastErr, time.Since(started))

	if lastErr != nil {
		return &ProviderError{Kind: call.Kind, Attempts: attempts, Err: lastErr}
	}
	return nil
}

func (g *Generator) chat(ctx context.Context, messages []Message) (string, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.client.Chat(attemptCtx, messages)
}

func (g *Generator) record(ctx context.Context, call Call, content string, raw []byte, attempts int, err error, duration time.Duration) {
	entry := RequestLog{
		SessionID: call.SessionID,
		Kind:      call.Kind,
		Provider:  g.cfg.Provider,
		Model:     g.cfg.Model,
		Prompt:    truncate(call.Prompt, maxLoggedPrompt),
		Response:  content,
		Raw:       raw,
		Attempts:  attempts,
		Success:   err == nil,
		Duration:  duration,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	g.logger.LogAttrs(ctx, slog.LevelInfo, "provider call finished",
		slog.String("budget_id", call.SessionID),
		slog.String("kind", call.Kind),
		slog.String("provider", g.cfg.Provider),
		slog.Int("attempts", attempts),
		slog.Bool("success", err == nil),
		slog.Duration("duration", duration),
	)

	if g.audit == nil {
		return
	}
	if auditErr := g.audit.LogRequest(context.WithoutCancel(ctx), entry); auditErr != nil {
		g.logger.Warn("provider request log failed", slog.String("error", auditErr.Error()))
	}
}

func decodeAndValidate(content string, target any, validate func() error) error {
	if err := parseJSON(content, target); err != nil {
		return err
	}
	if validate == nil {
		return nil
	}
	if err := validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

func parseJSON(input string, target interface{}) error {
	payload := extractJSON(input)
	if payload == "" {
		return ErrNoJSON
	}

	if err := json.Unmarshal([]byte(payload), target); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

func extractJSON(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(strings.TrimSpace(trimmed), "json")
		trimmed = strings.TrimSpace(trimmed)
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}

	return trimmed[start : end+1]
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

// FallbackReason переводит ошибку провайдера в короткий код для метаданных ответа.
func FallbackReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDisabled):
		return "provider_disabled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrSchema), errors.Is(err, ErrNoJSON):
		return "schema_violation"
	default:
		return "provider_error"
	}
}
