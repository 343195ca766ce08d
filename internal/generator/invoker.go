package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gensite/internal/protocol"
)

// SystemInstruction is sent with every generation request.
const SystemInstruction = `You are a senior web developer and React architect. Build a complete, working project from the user's description.
- Deliver a real, deployable project with a clear folder structure, not a toy or a test page.
- Include every file the project needs: index.html, index.tsx, App.tsx, package.json with all dependencies, stylesheets, components in folders, placeholder assets where referenced.
- Use TypeScript for all code files and keep imports and references consistent so the project runs as delivered.
- Answer with a single JSON object and nothing else: no markdown, no explanations, no comments outside the code.
- The JSON object maps each file path to its content and language:
{
  "App.tsx": {"content": "...", "language": "typescript"},
  "index.tsx": {"content": "...", "language": "typescript"},
  "index.html": {"content": "...", "language": "html"},
  "package.json": {"content": "...", "language": "json"}
}`

const userPromptPrefix = "Generate a complete, real, production-ready React project for: "

// Result messages.
const (
	MessageGenerated = "Files generated successfully"
	MessageFallback  = "Generated a minimal project because the response was not in the expected format."
)

// Status tags a Result.
type Status string

const (
	StatusOK       Status = "ok"
	StatusFallback Status = "fallback"
	StatusError    Status = "error"
)

// Request is one generation request.
type Request struct {
	Prompt   string
	Template string
}

// Result is the outcome of a generation. Files is never empty and Message is
// always set; Err is non-nil only when Status is StatusError.
type Result struct {
	Files   protocol.FileSet
	Message string
	Status  Status
	Err     error
}

// FallbackResult is returned when the model reply is unusable.
func FallbackResult() Result {
	return Result{Files: FallbackFiles(), Message: MessageFallback, Status: StatusFallback}
}

// ErrorResult is returned when the model call itself fails.
func ErrorResult(err error) Result {
	return Result{
		Files:   ErrorFiles(err),
		Message: "Error: " + err.Error(),
		Status:  StatusError,
		Err:     err,
	}
}

// Invoker wraps a Backend with the fixed instruction and the extraction and
// fallback rules. Generate never fails.
type Invoker struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
}

// NewInvoker creates an invoker. A zero timeout leaves the backend client's
// own defaults in charge.
func NewInvoker(backend Backend, timeout time.Duration, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{backend: backend, timeout: timeout, logger: logger}
}

// Generate asks the backend for a project and reduces every outcome to a
// Result.
func (inv *Invoker) Generate(ctx context.Context, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error("generation panicked", "provider", inv.backend.Name(), "panic", r)
			res = ErrorResult(fmt.Errorf("generation panicked: %v", r))
		}
	}()

	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := inv.backend.Complete(ctx, SystemInstruction, UserMessage(req))
	if err != nil {
		inv.logger.Error("generation request failed", "provider", inv.backend.Name(), "err", err)
		return ErrorResult(err)
	}
	inv.logger.Debug("generation response received",
		"provider", inv.backend.Name(), "bytes", len(raw), "elapsed", time.Since(start))

	files, err := Extract(raw)
	if err != nil {
		inv.logger.Warn("using fallback project", "provider", inv.backend.Name(), "reason", outcome(err), "err", err)
		return FallbackResult()
	}

	inv.logger.Info("files generated", "provider", inv.backend.Name(), "files", files.Names())
	return Result{Files: files, Message: MessageGenerated, Status: StatusOK}
}

// UserMessage builds the user turn for req.
func UserMessage(req Request) string {
	msg := userPromptPrefix + req.Prompt
	if t, ok := LookupTemplate(req.Template); ok {
		msg = t.hint() + "\n" + msg
	}
	return msg
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrNotObject):
		return "not_object"
	case errors.Is(err, ErrMissingEntryPoint):
		return "missing_entry_point"
	default:
		return "unknown"
	}
}
