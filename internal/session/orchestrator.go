package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gensite/internal/generator"
	"gensite/internal/history"
	"gensite/internal/protocol"
)

// Phase messages.
const (
	msgThinking  = "Analyzing your request..."
	msgWriting   = "Generating code..."
	msgAnalyzing = "Verifying generated files..."
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("orchestrator is shut down")

// Generator produces a project for a request. It must always return a
// result; failures are reported through Result.Status.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) generator.Result
}

// FileWriter persists generated files.
type FileWriter interface {
	CreateFile(name, content string) error
}

// Pacing sets the pauses between phases. They pace client-side rendering
// and are not tied to any work.
type Pacing struct {
	Thinking  time.Duration `toml:"thinking"`
	Stream    time.Duration `toml:"stream"`
	Analyzing time.Duration `toml:"analyzing"`
}

// DefaultPacing matches what the web client expects.
func DefaultPacing() Pacing {
	return Pacing{
		Thinking:  time.Second,
		Stream:    100 * time.Millisecond,
		Analyzing: 500 * time.Millisecond,
	}
}

// Orchestrator runs generation requests through the fixed phase sequence
// thinking → writing → stream* → analyzing → completed, or → error, and
// broadcasts each phase to the requesting session.
//
// Requests for one session run one at a time in submission order; requests
// for different sessions run in parallel.
type Orchestrator struct {
	registry *Registry
	gen      Generator
	history  history.Store
	files    FileWriter
	pacing   Pacing
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queues map[string]*queue
	closed bool
}

type queue struct {
	pending []generator.Request
}

// NewOrchestrator creates an orchestrator. hist may be nil.
func NewOrchestrator(registry *Registry, gen Generator, hist history.Store, pacing Pacing, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		registry: registry,
		gen:      gen,
		history:  hist,
		pacing:   pacing,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		queues:   make(map[string]*queue),
	}
}

// PersistTo makes completed generations write their files through w.
func (o *Orchestrator) PersistTo(w FileWriter) {
	o.files = w
}

// Submit queues req for sessionID and returns immediately.
func (o *Orchestrator) Submit(sessionID string, req generator.Request) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}

	q, running := o.queues[sessionID]
	if !running {
		q = &queue{}
		o.queues[sessionID] = q
	}
	q.pending = append(q.pending, req)

	if !running {
		o.wg.Add(1)
		go o.drain(sessionID, q)
	} else {
		o.logger.Info("generation queued", "session", sessionID, "pending", len(q.pending))
	}
	return nil
}

// drain runs queued requests of one session until none are left.
func (o *Orchestrator) drain(sessionID string, q *queue) {
	defer o.wg.Done()

	for {
		o.mu.Lock()
		if len(q.pending) == 0 {
			delete(o.queues, sessionID)
			o.mu.Unlock()
			return
		}
		req := q.pending[0]
		q.pending = q.pending[1:]
		o.mu.Unlock()

		o.Run(o.ctx, sessionID, req)
	}
}

// Run executes one generation synchronously. Any failure ends the sequence
// with a single error event.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, req generator.Request) {
	start := time.Now()
	o.logger.Info("generation started", "session", sessionID, "prompt_bytes", len(req.Prompt), "template", req.Template)

	if err := o.run(ctx, sessionID, req); err != nil {
		o.logger.Error("generation failed", "session", sessionID, "err", err)
		o.emitError(sessionID, err)
		return
	}
	o.logger.Info("generation completed", "session", sessionID, "elapsed", time.Since(start))
}

func (o *Orchestrator) run(ctx context.Context, sessionID string, req generator.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := o.emit(ctx, sessionID, protocol.TypeThinking, protocol.MessagePayload{Message: msgThinking}); err != nil {
		return err
	}
	if err := o.pause(ctx, o.pacing.Thinking); err != nil {
		return err
	}

	if err := o.emit(ctx, sessionID, protocol.TypeWriting, protocol.MessagePayload{Message: msgWriting}); err != nil {
		return err
	}

	res := o.gen.Generate(ctx, req)
	if res.Status == generator.StatusError {
		if res.Err != nil {
			return res.Err
		}
		return errors.New(res.Message)
	}

	// Eligibility is judged on raw content; manifests are sanitized after.
	var streamed []protocol.File
	for _, f := range res.Files.Files() {
		if !generator.Eligible(f) {
			o.logger.Debug("skipping file", "session", sessionID, "file", f.Name)
			continue
		}
		f = generator.SanitizeManifest(f)
		streamed = append(streamed, f)
		payload := protocol.FilesPayload{Files: protocol.NewFileSet(f)}
		if err := o.emit(ctx, sessionID, protocol.TypeStream, payload); err != nil {
			return err
		}
		if err := o.pause(ctx, o.pacing.Stream); err != nil {
			return err
		}
	}

	if err := o.emit(ctx, sessionID, protocol.TypeAnalyzing, protocol.MessagePayload{Message: msgAnalyzing}); err != nil {
		return err
	}
	if err := o.pause(ctx, o.pacing.Analyzing); err != nil {
		return err
	}

	completed := protocol.CompletedPayload{Files: generator.SanitizeManifests(res.Files), Message: res.Message}
	if err := o.emit(ctx, sessionID, protocol.TypeCompleted, completed); err != nil {
		return err
	}

	o.persist(sessionID, streamed)
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, sessionID, eventType string, data interface{}) error {
	event, err := protocol.NewEvent(eventType, data)
	if err != nil {
		return err
	}
	o.publish(ctx, sessionID, event)
	return nil
}

func (o *Orchestrator) emitError(sessionID string, cause error) {
	event, err := protocol.NewErrorEvent("Error: " + cause.Error())
	if err != nil {
		o.logger.Error("failed to build error event", "session", sessionID, "err", err)
		return
	}
	o.publish(context.Background(), sessionID, event)
}

// publish records event in the history and broadcasts it session-wide.
func (o *Orchestrator) publish(ctx context.Context, sessionID string, event *protocol.Event) {
	if o.history != nil {
		if err := o.history.Append(ctx, sessionID, event); err != nil {
			o.logger.Warn("failed to record event", "session", sessionID, "type", event.Type, "err", err)
		}
	}
	n := o.registry.Broadcast(sessionID, event)
	o.logger.Debug("event sent", "session", sessionID, "type", event.Type, "receivers", n)
}

func (o *Orchestrator) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) persist(sessionID string, files []protocol.File) {
	if o.files == nil {
		return
	}
	for _, f := range files {
		if err := o.files.CreateFile(f.Name, f.Content); err != nil {
			o.logger.Warn("failed to persist file", "session", sessionID, "file", f.Name, "err", err)
		}
	}
}

// Shutdown stops accepting requests and waits for queued ones to finish.
// If ctx expires first, in-flight generations are cancelled.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}
