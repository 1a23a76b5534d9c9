package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/logging"
	"github.com/stancld/rossum-agents-sub001/memory"
	"github.com/stancld/rossum-agents-sub001/runner"
	"github.com/stancld/rossum-agents-sub001/session"
	"github.com/stancld/rossum-agents-sub001/stream"
	"github.com/stancld/rossum-agents-sub001/task"
)

// Options configures a Server.
type Options struct {
	Logger logging.Logger
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer          prometheus.Gatherer
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server is the HTTP front of a runner.Runner.
type Server struct {
	runner *runner.Runner
	opts   Options
	mux    *http.ServeMux
}

// New creates a server for r.
func New(r *runner.Runner, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		Gatherer:          prometheus.DefaultGatherer,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{runner: r, opts: opts, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /api/v1/conversations/{id}/messages", s.handleMessage)
	s.mux.HandleFunc("POST /api/v1/conversations/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /api/v1/conversations/{id}", s.handleGet)
	s.mux.HandleFunc("DELETE /api/v1/conversations/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("server.start", "addr", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.opts.Logger.Warn("server.shutdown.failed", "error", err.Error())
		return err
	}

	s.opts.Logger.Info("server.stop")

	return nil
}

// MessageRequest is the body of POST .../messages.
type MessageRequest struct {
	Prompt   string            `json:"prompt"`
	Images   []core.ImagePart  `json:"images,omitempty"`
	ReadOnly bool              `json:"read_only,omitempty"`
	BaseURL  string            `json:"base_url,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

type donePayload struct {
	RunID   string `json:"run_id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: "invalid request body: " + err.Error()})
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Error: "prompt is required"})
		return
	}

	if _, ok := w.(http.Flusher); !ok {
		writeJSON(w, http.StatusInternalServerError, errorPayload{Error: stream.ErrStreamingUnsupported.Error()})
		return
	}

	reqCtx := r.Context()
	side := newSideStream()

	run, err := s.runner.StartRun(context.WithoutCancel(reqCtx), id, req.Prompt, func(o *runner.RunOptions) {
		o.Images = req.Images
		o.Labels = req.Labels
		if req.ReadOnly {
			o.Mode = core.ReadOnly
		}
		if creds := credentialsFrom(r, req); creds != nil {
			o.Credentials = creds
		}
		o.Liveness = runner.LivenessFunc(func() bool { return reqCtx.Err() == nil })
		o.Callbacks = s.sideEvents(side)
	})
	if err != nil {
		side.attach(nil)
		s.opts.Logger.Warn("server.run.start_failed", "conversation_id", id, "error", err.Error())

		status := http.StatusInternalServerError
		if errors.Is(err, runner.ErrRunActive) {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorPayload{Error: err.Error()})
		return
	}

	// Headers go out only once the run owns the conversation.
	sse, err := stream.NewWriter(w)
	side.attach(sse)
	if err != nil {
		s.opts.Logger.Error("server.stream.open_failed", "conversation_id", id, "error", err.Error())
		s.runner.CancelRun(id)
		for range run.Events() {
		}
		_ = run.Wait()
		return
	}

	broken := false
	for ev := range run.Events() {
		if broken {
			continue
		}
		if err := sse.Send(ev); err != nil {
			s.opts.Logger.Debug("server.stream.write_failed", "conversation_id", id, "error", err.Error())
			broken = true
		}
	}

	runErr := run.Wait()

	if broken || reqCtx.Err() != nil {
		return
	}

	done := donePayload{RunID: run.ID, Outcome: runner.Outcome(runErr)}
	if runErr != nil && done.Outcome != runner.OutcomeCancelled {
		done.Error = runErr.Error()
	}

	_ = sse.SendEvent(stream.EventDone, done)
}

// sideStream holds side events back until the SSE headers are written.
type sideStream struct {
	ready chan struct{}
	sse   *stream.Writer
}

func newSideStream() *sideStream {
	return &sideStream{ready: make(chan struct{})}
}

// attach must be called exactly once; a nil writer drops every event.
func (p *sideStream) attach(sse *stream.Writer) {
	p.sse = sse
	close(p.ready)
}

func (p *sideStream) SendEvent(name string, data any) error {
	<-p.ready
	if p.sse == nil {
		return stream.ErrStreamingUnsupported
	}
	return p.sse.SendEvent(name, data)
}

// sideEvents forwards the run callbacks to the SSE stream.
func (s *Server) sideEvents(sse *sideStream) core.Callbacks {
	send := func(name string, data any) {
		if err := sse.SendEvent(name, data); err != nil {
			s.opts.Logger.Debug("server.stream.side_event_failed", "event", name, "error", err.Error())
		}
	}

	return core.Callbacks{
		OnProgress: func(p core.SubAgentProgress) { send(stream.EventSubAgentProgress, p) },
		OnText:     func(t core.SubAgentText) { send(stream.EventSubAgentText, t) },
		OnTokens:   func(u core.TokenUsage) { send(stream.EventTokenUsage, u) },
		OnTaskSnapshot: func(tasks []task.Task) {
			send(stream.EventTaskSnapshot, map[string]any{"tasks": tasks})
		},
		OnFileCreated: func(f core.FileInfo) { send(stream.EventFileCreated, f) },
	}
}

func credentialsFrom(r *http.Request, req MessageRequest) *core.Credentials {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))

	if token == "" && req.BaseURL == "" {
		return nil
	}

	return &core.Credentials{APIToken: token, BaseURL: req.BaseURL}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := s.runner.CancelRun(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

type conversationPayload struct {
	ID       string              `json:"id"`
	Metadata session.Metadata    `json:"metadata"`
	Memory   *memory.AgentMemory `json:"memory"`
	Active   bool                `json:"active"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	mem, md, err := s.runner.Store().Load(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorPayload{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorPayload{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, conversationPayload{ID: id, Metadata: md, Memory: mem, Active: s.runner.Active(id)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if s.runner.Active(id) {
		writeJSON(w, http.StatusConflict, errorPayload{Error: runner.ErrRunActive.Error()})
		return
	}

	if err := s.runner.Store().Delete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorPayload{Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
