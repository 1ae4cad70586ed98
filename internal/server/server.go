// Package server exposes the compiler and VM over a WebSocket connection.
//
// Each message on /ws is a JSON Request; each reply is a Response with the
// same ID. Requests on one connection are handled in order, and every run
// gets its own VM.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	terbium "github.com/Cryptex-github/Terbium"
	"github.com/Cryptex-github/Terbium/internal/vm"
)

// Request ops.
const (
	OpCheck   = "check"
	OpCompile = "compile"
	OpRun     = "run"
)

// MaxOutput caps how much print output one run may return.
const MaxOutput = 1 << 20

// MaxRequest caps the size of one incoming message. The connection is
// closed when a client sends more.
const MaxRequest = 1 << 20

// DefaultMaxSteps is the instruction budget of a run when
// Options.MaxSteps is zero.
const DefaultMaxSteps = 100_000_000

type Request struct {
	ID     string `json:"id"`
	Op     string `json:"op"`
	Name   string `json:"name,omitempty"`
	Source string `json:"source"`
}

type Response struct {
	ID          string               `json:"id"`
	Session     string               `json:"session"`
	OK          bool                 `json:"ok"`
	Diagnostics []terbium.Diagnostic `json:"diagnostics"`
	Result      string               `json:"result,omitempty"`
	Type        string               `json:"type,omitempty"`
	Output      string               `json:"output,omitempty"`
	Trap        *Trap                `json:"trap,omitempty"`
	Module      *ModuleInfo          `json:"module,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// Trap is the wire form of a runtime error.
type Trap struct {
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Line    int             `json:"line"`
	Column  int             `json:"column"`
	Stack   []vm.StackFrame `json:"stack"`
}

// ModuleInfo summarizes a compiled module.
type ModuleInfo struct {
	ID           string `json:"id"`
	Functions    int    `json:"functions"`
	Instructions int    `json:"instructions"`
	Bytes        int    `json:"bytes"`
}

type Options struct {
	MaxFrames int
	MaxDepth  int
	MaxSteps  int64
	Logger    *slog.Logger
}

// session is one connected client.
type session struct {
	id      string
	conn    *websocket.Conn
	started time.Time
	mu      sync.Mutex
}

type Server struct {
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &Server{
		opts: opts,
		log:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		sessions: make(map[string]*session),
	}
}

// Handler routes /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "ok",
			"version":  terbium.Version,
			"sessions": len(s.Sessions()),
		})
	})
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeAll()
	return srv.Shutdown(shutdownCtx)
}

// Sessions returns the ids of connected clients, sorted.
func (s *Server) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(MaxRequest)
	sess := &session{id: uuid.NewString(), conn: conn, started: time.Now()}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.log.Debug("session opened", "session", sess.id, "remote", r.RemoteAddr)

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		conn.Close()
		s.log.Debug("session closed", "session", sess.id, "duration", time.Since(sess.started))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				s.log.Warn("request too large", "session", sess.id, "limit", MaxRequest)
			}
			return
		}
		var req Request
		var resp Response
		if err := json.Unmarshal(data, &req); err != nil {
			resp = Response{Error: "malformed request: " + err.Error()}
		} else {
			resp = s.Process(req)
		}
		resp.Session = sess.id
		sess.mu.Lock()
		err = conn.WriteJSON(resp)
		sess.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.mu.Lock()
		sess.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		sess.mu.Unlock()
		sess.conn.Close()
	}
}

// Process handles one request.
func (s *Server) Process(req Request) Response {
	resp := Response{ID: req.ID, Diagnostics: []terbium.Diagnostic{}}
	name := req.Name
	if name == "" {
		name = "<ws>"
	}
	opts := s.options()

	switch req.Op {
	case OpCheck:
		_, diags := terbium.Parse(name, req.Source, opts...)
		resp.Diagnostics = append(resp.Diagnostics, diags...)
		resp.OK = !diags.HasErrors()

	case OpCompile:
		m, diags, err := terbium.Compile(name, req.Source, opts...)
		resp.Diagnostics = append(resp.Diagnostics, diags...)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		data, err := terbium.Encode(m)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.OK = true
		resp.Module = &ModuleInfo{
			ID:           m.ID.String(),
			Functions:    len(m.Functions),
			Instructions: len(m.Code),
			Bytes:        len(data),
		}

	case OpRun:
		out := &limitedBuffer{limit: MaxOutput}
		v, diags, err := terbium.Eval(name, req.Source, append(opts, terbium.WithStdout(out))...)
		resp.Diagnostics = append(resp.Diagnostics, diags...)
		resp.Output = out.String()
		var rerr *terbium.RuntimeError
		switch {
		case errors.As(err, &rerr):
			resp.Trap = &Trap{
				Kind:    rerr.Kind.String(),
				Message: rerr.Message,
				Line:    rerr.Line,
				Column:  rerr.Column,
				Stack:   rerr.Stack,
			}
			resp.Error = rerr.Error()
		case err != nil:
			resp.Error = err.Error()
		default:
			resp.OK = true
			resp.Result = v.String()
			resp.Type = vm.ValueType(v)
		}

	default:
		resp.Error = fmt.Sprintf("unknown op %q", req.Op)
	}
	return resp
}

func (s *Server) options() []terbium.Option {
	opts := []terbium.Option{terbium.WithLogger(s.log), terbium.WithMaxSteps(s.opts.MaxSteps)}
	if s.opts.MaxFrames > 0 {
		opts = append(opts, terbium.WithMaxFrames(s.opts.MaxFrames))
	}
	if s.opts.MaxDepth > 0 {
		opts = append(opts, terbium.WithMaxDepth(s.opts.MaxDepth))
	}
	return opts
}

// limitedBuffer drops writes past limit and marks the output truncated.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); len(p) > room {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
