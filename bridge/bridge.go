// Package bridge is the boundary between the web front-end and the backend
// commands. Every invocation is queued as a job and answered when a runner
// finishes it.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stevecastle/vdr/commands"
	"github.com/stevecastle/vdr/jobqueue"
	"github.com/stevecastle/vdr/logging"
)

// MaxRequestBody caps the JSON arguments of one invocation.
const MaxRequestBody = 1 << 20

var ErrUnavailable = errors.New("bridge unavailable")

// Bridge dispatches front-end calls onto the job queue.
type Bridge struct {
	queue    *jobqueue.Queue
	registry *commands.Registry
	log      zerolog.Logger
}

// New returns a Bridge over queue; registry is consulted for command names.
func New(queue *jobqueue.Queue, registry *commands.Registry) *Bridge {
	return &Bridge{
		queue:    queue,
		registry: registry,
		log:      logging.Component("bridge"),
	}
}

// Call runs one command and waits for its result. If ctx ends first the
// caller gets ctx.Err() while the job still runs to completion.
func (b *Bridge) Call(ctx context.Context, name string, args commands.Args) (commands.Result, error) {
	if _, ok := b.registry.Lookup(name); !ok {
		return commands.Result{}, fmt.Errorf("%w: %s", commands.ErrUnknownCommand, name)
	}
	ticket, err := b.queue.AddJob(name, args)
	if err != nil {
		return commands.Result{}, errors.Join(ErrUnavailable, err)
	}
	job, err := ticket.Wait(ctx)
	if err != nil {
		return commands.Result{}, err
	}
	if job.State == jobqueue.StateError {
		return commands.Result{}, job.Err
	}
	return job.Result, nil
}

// request accepts both file_path and the camelCase filePath some front-end
// bindings send.
type request struct {
	FilePath  string `json:"file_path"`
	FilePath2 string `json:"filePath"`
}

func (r request) args() commands.Args {
	if r.FilePath != "" {
		return commands.Args{FilePath: r.FilePath}
	}
	return commands.Args{FilePath: r.FilePath2}
}

type textResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type listResponse struct {
	OK    bool                 `json:"ok"`
	Files []commands.FileEntry `json:"files"`
}

// StatusFor maps a command error to an HTTP status.
func StatusFor(err error) int {
	var fsErr *commands.FSError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &fsErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, commands.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, commands.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable), errors.Is(err, jobqueue.ErrQueueShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorText is what the front-end sees. Filesystem failures carry the
// underlying error's text only.
func errorText(err error) string {
	var fsErr *commands.FSError
	if errors.As(err, &fsErr) {
		return fsErr.Error()
	}
	return err.Error()
}

// InvokeHandler serves POST /invoke/{command}.
func (b *Bridge) InvokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Use POST", http.StatusMethodNotAllowed)
			return
		}
		name := r.PathValue("command")

		var req request
		body := http.MaxBytesReader(w, r.Body, MaxRequestBody)
		defer body.Close()
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, textResponse{Error: "bad json: " + err.Error()})
			return
		}

		res, err := b.Call(r.Context(), name, req.args())
		if err != nil {
			status := StatusFor(err)
			if status >= http.StatusInternalServerError {
				b.log.Error().Err(err).Str("command", name).Msg("invoke failed")
			}
			writeJSON(w, status, textResponse{Error: errorText(err)})
			return
		}

		if res.Binary {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(res.Data); err != nil {
				b.log.Debug().Err(err).Str("command", name).Msg("client went away mid-response")
			}
			return
		}
		if res.List {
			writeJSON(w, http.StatusOK, listResponse{OK: true, Files: res.Files})
			return
		}
		writeJSON(w, http.StatusOK, textResponse{OK: true, Message: res.Text})
	}
}

// CommandsHandler serves GET /commands.
func (b *Bridge) CommandsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Use GET", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"commands": b.registry.Names()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
