package commands

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Bridge names the front-end uses.
const (
	UploadFile   = "upload_file"
	DownloadFile = "download_file"
	DeleteFile   = "delete_file"
	ReadFile     = "read_file"
	ListFiles    = "list_files"
)

// Args are the decoded arguments of a bridge invocation.
type Args struct {
	FilePath string `json:"file_path"`
}

// Result is text, raw bytes or a directory listing.
type Result struct {
	Text   string
	Data   []byte
	Binary bool
	Files  []FileEntry
	List   bool
}

// TextResult wraps a confirmation message.
func TextResult(s string) Result { return Result{Text: s} }

// BytesResult wraps file content.
func BytesResult(b []byte) Result { return Result{Data: b, Binary: true} }

// ListResult wraps a directory listing.
func ListResult(files []FileEntry) Result {
	if files == nil {
		files = []FileEntry{}
	}
	return Result{Files: files, List: true}
}

// Handler runs one command. ctx is accepted for symmetry with the bridge;
// filesystem calls are not cancelled.
type Handler func(ctx context.Context, args Args) (Result, error)

// Command is a named handler.
type Command struct {
	Name string
	Fn   Handler
}

// Registry maps bridge names to handlers.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds or replaces a command.
func (r *Registry) Register(name string, fn Handler) {
	r.mu.Lock()
	r.commands[name] = Command{Name: name, Fn: fn}
	r.mu.Unlock()
}

// Lookup finds a command by name.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// Names returns registered names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for n := range r.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named command.
func (r *Registry) Invoke(ctx context.Context, name string, args Args) (Result, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return c.Fn(ctx, args)
}

// Register binds the file commands of s into r.
func (s *Service) Register(r *Registry) {
	r.Register(UploadFile, func(_ context.Context, a Args) (Result, error) {
		if a.FilePath == "" {
			return Result{}, ErrMissingArgument
		}
		msg, err := s.Upload(a.FilePath)
		return TextResult(msg), err
	})
	r.Register(DownloadFile, func(_ context.Context, a Args) (Result, error) {
		if a.FilePath == "" {
			return Result{}, ErrMissingArgument
		}
		data, err := s.Download(a.FilePath)
		return BytesResult(data), err
	})
	r.Register(DeleteFile, func(_ context.Context, a Args) (Result, error) {
		if a.FilePath == "" {
			return Result{}, ErrMissingArgument
		}
		msg, err := s.Delete(a.FilePath)
		return TextResult(msg), err
	})
	r.Register(ReadFile, func(_ context.Context, a Args) (Result, error) {
		if a.FilePath == "" {
			return Result{}, ErrMissingArgument
		}
		data, err := s.Read(a.FilePath)
		return BytesResult(data), err
	})
	r.Register(ListFiles, func(_ context.Context, a Args) (Result, error) {
		if a.FilePath == "" {
			return Result{}, ErrMissingArgument
		}
		files, err := s.List(a.FilePath)
		return ListResult(files), err
	})
}
