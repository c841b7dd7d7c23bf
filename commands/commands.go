// Package commands implements the file operations the front-end invokes
// through the command bridge. Each operation is a single filesystem call.
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/stevecastle/vdr/history"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing argument: file_path")
)

// FSError carries a filesystem failure. Not-found, permission and I/O errors
// are not distinguished; the text is all the front-end gets.
type FSError struct {
	Err error
}

func (e *FSError) Error() string { return e.Err.Error() }
func (e *FSError) Unwrap() error { return e.Err }

func fsErr(err error) error {
	if err == nil {
		return nil
	}
	return &FSError{Err: err}
}

// Service holds the state the handlers share.
type Service struct {
	uploads *history.Tracker
}

// NewService returns a Service recording uploads into tracker.
func NewService(tracker *history.Tracker) *Service {
	if tracker == nil {
		tracker = history.New()
	}
	return &Service{uploads: tracker}
}

var errIsDir = errors.New("is a directory")

// FileEntry is one row of a directory listing.
type FileEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// Upload reads the file and, only if that succeeds, records its path.
// Nothing is transferred anywhere.
func (s *Service) Upload(path string) (string, error) {
	if _, err := os.ReadFile(path); err != nil {
		return "", fsErr(err)
	}
	s.uploads.Record(path)
	return fmt.Sprintf("File uploaded successfully: %s", path), nil
}

// Download returns the file's bytes.
func (s *Service) Download(path string) ([]byte, error) {
	return readBytes(path)
}

// Read returns the file's bytes. It behaves exactly like Download.
func (s *Service) Read(path string) ([]byte, error) {
	return readBytes(path)
}

// Delete removes the file at path. Directories are refused, even empty ones.
func (s *Service) Delete(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", fsErr(err)
	}
	if info.IsDir() {
		return "", fsErr(&os.PathError{Op: "remove", Path: path, Err: errIsDir})
	}
	if err := os.Remove(path); err != nil {
		return "", fsErr(err)
	}
	return "File deleted successfully", nil
}

// List returns the entries of the directory at path, sorted by name.
func (s *Service) List(path string) ([]FileEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fsErr(err)
	}
	files := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		fe := FileEntry{Name: e.Name(), IsDir: e.IsDir()}
		// the entry may vanish between ReadDir and Info
		if info, err := e.Info(); err == nil && !e.IsDir() {
			fe.Size = info.Size()
		}
		files = append(files, fe)
	}
	return files, nil
}

func readBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fsErr(err)
	}
	return data, nil
}
