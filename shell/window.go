package shell

import (
	"errors"
	"sync"

	"github.com/pkg/browser"

	"github.com/stevecastle/vdr/stream"
)

var ErrWindowDestroyed = errors.New("window destroyed")

// Window is the handle the shell mutates. The front-end renders whatever
// state the backend pushes to it.
type Window interface {
	Show() error
	Hide() error
	Focus() error
	IsVisible() bool
	OpenDevTools() error
	Destroy()
}

// Broadcaster is the part of stream.Hub a window needs.
type Broadcaster interface {
	Broadcast(stream.Message)
	Active() int
}

// BrowserWindow is a Window backed by a browser tab on the bridge URL.
// Visibility changes are pushed over the event stream; Show opens a new tab
// when no front-end is connected.
type BrowserWindow struct {
	url  string
	hub  Broadcaster
	open func(string) error

	mu        sync.Mutex
	visible   bool
	destroyed bool
}

// NewBrowserWindow returns a hidden window for url.
func NewBrowserWindow(url string, hub Broadcaster) *BrowserWindow {
	return &BrowserWindow{url: url, hub: hub, open: browser.OpenURL}
}

type windowState struct {
	State string `json:"state"`
}

func (w *BrowserWindow) Show() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return ErrWindowDestroyed
	}
	w.visible = true
	if w.hub.Active() == 0 {
		return w.open(w.url)
	}
	w.hub.Broadcast(stream.JSONMessage(stream.TypeWindow, windowState{State: "show"}))
	return nil
}

func (w *BrowserWindow) Hide() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return ErrWindowDestroyed
	}
	w.visible = false
	w.hub.Broadcast(stream.JSONMessage(stream.TypeWindow, windowState{State: "hide"}))
	return nil
}

func (w *BrowserWindow) Focus() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return ErrWindowDestroyed
	}
	w.hub.Broadcast(stream.JSONMessage(stream.TypeWindow, windowState{State: "focus"}))
	return nil
}

func (w *BrowserWindow) IsVisible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible && !w.destroyed
}

func (w *BrowserWindow) OpenDevTools() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return ErrWindowDestroyed
	}
	w.hub.Broadcast(stream.JSONMessage(stream.TypeDevTools, map[string]bool{"open": true}))
	return nil
}

// Destroy tells every front-end to close. Later calls are no-ops.
func (w *BrowserWindow) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return
	}
	w.destroyed = true
	w.visible = false
	w.hub.Broadcast(stream.Message{Type: stream.TypeQuit, Msg: `{}`})
}
