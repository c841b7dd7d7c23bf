package shell

import (
	_ "embed"
	"runtime"
	"sync"

	"github.com/getlantern/systray"
)

//go:embed assets/icon.png
var iconPNG []byte

//go:embed assets/icon.ico
var iconICO []byte

// Tooltip shown on the tray icon.
const Tooltip = "VDR Desktop App"

// MenuItem is one tray menu entry. ID is the event emitted on click; an
// empty ID is a separator.
type MenuItem struct {
	ID      Event
	Title   string
	Tooltip string
}

// DefaultMenu is Show, Hide, separator, Quit.
func DefaultMenu() []MenuItem {
	return []MenuItem{
		{ID: EventShow, Title: "Show", Tooltip: "Show the window"},
		{ID: EventHide, Title: "Hide", Tooltip: "Hide the window"},
		{},
		{ID: EventQuit, Title: "Quit", Tooltip: "Quit VDR Desktop App"},
	}
}

// Tray is the host runtime: it owns the OS event loop and forwards menu
// clicks to the dispatcher.
type Tray struct {
	d        *Dispatcher
	menu     []MenuItem
	quitOnce sync.Once
}

func NewTray(d *Dispatcher, menu []MenuItem) *Tray {
	if menu == nil {
		menu = DefaultMenu()
	}
	return &Tray{d: d, menu: menu}
}

// Run blocks until Quit. onExit runs after the loop stops.
func (t *Tray) Run(onExit func()) {
	systray.Run(t.onReady, onExit)
}

// Quit stops the tray loop. Safe to call more than once.
func (t *Tray) Quit() {
	t.quitOnce.Do(systray.Quit)
}

func icon() []byte {
	if runtime.GOOS == "windows" {
		return iconICO
	}
	return iconPNG
}

func (t *Tray) onReady() {
	systray.SetIcon(icon())
	systray.SetTitle("VDR")
	systray.SetTooltip(Tooltip)

	log := t.d.log
	for _, item := range t.menu {
		if item.ID == "" {
			systray.AddSeparator()
			continue
		}
		mi := systray.AddMenuItem(item.Title, item.Tooltip)
		go func(id Event, clicked <-chan struct{}) {
			for range clicked {
				log.Debug().Str("item", string(id)).Msg("tray menu click")
				t.d.Emit(id)
			}
		}(item.ID, mi.ClickedCh)
	}

	go t.d.Emit(EventReady)
}
