package shell

import (
	"encoding/json"
	"net/http"
)

// CloseHandler serves POST /window/close. The front-end calls it instead of
// closing the tab so the app keeps running in the tray.
func CloseHandler(d *Dispatcher) http.HandlerFunc {
	return eventHandler(d, EventCloseRequested)
}

// ToggleHandler serves POST /window/toggle, the equivalent of clicking the
// tray icon on platforms where the icon click only opens the menu.
func ToggleHandler(d *Dispatcher) http.HandlerFunc {
	return eventHandler(d, EventTrayClick)
}

// StateHandler serves GET /window/state.
func StateHandler(w Window) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(rw, "Use GET", http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]bool{"visible": w.IsVisible()})
	}
}

func eventHandler(d *Dispatcher, e Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Use POST", http.StatusMethodNotAllowed)
			return
		}
		d.Emit(e)
		w.WriteHeader(http.StatusNoContent)
	}
}
