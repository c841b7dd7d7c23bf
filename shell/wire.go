package shell

// Host is the runtime that owns the event loop.
type Host interface {
	Quit()
}

// Wire registers the default lifecycle handlers:
//
//	show            show and focus the window
//	hide            hide the window
//	tray-click      toggle visibility
//	close-requested hide instead of closing (close-to-tray)
//	quit            destroy the window, then stop the host
//	ready           open devtools when devtools is true
func Wire(d *Dispatcher, w Window, host Host, devtools bool) {
	log := d.log
	check := func(action string, err error) {
		if err != nil {
			log.Warn().Err(err).Str("action", action).Msg("window action failed")
		}
	}
	show := func() {
		check("show", w.Show())
		check("focus", w.Focus())
	}

	d.On(EventShow, show)
	d.On(EventHide, func() { check("hide", w.Hide()) })
	d.On(EventTrayClick, func() {
		if w.IsVisible() {
			check("hide", w.Hide())
			return
		}
		show()
	})
	d.On(EventCloseRequested, func() { check("hide", w.Hide()) })
	d.On(EventQuit, func() {
		w.Destroy()
		host.Quit()
	})
	if devtools {
		d.On(EventReady, func() { check("devtools", w.OpenDevTools()) })
	}
}
