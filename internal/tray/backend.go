package tray

import "github.com/getlantern/systray"

type item interface {
	Clicked() <-chan struct{}
	SetTitle(string)
}

type backend interface {
	Run(onReady, onExit func())
	Quit()
	SetIcon([]byte)
	SetTitle(string)
	SetTooltip(string)
	AddItem(title, tooltip string, disabled bool) item
}

type systrayBackend struct{}

func (systrayBackend) Run(onReady, onExit func()) { systray.Run(onReady, onExit) }
func (systrayBackend) Quit()                      { systray.Quit() }
func (systrayBackend) SetIcon(b []byte)           { systray.SetIcon(b) }
func (systrayBackend) SetTitle(s string)          { systray.SetTitle(s) }
func (systrayBackend) SetTooltip(s string)        { systray.SetTooltip(s) }

func (systrayBackend) AddItem(title, tooltip string, disabled bool) item {
	mi := systray.AddMenuItem(title, tooltip)
	if disabled {
		mi.Disable()
	}
	return menuItem{mi}
}

type menuItem struct{ mi *systray.MenuItem }

func (m menuItem) Clicked() <-chan struct{} { return m.mi.ClickedCh }
func (m menuItem) SetTitle(s string)        { m.mi.SetTitle(s) }
