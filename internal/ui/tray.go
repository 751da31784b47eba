// Package ui runs the menu-bar tray that keeps the server discoverable
// once the browser tab is closed.
package ui

import (
	_ "embed"
	"log/slog"

	"github.com/getlantern/systray"
)

//go:embed icon.png
var iconBytes []byte

type Tray struct {
	url    string
	logger *slog.Logger

	onOpen func()
	onQuit func()
}

type TrayConfig struct {
	URL    string
	Logger *slog.Logger
	// OnOpen opens the UI in the browser.
	OnOpen func()
	// OnQuit stops the server. The tray exits right after.
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		url:    cfg.URL,
		logger: cfg.Logger,
		onOpen: cfg.OnOpen,
		onQuit: cfg.OnQuit,
	}
}

// Run blocks on the platform event loop and must be called from main.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// ServerLabel is the disabled first menu entry.
func ServerLabel(url string) string {
	return "Server: " + url
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTooltip("Dataset Cutter")

	serverItem := systray.AddMenuItem(ServerLabel(t.url), "Local server address")
	serverItem.Disable()

	systray.AddSeparator()

	openItem := systray.AddMenuItem("Open UI", "Open Dataset Cutter in the browser")
	quitItem := systray.AddMenuItem("Quit Server", "Stop the local server")

	go func() {
		for {
			select {
			case <-openItem.ClickedCh:
				if t.onOpen != nil {
					t.onOpen()
				}
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready", "url", t.url)
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// Quit ends the tray loop, which makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}
