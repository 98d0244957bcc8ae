package ui

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

//go:embed icon.png
var iconBytes []byte

const defaultPollInterval = 5 * time.Second

// VideoCounter reports how many videos are currently recorded.
type VideoCounter interface {
	Count(ctx context.Context) (int, error)
}

type Tray struct {
	videos       VideoCounter
	uploadURL    string
	pollInterval time.Duration
	logger       *slog.Logger
	openURL      func(url string) error

	countItem *systray.MenuItem

	mu   sync.Mutex
	stop chan struct{}

	onQuit func()
}

type TrayConfig struct {
	Videos       VideoCounter
	UploadURL    string
	PollInterval time.Duration
	Logger       *slog.Logger
	OnQuit       func()
}

func NewTray(cfg TrayConfig) *Tray {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Tray{
		videos:       cfg.Videos,
		uploadURL:    cfg.UploadURL,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
		openURL:      openBrowser,
		stop:         make(chan struct{}),
		onQuit:       cfg.OnQuit,
	}
}

// Run blocks until the tray exits.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Facetally")
	systray.SetTooltip("Facetally emotion tally")

	t.countItem = systray.AddMenuItem(countTitle(0), "Videos uploaded this session")
	t.countItem.Disable()

	systray.AddSeparator()

	openItem := systray.AddMenuItem("Open upload page", t.uploadURL)

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Facetally")

	go t.pollCount()

	go func() {
		for {
			select {
			case <-openItem.ClickedCh:
				t.handleOpen()
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

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	t.logger.Info("system tray exiting")
}

func (t *Tray) pollCount() {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		t.refreshCount()
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
	}
}

func (t *Tray) refreshCount() {
	if t.videos == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.pollInterval)
	defer cancel()

	count, err := t.videos.Count(ctx)
	if err != nil {
		t.logger.Warn("failed to count videos", "error", err)
		return
	}
	t.UpdateVideoCount(count)
}

func (t *Tray) handleOpen() {
	if err := t.openURL(t.uploadURL); err != nil {
		t.logger.Error("failed to open upload page", "url", t.uploadURL, "error", err)
	}
}

func (t *Tray) UpdateVideoCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.countItem != nil {
		t.countItem.SetTitle(countTitle(count))
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

func countTitle(n int) string {
	if n == 1 {
		return "1 video"
	}
	return fmt.Sprintf("%d videos", n)
}

func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}

func openBrowser(url string) error {
	name, args := browserCommand(runtime.GOOS, url)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	go cmd.Wait()
	return nil
}
