package browser

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ProcessManager manages the Chrome browser process
type ProcessManager struct {
	opts      *LaunchOptions
	launcher  *launcher.Launcher
	mu        sync.RWMutex
	isRunning bool
}

// NewProcessManager creates a new process manager
func NewProcessManager(opts *LaunchOptions) *ProcessManager {
	return &ProcessManager{
		opts: opts,
	}
}

// SpawnChrome spawns a Chrome process with the configured options
func (pm *ProcessManager) SpawnChrome(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.isRunning {
		return nil
	}

	if err := pm.ensureUserDataDir(); err != nil {
		return &BrowserError{
			Code:    ErrCodeConfiguration,
			Message: fmt.Sprintf("Failed to create user data directory: %v", err),
		}
	}

	l := launcher.New().
		Headless(pm.opts.Headless).
		UserDataDir(pm.opts.UserDataDir)

	if pm.opts.CDPPort > 0 {
		l = l.RemoteDebuggingPort(pm.opts.CDPPort)
	}

	if pm.opts.NoSandbox {
		l = l.NoSandbox(true)
	}

	if pm.opts.ChromePath != "" {
		l = l.Bin(pm.opts.ChromePath)
	}

	url, err := l.Launch()
	if err != nil {
		return &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to launch Chrome: %v", err),
		}
	}

	pm.launcher = l
	pm.isRunning = true
	pm.opts.CDPUrl = url

	return nil
}

// ConnectCDP connects to the Chrome DevTools Protocol endpoint
func (pm *ProcessManager) ConnectCDP(ctx context.Context) (*rod.Browser, error) {
	pm.mu.RLock()
	cdpURL := pm.opts.CDPUrl
	pm.mu.RUnlock()

	if cdpURL == "" {
		return nil, &BrowserError{
			Code:    ErrCodeConfiguration,
			Message: "CDP URL not set",
		}
	}

	browser := rod.New().ControlURL(cdpURL)
	if err := browser.Connect(); err != nil {
		return nil, &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to connect to CDP: %v", err),
		}
	}

	return browser, nil
}

// AttachToExisting attaches to an already-running Chrome instance
func (pm *ProcessManager) AttachToExisting(ctx context.Context) (*rod.Browser, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.opts.CDPUrl == "" {
		pm.opts.CDPUrl = fmt.Sprintf("ws://localhost:%d", pm.opts.CDPPort)
	}

	if err := pm.waitForCDP(ctx); err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(pm.opts.CDPUrl)
	if err := browser.Connect(); err != nil {
		return nil, &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to attach to existing browser: %v", err),
		}
	}

	pm.isRunning = true
	return browser, nil
}

// waitForCDP waits for the CDP endpoint to become reachable
func (pm *ProcessManager) waitForCDP(ctx context.Context) error {
	port := pm.opts.CDPPort

	timeout := 10 * time.Second
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), time.Second)
		if err == nil {
			conn.Close()
			return nil
		}

		time.Sleep(100 * time.Millisecond)
	}

	return &BrowserError{
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("CDP endpoint not available after %v", timeout),
	}
}

// KillChrome terminates the Chrome process
func (pm *ProcessManager) KillChrome() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.isRunning {
		return nil
	}

	if pm.launcher != nil {
		pm.launcher.Kill()
		pm.launcher = nil
	}

	pm.isRunning = false
	return nil
}

// IsRunning checks if the Chrome process is running
func (pm *ProcessManager) IsRunning() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.isRunning
}

// CheckHealth verifies the CDP connection is healthy
func (pm *ProcessManager) CheckHealth(ctx context.Context) error {
	if !pm.IsRunning() {
		return &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: "Chrome process not running",
		}
	}

	port := pm.opts.CDPPort
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), 2*time.Second)
	if err != nil {
		pm.mu.Lock()
		pm.isRunning = false
		pm.mu.Unlock()
		return &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: "CDP endpoint not responding",
		}
	}
	conn.Close()

	return nil
}

// GetUserDataDir returns the user data directory path
func (pm *ProcessManager) GetUserDataDir() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.opts.UserDataDir
}

// ensureUserDataDir creates the user data directory if it doesn't exist
func (pm *ProcessManager) ensureUserDataDir() error {
	if pm.opts.UserDataDir == "" {
		tmpDir := os.TempDir()
		pm.opts.UserDataDir = filepath.Join(tmpDir, "webpilot-chrome")
	}

	return os.MkdirAll(pm.opts.UserDataDir, 0755)
}

// findAvailablePort finds an available port starting from the given port
func findAvailablePort(startPort int) (int, error) {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range %d-%d", startPort, startPort+100)
}

// EnsurePort assigns an available CDP port when one is requested explicitly.
// A zero port lets the launcher pick its own.
func EnsurePort(opts *LaunchOptions) error {
	if opts.CDPPort == 0 {
		return nil
	}

	if err := ValidateCDPPort(opts.CDPPort); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.CDPPort))
	if err == nil {
		ln.Close()
		return nil
	}

	port, err := findAvailablePort(opts.CDPPort + 1)
	if err != nil {
		return err
	}
	opts.CDPPort = port
	return nil
}

// ValidateCDPPort checks if a CDP port is valid
func ValidateCDPPort(port int) error {
	if port < 1024 || port > 65535 {
		return fmt.Errorf("CDP port must be between 1024 and 65535, got %d", port)
	}
	return nil
}

// IsChromeInstalled checks if Chrome is installed
func IsChromeInstalled() bool {
	_, err := launcher.NewBrowser().Get()
	return err == nil
}
