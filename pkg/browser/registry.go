package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/harun/webpilot/internal/observability"
)

// Registry owns the Chrome process and the set of open sessions.
// Each session gets its own page; the browser process is shared.
type Registry struct {
	process  *ProcessManager
	security *SecurityValidator

	mu       sync.RWMutex
	browser  *rod.Browser
	sessions map[string]*Session
}

// NewRegistry creates a session registry
func NewRegistry(opts *LaunchOptions, security SecurityConfig) *Registry {
	return &Registry{
		process:  NewProcessManager(opts),
		security: NewSecurityValidator(security),
		sessions: make(map[string]*Session),
	}
}

// Start launches (or attaches to) Chrome and connects over CDP
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return nil
	}

	var browser *rod.Browser
	var err error

	if r.process.opts.AttachOnly {
		browser, err = r.process.AttachToExisting(ctx)
	} else {
		if err = r.process.SpawnChrome(ctx); err != nil {
			return err
		}
		browser, err = r.process.ConnectCDP(ctx)
	}
	if err != nil {
		return err
	}

	r.browser = browser
	log.Info().Bool("headless", r.process.opts.Headless).Msg("Browser started")
	return nil
}

// Open creates a new session, optionally navigating to a start URL
func (r *Registry) Open(ctx context.Context, startURL string) (*Session, error) {
	r.mu.Lock()
	browser := r.browser
	r.mu.Unlock()

	if browser == nil {
		return nil, &BrowserError{
			Code:    ErrCodeConfiguration,
			Message: "Browser not started",
		}
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to create page: %v", err),
		}
	}

	id, err := gonanoid.New(12)
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	session := NewSession(id, page, r.security)

	if startURL != "" {
		if err := session.Navigate(ctx, startURL); err != nil {
			_ = page.Close()
			return nil, err
		}
	}

	r.mu.Lock()
	r.sessions[id] = session
	count := len(r.sessions)
	r.mu.Unlock()

	observability.SetActiveSessions(count)
	log.Info().Str("session_id", id).Str("url", startURL).Msg("Session opened")

	return session, nil
}

// Get retrieves a session by ID
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, &BrowserError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("Session not found: %s", id),
		}
	}
	return session, nil
}

// List returns info for all open sessions
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, session := range r.sessions {
		infos = append(infos, session.Info())
	}
	return infos
}

// Close closes one session
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	session, exists := r.sessions[id]
	if exists {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !exists {
		return &BrowserError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("Session not found: %s", id),
		}
	}

	observability.SetActiveSessions(count)
	log.Info().Str("session_id", id).Msg("Session closed")

	return session.Close()
}

// Shutdown closes all sessions and terminates Chrome
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	browser := r.browser
	r.browser = nil
	r.mu.Unlock()

	for _, session := range sessions {
		_ = session.Close()
	}
	observability.SetActiveSessions(0)

	if browser != nil {
		_ = browser.Close()
	}

	return r.process.KillChrome()
}

// CheckHealth verifies the underlying browser process is responsive
func (r *Registry) CheckHealth(ctx context.Context) error {
	return r.process.CheckHealth(ctx)
}
