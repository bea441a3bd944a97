package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

const (
	// refAttribute marks elements annotated by a snapshot
	refAttribute = "data-webpilot-ref"

	// elementTimeout bounds how long target resolution may take
	elementTimeout = 5 * time.Second
)

// Session wraps one browser page and exposes the action vocabulary the
// instruction loop dispatches against. Reference tokens handed out by
// Snapshot stay valid until the next Snapshot replaces the element set.
type Session struct {
	ID       string
	page     *rod.Page
	security *SecurityValidator

	mu        sync.Mutex
	validRefs map[string]bool

	stateMu sync.Mutex
	state   *PageState
}

// NewSession creates a session on a fresh page
func NewSession(id string, page *rod.Page, security *SecurityValidator) *Session {
	s := &Session{
		ID:        id,
		page:      page,
		security:  security,
		validRefs: make(map[string]bool),
		state: &PageState{
			SessionID:       id,
			ConsoleMessages: make([]ConsoleMessage, 0),
			Errors:          make([]PageError, 0),
		},
	}
	s.initializeObservers()
	return s
}

// Navigate navigates the session's page to a URL
func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.security != nil {
		if err := s.security.ValidateURL(url); err != nil {
			return err
		}
	}

	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return &BrowserError{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("Failed to navigate to %s: %v", url, err),
		}
	}
	if err := page.WaitLoad(); err != nil {
		return &BrowserError{
			Code:    ErrCodeTimeout,
			Message: fmt.Sprintf("Page load timeout: %v", err),
		}
	}
	return nil
}

// Snapshot annotates the current element set with reference tokens and
// returns the page as a text tree. Interactive-only is the default;
// passing interactive=false includes the page's readable text as well.
// Tokens from earlier snapshots are invalidated.
func (s *Session) Snapshot(ctx context.Context, interactive bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := s.page.Context(ctx)

	result, err := page.Eval(snapshotScript, interactive)
	if err != nil {
		return "", &BrowserError{
			Code:    ErrCodeInteraction,
			Message: fmt.Sprintf("Failed to capture snapshot: %v", err),
		}
	}

	var out snapshotResult
	if err := result.Value.Unmarshal(&out); err != nil {
		return "", &BrowserError{
			Code:    ErrCodeInteraction,
			Message: fmt.Sprintf("Failed to decode snapshot: %v", err),
		}
	}

	// The new element set replaces the old one
	s.validRefs = make(map[string]bool, len(out.Refs))
	for _, ref := range out.Refs {
		s.validRefs[ref] = true
	}

	var tree strings.Builder
	if info, ierr := page.Info(); ierr == nil {
		fmt.Fprintf(&tree, "URL: %s\nTitle: %s\n\n", info.URL, info.Title)
	}

	if len(out.Lines) > 0 {
		tree.WriteString("Interactive Elements:\n")
		tree.WriteString(strings.Join(out.Lines, "\n"))
	} else {
		tree.WriteString("No interactive elements found")
	}

	if !interactive && out.Content != "" {
		tree.WriteString("\n\n---\n\nContent:\n")
		tree.WriteString(out.Content)
	}

	return tree.String(), nil
}

// Resolve turns a target token into a live element. The token is either
// a reference assigned by a prior Snapshot (sigil '@' plus an integer)
// or a raw CSS selector.
func (s *Session) Resolve(ctx context.Context, target string) (*rod.Element, error) {
	if target == "" {
		return nil, &BrowserError{
			Code:    ErrCodeValidation,
			Message: "Target is required",
		}
	}

	if strings.HasPrefix(target, "@") {
		s.mu.Lock()
		known := s.validRefs[target]
		s.mu.Unlock()

		if !known {
			return nil, &BrowserError{
				Code:    ErrCodeStaleReference,
				Message: fmt.Sprintf("Unknown or stale reference %s, take a new snapshot", target),
			}
		}

		page := s.page.Context(ctx).Timeout(elementTimeout)
		elem, err := page.Element(fmt.Sprintf("[%s=%q]", refAttribute, target))
		if err != nil {
			return nil, &BrowserError{
				Code:    ErrCodeElementNotFound,
				Message: fmt.Sprintf("Element %s no longer present, take a new snapshot", target),
			}
		}
		return elem, nil
	}

	if !IsValidSelector(target) {
		return nil, &BrowserError{
			Code:    ErrCodeValidation,
			Message: fmt.Sprintf("Invalid selector: %s", target),
		}
	}

	page := s.page.Context(ctx).Timeout(elementTimeout)
	elem, err := page.Element(target)
	if err != nil {
		return nil, &BrowserError{
			Code:    ErrCodeElementNotFound,
			Message: fmt.Sprintf("Element not found: %s", target),
		}
	}
	return elem, nil
}

// Click resolves a target and clicks it
func (s *Session) Click(ctx context.Context, target string) error {
	elem, err := s.Resolve(ctx, target)
	if err != nil {
		return err
	}

	// Best effort, some elements are clickable while offscreen
	_ = elem.ScrollIntoView()

	if err := elem.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return &BrowserError{
			Code:    ErrCodeInteraction,
			Message: fmt.Sprintf("Failed to click %s: %v", target, err),
		}
	}
	return nil
}

// Fill clears a field and sets its value
func (s *Session) Fill(ctx context.Context, target, value string) error {
	elem, err := s.Resolve(ctx, target)
	if err != nil {
		return err
	}

	if err := elem.SelectAllText(); err != nil {
		return &BrowserError{
			Code:    ErrCodeInteraction,
			Message: fmt.Sprintf("Failed to focus %s: %v", target, err),
		}
	}
	if err := elem.Input(value); err != nil {
		return &BrowserError{
			Code:    ErrCodeInteraction,
			Message: fmt.Sprintf("Failed to fill %s: %v", target, err),
		}
	}
	return nil
}

// TypeText appends text to a field without clearing it
func (s *Session) TypeText(ctx context.Context, target, text string) error {
	elem, err := s.Resolve(ctx, target)
	if err != nil {
		return err
	}

	if err := elem.Focus(); err != nil {
		return &BrowserError{
			Code:    ErrCodeInteraction,
			Message: fmt.Sprintf("Failed to focus %s: %v", target, err),
		}
	}
	if err := elem.Input(text); err != nil {
		return &BrowserError{
			Code:    ErrCodeInteraction,
			Message: fmt.Sprintf("Failed to type into %s: %v", target, err),
		}
	}
	return nil
}

// Press sends a single key or a modifier chord such as "Control+a"
func (s *Session) Press(ctx context.Context, key string) error {
	page := s.page.Context(ctx)
	keyboard := page.Keyboard

	parts := strings.Split(key, "+")
	main := parts[len(parts)-1]
	modifiers := parts[:len(parts)-1]

	mainKey, err := keyFromName(main)
	if err != nil {
		return &BrowserError{
			Code:    ErrCodeValidation,
			Message: err.Error(),
		}
	}

	held := make([]input.Key, 0, len(modifiers))
	for _, mod := range modifiers {
		modKey, err := modifierFromName(mod)
		if err != nil {
			return &BrowserError{
				Code:    ErrCodeValidation,
				Message: err.Error(),
			}
		}
		if err := keyboard.Press(modKey); err != nil {
			return &BrowserError{
				Code:    ErrCodeInteraction,
				Message: fmt.Sprintf("Failed to press %s: %v", mod, err),
			}
		}
		held = append(held, modKey)
	}

	typeErr := keyboard.Type(mainKey)

	// Release modifiers in reverse order regardless of outcome
	for i := len(held) - 1; i >= 0; i-- {
		_ = keyboard.Release(held[i])
	}

	if typeErr != nil {
		return &BrowserError{
			Code:    ErrCodeInteraction,
			Message: fmt.Sprintf("Failed to press %s: %v", key, typeErr),
		}
	}
	return nil
}

// ScrollBy scrolls the viewport by a signed pixel delta
func (s *Session) ScrollBy(ctx context.Context, dx, dy int) error {
	page := s.page.Context(ctx)
	if _, err := page.Eval(`(dx, dy) => window.scrollBy(dx, dy)`, dx, dy); err != nil {
		return &BrowserError{
			Code:    ErrCodeInteraction,
			Message: fmt.Sprintf("Failed to scroll: %v", err),
		}
	}
	return nil
}

// WaitDuration pauses for a fixed number of milliseconds
func (s *Session) WaitDuration(ctx context.Context, ms int) error {
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return &BrowserError{
			Code:    ErrCodeTimeout,
			Message: fmt.Sprintf("Wait interrupted: %v", ctx.Err()),
		}
	}
}

// WaitForSelector blocks until an element matching the selector appears
func (s *Session) WaitForSelector(ctx context.Context, selector string) error {
	if !IsValidSelector(selector) {
		return &BrowserError{
			Code:    ErrCodeValidation,
			Message: fmt.Sprintf("Invalid selector: %s", selector),
		}
	}

	page := s.page.Context(ctx).Timeout(30 * time.Second)
	if _, err := page.Element(selector); err != nil {
		return &BrowserError{
			Code:    ErrCodeElementNotFound,
			Message: fmt.Sprintf("Element did not appear: %s", selector),
		}
	}
	return nil
}

// Info returns the session's current URL and title
func (s *Session) Info() SessionInfo {
	info := SessionInfo{ID: s.ID}
	if pi, err := s.page.Info(); err == nil {
		info.URL = pi.URL
		info.Title = pi.Title
	}
	return info
}

// State returns a copy of the tracked page state
func (s *Session) State() PageState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return *s.state
}

// Close closes the session's page
func (s *Session) Close() error {
	if err := s.page.Close(); err != nil {
		return &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to close page: %v", err),
		}
	}
	return nil
}

// initializeObservers sets up console and error tracking
func (s *Session) initializeObservers() {
	go s.page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		s.trackConsoleMessage(e)
	})()

	go s.page.EachEvent(func(e *proto.RuntimeExceptionThrown) {
		s.trackPageError(e)
	})()
}

func (s *Session) trackConsoleMessage(event *proto.RuntimeConsoleAPICalled) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	var text strings.Builder
	for i, arg := range event.Args {
		if i > 0 {
			text.WriteString(" ")
		}
		text.WriteString(fmt.Sprintf("%v", arg.Value))
	}

	msg := ConsoleMessage{
		Type:      string(event.Type),
		Text:      text.String(),
		Timestamp: time.Now(),
	}

	// Bounded buffer
	s.state.ConsoleMessages = append(s.state.ConsoleMessages, msg)
	if len(s.state.ConsoleMessages) > 100 {
		s.state.ConsoleMessages = s.state.ConsoleMessages[1:]
	}
}

func (s *Session) trackPageError(event *proto.RuntimeExceptionThrown) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	err := PageError{
		Message:   event.ExceptionDetails.Text,
		Timestamp: time.Now(),
	}

	s.state.Errors = append(s.state.Errors, err)
	if len(s.state.Errors) > 50 {
		s.state.Errors = s.state.Errors[1:]
	}
}

// keyFromName maps a key name to a rod input key
func keyFromName(name string) (input.Key, error) {
	switch strings.ToLower(name) {
	case "enter", "return":
		return input.Enter, nil
	case "tab":
		return input.Tab, nil
	case "escape", "esc":
		return input.Escape, nil
	case "backspace":
		return input.Backspace, nil
	case "delete":
		return input.Delete, nil
	case "space":
		return input.Space, nil
	case "arrowup", "up":
		return input.ArrowUp, nil
	case "arrowdown", "down":
		return input.ArrowDown, nil
	case "arrowleft", "left":
		return input.ArrowLeft, nil
	case "arrowright", "right":
		return input.ArrowRight, nil
	case "home":
		return input.Home, nil
	case "end":
		return input.End, nil
	case "pageup":
		return input.PageUp, nil
	case "pagedown":
		return input.PageDown, nil
	}

	runes := []rune(name)
	if len(runes) == 1 {
		return input.Key(runes[0]), nil
	}

	return 0, fmt.Errorf("unsupported key: %s", name)
}

// modifierFromName maps a modifier name to a rod input key
func modifierFromName(name string) (input.Key, error) {
	switch strings.ToLower(name) {
	case "control", "ctrl":
		return input.ControlLeft, nil
	case "shift":
		return input.ShiftLeft, nil
	case "alt":
		return input.AltLeft, nil
	case "meta", "cmd", "command":
		return input.MetaLeft, nil
	}
	return 0, fmt.Errorf("unsupported modifier: %s", name)
}
