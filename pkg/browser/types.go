package browser

import (
	"time"
)

// LaunchOptions configures how the Chrome process is started
type LaunchOptions struct {
	Headless    bool     `json:"headless"`
	NoSandbox   bool     `json:"noSandbox"`
	AttachOnly  bool     `json:"attachOnly"`
	ChromePath  string   `json:"chromePath,omitempty"`
	UserDataDir string   `json:"userDataDir,omitempty"`
	CDPPort     int      `json:"cdpPort"`
	CDPUrl      string   `json:"cdpUrl,omitempty"`
	Args        []string `json:"args,omitempty"`
}

// SecurityConfig restricts which URLs a session may visit
type SecurityConfig struct {
	AllowFileUrls      bool     `json:"allowFileUrls"`
	AllowLocalhostUrls bool     `json:"allowLocalhostUrls"`
	AllowedDomains     []string `json:"allowedDomains,omitempty"`
	BlockedDomains     []string `json:"blockedDomains,omitempty"`
}

// SessionInfo describes an open session
type SessionInfo struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// PageState tracks console messages and errors for a session's page
type PageState struct {
	SessionID       string           `json:"sessionId"`
	ConsoleMessages []ConsoleMessage `json:"consoleMessages"`
	Errors          []PageError      `json:"errors"`
}

// ConsoleMessage represents a console log message
type ConsoleMessage struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PageError represents a page error
type PageError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Error types
type BrowserError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *BrowserError) Error() string {
	return e.Message
}

// Error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNavigation      = "NAVIGATION_ERROR"
	ErrCodeTimeout         = "TIMEOUT_ERROR"
	ErrCodeElementNotFound = "ELEMENT_NOT_FOUND"
	ErrCodeStaleReference  = "STALE_REFERENCE"
	ErrCodeInteraction     = "INTERACTION_ERROR"
	ErrCodeSecurity        = "SECURITY_ERROR"
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
)
