// api/schemas/schemas.go
package schemas

import (
	"strings"
	"time"
)

// SessionCredentials is the immutable input to one acquisition attempt.
// The overview and detail URLs are optional; an empty URL means the
// corresponding post-login hop is skipped.
type SessionCredentials struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	LoginURL    string `json:"login_url"`
	OverviewURL string `json:"overview_url,omitempty"`
	DetailURL   string `json:"detail_url,omitempty"`
}

// Validate reports the required fields that are missing. An empty slice
// means the credentials are complete enough to start an attempt.
func (c SessionCredentials) Validate() []string {
	var missing []string
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if c.LoginURL == "" {
		missing = append(missing, "login_url")
	}
	return missing
}

// ConsentOutcome describes how the consent gate was resolved during one attempt.
type ConsentOutcome string

const (
	ConsentNotPresent                ConsentOutcome = "not_present"
	ConsentAcceptedByClick           ConsentOutcome = "accepted_by_click"
	ConsentAcceptedByCoordinateClick ConsentOutcome = "accepted_by_coordinate_click"
	ConsentAcceptFailed              ConsentOutcome = "accept_failed"
)

// Accepted reports whether the consent gate was actively dismissed.
func (o ConsentOutcome) Accepted() bool {
	return o == ConsentAcceptedByClick || o == ConsentAcceptedByCoordinateClick
}

// NavigationStep is one post-login hop. The wait strategy is always
// network-idle followed by a fixed settle delay.
type NavigationStep struct {
	URL           string
	SettleTimeout time.Duration
}

// CookieRecord mirrors the browser's view of a single cookie.
type CookieRecord struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
	SameSite string `json:"sameSite,omitempty"`
}

// CookieJar is the full cookie set read from the browser context at the end
// of an attempt. It is pass-through from the driver; within one jar the last
// record for a given name wins.
type CookieJar []CookieRecord

// Get returns the last record with the given name.
func (j CookieJar) Get(name string) (CookieRecord, bool) {
	for i := len(j) - 1; i >= 0; i-- {
		if j[i].Name == name {
			return j[i], true
		}
	}
	return CookieRecord{}, false
}

// HasNameContaining reports whether any cookie name contains the given
// substring, case-insensitively.
func (j CookieJar) HasNameContaining(substr string) bool {
	needle := strings.ToLower(substr)
	for _, c := range j {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			return true
		}
	}
	return false
}

// Validate checks the jar-validity invariant: a usable jar carries a site
// session cookie and, when consent was actively accepted, a consent cookie.
// Violations are advisory diagnostics, not errors.
func (j CookieJar) Validate(sessionMarker string, consentAccepted bool) []string {
	var diags []string
	if sessionMarker != "" && !j.HasNameContaining(sessionMarker) {
		diags = append(diags, "no cookie matching session marker "+sessionMarker)
	}
	if consentAccepted && !j.HasNameContaining("consent") {
		diags = append(diags, "consent accepted but no consent cookie present")
	}
	return diags
}

// AcquisitionResult is the terminal output of one engine invocation.
type AcquisitionResult struct {
	AttemptID   string       `json:"attempt_id"`
	Success     bool         `json:"success"`
	Cookies     CookieJar    `json:"cookies,omitempty"`
	Error       *EngineError `json:"error,omitempty"`
	Diagnostics []string     `json:"diagnostics,omitempty"`
}

// FetchResult is the output of a fetch-after-login invocation.
type FetchResult struct {
	Success bool   `json:"success"`
	HTML    string `json:"html,omitempty"`
	Error   string `json:"error,omitempty"`
}
