// Package view renders page payloads that the client hydrates into screens.
package view

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// PropsFunc contributes props shared by every page.
type PropsFunc func(r *http.Request) (map[string]any, error)

// Page is the payload sent to the client.
type Page struct {
	Component string         `json:"component"`
	Props     map[string]any `json:"props"`
	URL       string         `json:"url"`
	Version   string         `json:"version,omitempty"`
}

// Engine renders pages with shared props merged in.
type Engine struct {
	csrf    *shared.CSRFManager
	version string
	shared  []PropsFunc
}

// NewEngine builds an Engine. version identifies the client asset build.
func NewEngine(csrf *shared.CSRFManager, version string) *Engine {
	return &Engine{csrf: csrf, version: version}
}

// Share registers fn to run for every rendered page.
func (e *Engine) Share(fn PropsFunc) {
	e.shared = append(e.shared, fn)
}

// Render writes component with props. Page props win over shared ones.
// A returned error means nothing was written, so callers may still respond.
func (e *Engine) Render(w http.ResponseWriter, r *http.Request, component string, props map[string]any, status int) error {
	if e == nil {
		return fmt.Errorf("view: engine not initialised")
	}
	merged := map[string]any{"errors": map[string]string{}}
	for _, fn := range e.shared {
		extra, err := fn(r)
		if err != nil {
			return fmt.Errorf("view: shared props: %w", err)
		}
		for k, v := range extra {
			merged[k] = v
		}
	}

	sess := shared.SessionFromContext(r.Context())
	flash := map[string]string{}
	if sess != nil {
		for _, msg := range sess.PopFlashes() {
			flash[msg.Kind] = msg.Message
		}
		if e.csrf != nil {
			token, err := e.csrf.EnsureToken(sess)
			if err != nil {
				return fmt.Errorf("view: csrf token: %w", err)
			}
			merged["csrf_token"] = token
		}
	}
	merged["flash"] = flash

	for k, v := range props {
		merged[k] = v
	}

	body, err := json.Marshal(Page{
		Component: component,
		Props:     merged,
		URL:       r.URL.RequestURI(),
		Version:   e.version,
	})
	if err != nil {
		return fmt.Errorf("view: encode %s: %w", component, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Vary", "Accept")
	w.WriteHeader(status)
	// The response is committed; a failed write means the client went away.
	_, _ = w.Write(append(body, '\n'))
	return nil
}

// Redirect queues a flash message and sends a 303 to location.
func Redirect(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil && message != "" {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
