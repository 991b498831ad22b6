package main

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	cookieName    = "pid"
	sessionIdle   = 12 * time.Hour
	maxLevelStep  = 10
	loadErrorHint = "The data comes from the drifter documents and the companion document listed in the manifest."
)

var ErrInvalidLevelStep = errors.New("invalid level step")

//go:embed templates/*.html templates/fragments/*.html
var templateFS embed.FS

// Session is one visitor's transient planner.
type Session struct {
	ID       string
	Planner  *Planner
	Toast    string
	LastSeen time.Time
}

// Store is the in-memory session table. Every handler holds mu for its
// whole duration, so planner recomputation never overlaps.
type Store struct {
	mu sync.Mutex

	catalog          *Catalog
	loadErr          error
	maximizedDefault bool
	sessions         map[string]*Session
}

func newStore(cat *Catalog, loadErr error, maximizedDefault bool) *Store {
	return &Store{
		catalog:          cat,
		loadErr:          loadErr,
		maximizedDefault: maximizedDefault,
		sessions:         map[string]*Session{},
	}
}

type PageData struct {
	Plan      PlanView
	Toast     string
	LoadError string
	Hint      string
	Now       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newMux(store *Store, tmpl *template.Template) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if store.loadErr != nil {
			renderLoadError(w, tmpl, store.loadErr)
			return
		}

		store.mu.Lock()
		defer store.mu.Unlock()

		s := ensureSessionLocked(store, w, r)
		renderPage(w, tmpl, "base", buildPageDataLocked(s))
	})

	mux.HandleFunc("/api/plan", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if store.loadErr != nil {
			http.Error(w, store.loadErr.Error(), http.StatusServiceUnavailable)
			return
		}
		store.mu.Lock()
		defer store.mu.Unlock()
		s := ensureSessionLocked(store, w, r)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(planJSON(s.Planner.Plan())); err != nil {
			logger.Warn("encode plan failed", zap.Error(err))
		}
	})

	handleAction(mux, store, tmpl, "/slot", func(p *Planner, r *http.Request) error {
		slot, err := strconv.Atoi(strings.TrimSpace(r.FormValue("slot")))
		if err != nil {
			return ErrSlotOutOfRange
		}
		return p.Assign(slot, r.FormValue("drifter_id"))
	})
	handleAction(mux, store, tmpl, "/slot/clear", func(p *Planner, r *http.Request) error {
		slot, err := strconv.Atoi(strings.TrimSpace(r.FormValue("slot")))
		if err != nil {
			return ErrSlotOutOfRange
		}
		return p.ClearSlot(slot)
	})
	handleAction(mux, store, tmpl, "/clear", func(p *Planner, _ *http.Request) error {
		p.ClearAll()
		return nil
	})
	handleAction(mux, store, tmpl, "/toggle-max", func(p *Planner, _ *http.Request) error {
		p.ToggleMaximized()
		return nil
	})
	handleAction(mux, store, tmpl, "/sort", func(p *Planner, r *http.Request) error {
		return p.SetDrifterSort(strings.TrimSpace(r.FormValue("mode")))
	})
	handleAction(mux, store, tmpl, "/main", func(p *Planner, r *http.Request) error {
		return p.SelectMain(r.FormValue("drifter_id"))
	})
	handleAction(mux, store, tmpl, "/main/level", func(p *Planner, r *http.Request) error {
		step, err := strconv.Atoi(strings.TrimSpace(r.FormValue("step")))
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidLevelStep, r.FormValue("step"))
		}
		p.StepMainLevel(clampInt(step, -maxLevelStep, maxLevelStep))
		return nil
	})
	handleAction(mux, store, tmpl, "/main/attr", func(p *Planner, r *http.Request) error {
		var value *float64
		if v, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("value")), 64); err == nil {
			value = &v
		}
		return p.SetCustomAttr(r.FormValue("attr"), value)
	})
	handleAction(mux, store, tmpl, "/main/sort", func(p *Planner, _ *http.Request) error {
		p.ToggleMainStatsSort()
		return nil
	})
	return mux
}

// handleAction registers a POST endpoint that mutates the visitor's planner
// and answers with the re-rendered planner fragment.
func handleAction(mux *http.ServeMux, store *Store, tmpl *template.Template, path string, act func(*Planner, *http.Request) error) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if store.loadErr != nil {
			renderLoadError(w, tmpl, store.loadErr)
			return
		}

		store.mu.Lock()
		defer store.mu.Unlock()

		s := ensureSessionLocked(store, w, r)
		if err := act(s.Planner, r); err != nil {
			s.Toast = actionToast(err)
			logger.Debug("planner action rejected", zap.String("path", path), zap.Error(err))
		}
		renderActionResponse(w, tmpl, buildPageDataLocked(s))
	})
}

func actionToast(err error) string {
	switch {
	case errors.Is(err, ErrDrifterInUse):
		return "That drifter is already in another slot."
	case errors.Is(err, ErrUnknownDrifter):
		return "That drifter is not available."
	case errors.Is(err, ErrSlotOutOfRange):
		return "That slot does not exist."
	case errors.Is(err, ErrUnknownSort):
		return "Unknown sort mode."
	case errors.Is(err, ErrUnknownAttribute):
		return "Unknown attribute."
	case errors.Is(err, ErrInvalidLevelStep):
		return "Level step must be a whole number."
	default:
		return "Something went wrong."
	}
}

func ensureSessionLocked(store *Store, w http.ResponseWriter, r *http.Request) *Session {
	now := time.Now().UTC()
	var sid string
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		sid = c.Value
	}
	s := store.sessions[sid]
	if s == nil {
		// Only ids this server issued name a session.
		sid = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		s = &Session{ID: sid, Planner: NewPlanner(store.catalog, store.maximizedDefault)}
		store.sessions[sid] = s
		pruneSessionsLocked(store, now)
	}
	s.LastSeen = now
	return s
}

// pruneSessionsLocked drops sessions idle for longer than sessionIdle.
func pruneSessionsLocked(store *Store, now time.Time) {
	for id, s := range store.sessions {
		if !s.LastSeen.IsZero() && now.Sub(s.LastSeen) > sessionIdle {
			delete(store.sessions, id)
		}
	}
}

func buildPageDataLocked(s *Session) PageData {
	data := PageData{
		Plan:  s.Planner.Plan(),
		Toast: s.Toast,
		Now:   time.Now().UTC().Format("2006-01-02 15:04 UTC"),
	}
	s.Toast = ""
	return data
}

func parseTemplates() *template.Template {
	return template.Must(template.New("root").ParseFS(templateFS, "templates/*.html", "templates/fragments/*.html"))
}

func renderPage(w http.ResponseWriter, tmpl *template.Template, name string, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// htmx response strategy: actions swap the planner fragment as the primary
// target and carry the toast as an out-of-band fragment.
func renderActionResponse(w http.ResponseWriter, tmpl *template.Template, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "planner", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = tmpl.ExecuteTemplate(w, "toast_oob", data)
}

// renderLoadError replaces the whole layout with the error card.
func renderLoadError(w http.ResponseWriter, tmpl *template.Template, loadErr error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	if err := tmpl.ExecuteTemplate(w, "load_error", PageData{LoadError: loadErr.Error(), Hint: loadErrorHint}); err != nil {
		logger.Warn("render load error failed", zap.Error(err))
	}
}
