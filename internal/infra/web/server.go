// Package web serves the status surface: public health JSON, the dashboard
// with its optional login, and Prometheus metrics.
package web

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"party_notification_bot/internal/app"
	"party_notification_bot/internal/infra/metrics"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	sessionCookie   = "party_session"
	loginRateLimit  = 5
	loginRateWindow = time.Minute
)

// StatusSource supplies read-only snapshots.
type StatusSource interface {
	Snapshot() app.StatusSnapshot
}

// Server is the HTTP front end. It never mutates core state.
type Server struct {
	status   StatusSource
	sessions *SessionStore
	creds    *Credentials // nil when the dashboard is open
	logger   *logrus.Entry
}

func NewServer(status StatusSource, sessions *SessionStore, creds *Credentials, logger *logrus.Entry) *Server {
	return &Server{status: status, sessions: sessions, creds: creds, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.GetHead) // uptime monitors probe with HEAD
	r.Use(s.countRequests)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	r.Get("/health", s.handleHealth)
	r.Get("/dashboard", s.handleDashboard)

	r.Get("/login", s.handleLoginForm)
	r.With(httprate.LimitByRealIP(loginRateLimit, loginRateWindow)).Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) authEnabled() bool {
	return s.creds != nil
}

func (s *Server) authorized(r *http.Request) bool {
	if !s.authEnabled() {
		return true
	}
	c, err := r.Cookie(sessionCookie)
	return err == nil && s.sessions.Valid(c.Value)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.status.Snapshot()

	body, err := json.Marshal(snap)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode status")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(snap.HTTPStatus)
	_, _ = w.Write(body)
}

// handleDashboard serves the maintenance page to everyone while updating;
// otherwise the dashboard, behind the login when one is configured.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := s.status.Snapshot()

	if snap.HTTPStatus != http.StatusOK {
		s.render(w, "maintenance.html", snap.HTTPStatus, newDashboardView(snap, s.authEnabled()))
		return
	}
	if !s.authorized(r) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	s.render(w, "dashboard.html", http.StatusOK, newDashboardView(snap, s.authEnabled()))
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if s.authorized(r) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	s.render(w, "login.html", http.StatusOK, loginView{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.authEnabled() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.render(w, "login.html", http.StatusBadRequest, loginView{Error: "Invalid form."})
		return
	}

	logCtx := s.logger.WithField("remote_addr", r.RemoteAddr)
	if !s.creds.Verify(r.PostFormValue("username"), r.PostFormValue("password")) {
		logCtx.Warn("Dashboard login failed")
		s.render(w, "login.html", http.StatusUnauthorized, loginView{Error: "Wrong username or password."})
		return
	}

	token, expires := s.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	logCtx.Info("Dashboard login")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.Delete(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/login", http.StatusFound)
}

// render executes into a buffer first so a template error never leaves a
// half-written page behind a success status.
func (s *Server) render(w http.ResponseWriter, name string, code int, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.WithError(err).WithField("template", name).Error("Failed to render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	})
}
