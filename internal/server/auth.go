package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/disasterlens/civicguard/internal/model"
	"golang.org/x/oauth2"
)

type loginRequest struct {
	Role  model.Role `json:"role"`
	Email string     `json:"email,omitempty"`
}

// HandleLogin issues a profile for the requested role and persists it as
// the current session. This is the simulation path retained from the
// browser edition; Google OAuth below is the verified path for admins.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed login request")
		return
	}

	profile, err := s.sessions.Issue(r.Context(), req.Role, req.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleLogout drops the current session.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Clear(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession returns the active profile, or 404 when nobody is signed in.
func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request) {
	profile := ProfileFromContext(r.Context())
	if profile == nil {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// --- OAuth: Google ---

func (s *Server) googleOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.config.GoogleClientID,
		ClientSecret: s.config.GoogleSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		RedirectURL: s.config.BaseURL + "/auth/google/callback",
		Scopes:      []string{"openid", "email", "profile"},
	}
}

// HandleGoogleLogin redirects to Google OAuth.
func (s *Server) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.config.GoogleClientID == "" {
		writeError(w, http.StatusNotImplemented, "Google login not configured")
		return
	}
	state := generateRandomHex(32)
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(s.config.BaseURL, "https"),
	})
	url := s.googleOAuthConfig().AuthCodeURL(state)
	http.Redirect(w, r, url, http.StatusFound)
}

// HandleGoogleCallback exchanges the OAuth code, resolves the account
// email, and issues an ADMIN profile for allow-listed emails or a CITIZEN
// profile otherwise.
func (s *Server) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if err := s.validateOAuthState(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := s.googleOAuthConfig()
	token, err := cfg.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		s.logger.Error("google oauth exchange", "error", err)
		writeError(w, http.StatusBadRequest, "OAuth error")
		return
	}

	client := cfg.Client(r.Context(), token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		s.logger.Error("google userinfo", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get user info")
		return
	}
	defer resp.Body.Close()

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		s.logger.Error("decode google userinfo", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to parse user info")
		return
	}

	role := model.RoleCitizen
	if model.AllowedAdmin(info.Email) {
		role = model.RoleAdmin
	}
	if _, err := s.sessions.Issue(r.Context(), role, info.Email); err != nil {
		writeDomainError(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) validateOAuthState(r *http.Request) error {
	c, err := r.Cookie("oauth_state")
	if err != nil || c.Value == "" {
		return errMissingOAuthState
	}
	if r.URL.Query().Get("state") != c.Value {
		return errBadOAuthState
	}
	return nil
}

var (
	errMissingOAuthState = oauthStateError("missing OAuth state cookie")
	errBadOAuthState     = oauthStateError("OAuth state mismatch")
)

type oauthStateError string

func (e oauthStateError) Error() string { return string(e) }
