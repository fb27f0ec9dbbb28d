package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/cloudband/ignis-admin/internal/services"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type sessionKey struct{}

// tokenClaims are the user claims carried by a login token. The user id is read from user_id and
// falls back to the subject.
type tokenClaims struct {
	UserID   models.ID `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
	UserType string    `json:"user_type"`
	jwt.RegisteredClaims
}

type loginPageData struct {
	Token string
	Error string
}

var errNoUserID = errors.New("token carries no user id")

func sessionFromContext(ctx context.Context) (models.Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(models.Session)
	return session, ok
}

// WithSession loads the session named by the session cookie, if any, into the request context
// together with its backend token. Expired sessions are deleted.
func (m Main) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(m.cfg.SessionCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		session, err := m.store.Session(ctx, c.Value)
		if err != nil {
			if !errors.Is(err, services.ErrSessionNotFound) {
				m.logger.Error("Failed to load session", zap.Error(err))
			}
			m.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		if session.Expired(time.Now()) {
			m.endSession(ctx, session.ID)
			m.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		ctx = context.WithValue(ctx, sessionKey{}, session)
		ctx = services.ContextWithToken(ctx, session.Token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession redirects requests without a session to the login page. Requests from the page
// script and the SSE stream get a 401 instead.
func (m Main) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := sessionFromContext(r.Context()); !ok {
			if isFragmentRequest(r) || r.Header.Get("Accept") == "text/event-stream" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// HandleLoginPage shows the token login form.
func (m Main) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := sessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	m.render(w, http.StatusOK, "login.html", loginPageData{})
}

// HandleLogin starts a session for the submitted access token.
func (m Main) HandleLogin(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.FormValue("token"))
	if token == "" {
		m.render(w, http.StatusUnprocessableEntity, "login.html", loginPageData{
			Error: "Enter your access token.",
		})
		return
	}

	user, expiresAt, err := m.parseToken(token)
	if err != nil {
		m.logger.Warn("Rejected login token", zap.Error(err))
		m.render(w, http.StatusUnauthorized, "login.html", loginPageData{
			Error: "Invalid access token.",
		})
		return
	}

	session := models.Session{
		ID:        uuid.New().String(),
		Token:     token,
		User:      user,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	if err := m.store.SaveSession(r.Context(), session); err != nil {
		m.logger.Error("Failed to save session", zap.Error(err))
		m.render(w, http.StatusInternalServerError, "login.html", loginPageData{
			Error: "Unable to start a session.",
		})
		return
	}

	m.logger.Info("User logged in",
		zap.String("userID", user.ID.String()),
		zap.String("userType", user.UserType))

	cookie := &http.Cookie{
		Name:     m.cfg.SessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if !expiresAt.IsZero() {
		cookie.Expires = expiresAt
	}
	http.SetCookie(w, cookie)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout ends the current session and its conversation.
func (m Main) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if session, ok := sessionFromContext(r.Context()); ok {
		m.endSession(r.Context(), session.ID)
	}
	m.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (m Main) endSession(ctx context.Context, id string) {
	m.conversations.Delete(id)
	if err := m.store.DeleteSession(ctx, id); err != nil {
		m.logger.Error("Failed to delete session", zap.Error(err))
	}
}

func (m Main) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.SessionCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// parseToken reads the user from a login token. The signature is checked only when a secret is
// configured; expiry is always enforced.
func (m Main) parseToken(token string) (models.User, time.Time, error) {
	var claims tokenClaims

	if m.cfg.JWTSecret != "" {
		_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
			return []byte(m.cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil {
			return models.User{}, time.Time{}, fmt.Errorf("failed to verify token: %w", err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
			return models.User{}, time.Time{}, fmt.Errorf("failed to parse token: %w", err)
		}
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			return models.User{}, time.Time{}, jwt.ErrTokenExpired
		}
	}

	user := models.User{
		ID:       claims.UserID,
		Name:     claims.Name,
		Email:    claims.Email,
		Username: claims.Username,
		UserType: claims.UserType,
	}
	if user.ID == "" {
		user.ID = models.ID(claims.Subject)
	}
	if user.ID == "" {
		return models.User{}, time.Time{}, errNoUserID
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return user, expiresAt, nil
}
