package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"provision_platform/calculator/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials is returned for both an unknown email and a
	// wrong password so that login failures do not reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid login credentials")

	ErrEmailAlreadyInUse = errors.New("email is already in use")
)

type requestContextKey string

const userRequestContextKey requestContextKey = "user"

type LoginResult struct {
	UserId uuid.UUID
	Token  string
}

// SessionManager issues and validates opaque bearer tokens persisted in the
// sessions table. Every token carries an expiry; validation fails closed on
// a missing, unknown, or expired token, and on a token whose user has been
// deleted since it was issued.
type SessionManager struct {
	db         *gorm.DB
	sessionTTL time.Duration
	auditLog   AuditLogger
}

type SessionManagerArgs struct {
	SessionTTL    time.Duration
	AdminName     string
	AdminEmail    string
	AdminPassword string
}

func NewSessionManager(db *gorm.DB, auditLog AuditLogger, args SessionManagerArgs) (*SessionManager, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(args.AdminPassword), 10)
	if err != nil {
		return nil, fmt.Errorf("error encrypting admin password: %w", err)
	}

	err = addInitialAdminToDb(db, uuid.New(), args.AdminName, args.AdminEmail, hashedPwd)
	if err != nil {
		return nil, fmt.Errorf("error adding initial admin to db: %w", err)
	}

	ttl := args.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &SessionManager{db: db, sessionTTL: ttl, auditLog: auditLog}, nil
}

func addInitialAdminToDb(db *gorm.DB, userId uuid.UUID, name, email string, password []byte) error {
	admin := schema.User{
		Id:       userId,
		Name:     name,
		Email:    email,
		Password: password,
		Role:     schema.RoleAdmin,
	}

	return db.Transaction(func(txn *gorm.DB) error {
		var existingAdmin schema.User
		result := txn.Limit(1).Find(&existingAdmin, "role = ? or email = ?", schema.RoleAdmin, email)
		if result.Error != nil {
			slog.Error("sql error checking if initial admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			result := txn.Create(&admin)
			if result.Error != nil {
				slog.Error("sql error creating initial admin user", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("error generating session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (m *SessionManager) Login(email, password string) (LoginResult, error) {
	var user schema.User
	result := m.db.First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		slog.Error("sql error looking up user by email", "error", result.Error)
		return LoginResult{}, schema.ErrDbAccessFailed
	}

	err := bcrypt.CompareHashAndPassword(user.Password, []byte(password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := newSessionToken()
	if err != nil {
		return LoginResult{}, err
	}

	now := time.Now().UTC()
	session := schema.Session{
		Token:     token,
		UserId:    user.Id,
		CreatedAt: now,
		ExpiresAt: now.Add(m.sessionTTL),
	}

	result = m.db.Create(&session)
	if result.Error != nil {
		slog.Error("sql error creating session", "user_id", user.Id, "error", result.Error)
		return LoginResult{}, schema.ErrDbAccessFailed
	}

	return LoginResult{UserId: user.Id, Token: token}, nil
}

func (m *SessionManager) Logout(token string) error {
	result := m.db.Delete(&schema.Session{Token: token})
	if result.Error != nil {
		slog.Error("sql error deleting session", "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	return nil
}

// DeleteExpired evicts sessions whose expiry has passed. Called
// periodically by the platform's background sweeper.
func (m *SessionManager) DeleteExpired() (int64, error) {
	result := m.db.Where("expires_at < ?", time.Now().UTC()).Delete(&schema.Session{})
	if result.Error != nil {
		slog.Error("sql error deleting expired sessions", "error", result.Error)
		return 0, schema.ErrDbAccessFailed
	}
	return result.RowsAffected, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func (m *SessionManager) authenticator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}

			session, err := schema.GetSession(token, m.db)
			if err != nil {
				if errors.Is(err, schema.ErrSessionNotFound) {
					http.Error(w, "invalid session token", http.StatusUnauthorized)
					return
				}
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if session.Expired(time.Now().UTC()) {
				http.Error(w, "session has expired", http.StatusUnauthorized)
				return
			}

			user, err := schema.GetUser(session.UserId, m.db)
			if err != nil {
				// A token mapped to a deleted user is treated as invalid.
				if errors.Is(err, schema.ErrUserNotFound) {
					http.Error(w, "invalid session token", http.StatusUnauthorized)
					return
				}
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			reqCtx := context.WithValue(r.Context(), userRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}
		return http.HandlerFunc(handler)
	}
}

func (m *SessionManager) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{m.authenticator(), m.auditLog.Middleware}
}

func UserFromContext(r *http.Request) (schema.User, error) {
	userUntyped := r.Context().Value(userRequestContextKey)
	if userUntyped == nil {
		return schema.User{}, fmt.Errorf("user field not found in request context")
	}
	user, ok := userUntyped.(schema.User)
	if !ok {
		return schema.User{}, fmt.Errorf("invalid value for user field")
	}
	return user, nil
}

func HashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return nil, fmt.Errorf("error encrypting password: %w", err)
	}
	return hashed, nil
}
