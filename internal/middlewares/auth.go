package middlewares

//go:generate mockgen -source=auth.go -destination=mock_auth.go -package=middlewares

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/sbilibin2017/user-bootstrap/internal/jwt"
	"github.com/sbilibin2017/user-bootstrap/internal/logger"
	"github.com/sbilibin2017/user-bootstrap/internal/models"
)

// Tokener defines the minimal interface needed by the middleware
type Tokener interface {
	GetTokenFromRequest(ctx context.Context, r *http.Request) (string, error)
	GetClaims(ctx context.Context, tokenString string) (*jwt.Claims, error)
}

type (
	subjectKey struct{}
	rolesKey   struct{}
)

// AuthMiddleware rejects requests without a valid bearer token and stores the
// token subject and roles in the request context.
func AuthMiddleware(tokener Tokener) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tokenString, err := tokener.GetTokenFromRequest(ctx, r)
			if err != nil {
				logger.Log.Errorw("authorization failed", "request_id", GetRequestID(ctx), "err", err)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			claims, err := tokener.GetClaims(ctx, tokenString)
			if err != nil {
				logger.Log.Errorw("authorization failed", "request_id", GetRequestID(ctx), "err", err)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, subjectKey{}, claims.Subject)
			ctx = context.WithValue(ctx, rolesKey{}, claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject returns the authenticated subject, or "" for anonymous requests.
func GetSubject(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey{}).(string)
	return subject
}

// GetRoles returns the roles granted by the token.
func GetRoles(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey{}).([]string)
	return roles
}

// RoleFinder loads the roles stored for a user.
type RoleFinder interface {
	FindRolesByUsername(ctx context.Context, username string) ([]string, error)
}

// RequireRole responds 403 unless the authenticated subject has the role.
// With a finder the stored roles of the subject are authoritative; without one
// the roles claim of the token is used.
func RequireRole(role string, finder RoleFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			subject := GetSubject(ctx)

			roles := GetRoles(ctx)
			if finder != nil {
				found, err := finder.FindRolesByUsername(ctx, subject)
				switch {
				case errors.Is(err, models.ErrUserNotFound):
					roles = nil
				case err != nil:
					logger.Log.Errorw("failed to load roles",
						"request_id", GetRequestID(ctx), "subject", subject, "err", err)
					w.WriteHeader(http.StatusInternalServerError)
					return
				default:
					roles = found
				}
			}

			if !slices.Contains(roles, role) {
				logger.Log.Errorw("forbidden",
					"request_id", GetRequestID(ctx),
					"subject", subject,
					"required_role", role,
				)
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
