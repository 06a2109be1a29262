package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/metis/internal/api/shared"
	"github.com/phrazzld/metis/internal/platform/logger"
)

// UserIDHeader carries the caller's user id.
const UserIDHeader = "X-User-ID"

// maxUserIDLength bounds the header value.
const maxUserIDLength = 128

// RequireUser reads the user id from the X-User-ID header and stores it in
// the request context. Requests without one are rejected with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, UserIDHeader+" header required")
			return
		}
		if len(userID) > maxUserIDLength {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+UserIDHeader+" header")
			return
		}

		ctx := shared.WithUserID(r.Context(), userID)
		ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With(slog.String("user_id", userID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
