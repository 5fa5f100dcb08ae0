package auth

import (
	"net/http"
	"strings"

	"github.com/dailycompanion/companion/internal/logging"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// userIDKey is the echo context key holding the authenticated user ID.
const userIDKey = "auth.user_id"

// Middleware resolves the session from the named cookie or an
// Authorization bearer header. Requests without a valid session are
// rejected with 401 before reaching the handler.
func Middleware(issuer *Issuer, cookieName string, logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			userID, err := issuer.Verify(tokenFrom(req, cookieName))
			if err != nil {
				logger.Debug(req.Context(), "session rejected",
					zap.String("path", c.Path()),
					zap.Error(err),
				)
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}

			c.Set(userIDKey, userID)
			c.SetRequest(req.WithContext(logging.WithUserID(req.Context(), userID)))
			return next(c)
		}
	}
}

// UserID returns the user ID set by Middleware.
func UserID(c echo.Context) (string, bool) {
	id, ok := c.Get(userIDKey).(string)
	return id, ok && id != ""
}

func tokenFrom(req *http.Request, cookieName string) string {
	if h := req.Header.Get(echo.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := req.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}
