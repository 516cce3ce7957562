package webserver

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	sessionName        = "veritag_session"
	sessionKeyUsername = "username"
	tokenTTL           = 12 * time.Hour
)

// SessionLogin binds the operator username to the cookie session.
func SessionLogin(c echo.Context, username string) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Options.HttpOnly = true
	sess.Options.MaxAge = int(tokenTTL.Seconds())
	sess.Values[sessionKeyUsername] = username
	return sess.Save(c.Request(), c.Response())
}

// SessionLogout clears the cookie session.
func SessionLogout(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Options.MaxAge = -1
	delete(sess.Values, sessionKeyUsername)
	return sess.Save(c.Request(), c.Response())
}

// SessionUsername returns the logged-in operator name, or "" when the
// session carries none.
func SessionUsername(c echo.Context) string {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return ""
	}
	if v, ok := sess.Values[sessionKeyUsername].(string); ok {
		return v
	}
	return ""
}

// CreateToken issues a bearer token for API clients.
func CreateToken(secret, username string) (string, error) {
	claims := jwt.MapClaims{
		"usr": username,
		"exp": time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// TokenUsername extracts the operator name from the verified JWT placed in
// the context by the auth middleware.
func TokenUsername(c echo.Context) string {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	if v, ok := claims["usr"].(string); ok {
		return v
	}
	return ""
}

// CurrentUsername resolves the caller identity from session or token.
func CurrentUsername(c echo.Context) string {
	if u := SessionUsername(c); u != "" {
		return u
	}
	return TokenUsername(c)
}
