package rest

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/server/services"
	"github.com/gin-gonic/gin"
)

type cookieSettings struct {
	domain string
	secure bool
}

func (s *HTTPServer) setTokenCookies(c *gin.Context, tokens *services.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.AccessTokenCookieName, tokens.AccessToken, seconds(tokens.AccessTTL), "/", s.cookies.domain, s.cookies.secure, true)

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.RefreshTokenCookieName, tokens.RefreshToken, seconds(tokens.RefreshTTL), "/", s.cookies.domain, s.cookies.secure, true)
}

func (s *HTTPServer) clearTokenCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.AccessTokenCookieName, "", -1, "/", s.cookies.domain, s.cookies.secure, true)

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.RefreshTokenCookieName, "", -1, "/", s.cookies.domain, s.cookies.secure, true)
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
