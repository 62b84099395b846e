// Package rest exposes the account services over HTTP with gin.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/filex"
	"github.com/dmitrijs2005/vidaccounts/internal/logging"
	"github.com/dmitrijs2005/vidaccounts/internal/server/config"
	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
	"github.com/dmitrijs2005/vidaccounts/internal/server/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// AccountService is what the handlers need from services.UserService.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.PublicUser, error)
	Login(ctx context.Context, identifier, password string) (*services.LoginResult, error)
	Logout(ctx context.Context, userID string) error
	RefreshToken(ctx context.Context, presented string) (*services.TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (*models.PublicUser, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.PublicUser, error)
	UpdateAvatar(ctx context.Context, userID, localPath string) (*models.PublicUser, error)
	UpdateCoverImage(ctx context.Context, userID, localPath string) (*models.PublicUser, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchHistoryEntry, error)
	AddToWatchHistory(ctx context.Context, userID, videoID string) error
}

// ChannelService is what the handlers need from services.ChannelService.
type ChannelService interface {
	ToggleSubscription(ctx context.Context, subscriberID, channelID string) (bool, error)
	ChannelProfile(ctx context.Context, username, viewerID string) (*models.ChannelProfile, error)
}

const shutdownTimeout = 5 * time.Second

type HTTPServer struct {
	address      string
	accounts     AccountService
	channels     ChannelService
	logger       logging.Logger
	cookies      cookieSettings
	preferHeader bool
	uploadDir    string
	router       *gin.Engine
}

func NewHTTPServer(cfg *config.Config, l logging.Logger, accounts AccountService, channels ChannelService) (*HTTPServer, error) {
	uploadDir, err := filex.EnsureDir(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	registerValidators()

	s := &HTTPServer{
		address:  cfg.EndpointAddrHTTP,
		accounts: accounts,
		channels: channels,
		logger:   l.With("module", "http_server"),
		cookies: cookieSettings{
			domain: cfg.CookieDomain,
			secure: cfg.CookieSecure,
		},
		preferHeader: cfg.PreferAuthorizationHeader,
		uploadDir:    uploadDir,
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	// ClientIP must be the peer address; nothing in front of us is trusted.
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}
	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger))
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	limit := NewRateLimitPerIP(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimitCacheSize)
	s.routes(router, limit)
	s.router = router
	return s, nil
}

func (s *HTTPServer) routes(r *gin.Engine, limit gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	users := api.Group("/users")
	users.POST("/register", limit, s.register)
	users.POST("/login", limit, s.login)
	users.POST("/refresh-token", limit, s.refreshToken)

	secured := users.Group("", s.requireAuth)
	secured.POST("/logout", s.logout)
	secured.POST("/change-password", s.changePassword)
	secured.GET("/current-user", s.currentUser)
	secured.PATCH("/update-account", s.updateAccount)
	secured.PATCH("/avatar", s.updateAvatar)
	secured.PATCH("/cover-image", s.updateCoverImage)
	secured.GET("/c/:username", s.channelProfile)
	secured.GET("/history", s.watchHistory)
	secured.POST("/history/:videoId", s.addToWatchHistory)

	subs := api.Group("/subscriptions", s.requireAuth)
	subs.POST("/c/:channelId", s.toggleSubscription)
}

// Handler returns the routed gin engine.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
