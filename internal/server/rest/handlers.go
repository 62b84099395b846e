package rest

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/server/services"
	"github.com/gin-gonic/gin"
)

func (s *HTTPServer) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		s.writeError(c, common.InvalidArgument(err.Error()))
		return
	}

	avatar, err := s.saveUpload(c, "avatar")
	defer s.removeUpload(c, avatar)
	if err != nil {
		s.writeError(c, err)
		return
	}
	cover, err := s.saveUpload(c, "coverImage")
	defer s.removeUpload(c, cover)
	if err != nil {
		s.writeError(c, err)
		return
	}

	user, err := s.accounts.Register(c.Request.Context(), services.RegisterInput{
		FullName:       req.FullName,
		Username:       req.Username,
		Email:          req.Email,
		Password:       req.Password,
		AvatarPath:     avatar,
		CoverImagePath: cover,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	respond(c, http.StatusCreated, user, "User registered successfully")
}

func (s *HTTPServer) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		s.writeError(c, common.InvalidArgument(err.Error()))
		return
	}

	identifier := req.Username
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Email
	}

	res, err := s.accounts.Login(c.Request.Context(), identifier, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setTokenCookies(c, res.Tokens)
	respond(c, http.StatusOK, loginResponse{
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}, "User logged in successfully")
}

func (s *HTTPServer) refreshToken(c *gin.Context) {
	var presented string
	if ck, err := c.Cookie(common.RefreshTokenCookieName); err == nil {
		presented = strings.TrimSpace(ck)
	}
	if presented == "" {
		var req refreshRequest
		// an empty body is fine here; the service rejects a missing token
		_ = c.ShouldBind(&req)
		presented = strings.TrimSpace(req.RefreshToken)
	}

	tokens, err := s.accounts.RefreshToken(c.Request.Context(), presented)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setTokenCookies(c, tokens)
	respond(c, http.StatusOK, tokensResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "Access token refreshed")
}

func (s *HTTPServer) logout(c *gin.Context) {
	user, _ := CurrentUser(c)
	if err := s.accounts.Logout(c.Request.Context(), user.ID); err != nil {
		s.writeError(c, err)
		return
	}

	s.clearTokenCookies(c)
	respond(c, http.StatusOK, nil, "User logged out")
}

func (s *HTTPServer) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		s.writeError(c, common.InvalidArgument(err.Error()))
		return
	}

	user, _ := CurrentUser(c)
	if err := s.accounts.ChangePassword(c.Request.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "Password changed successfully")
}

func (s *HTTPServer) currentUser(c *gin.Context) {
	user, _ := CurrentUser(c)
	respond(c, http.StatusOK, user, "User fetched successfully")
}

func (s *HTTPServer) updateAccount(c *gin.Context) {
	var req updateAccountRequest
	if err := c.ShouldBind(&req); err != nil {
		s.writeError(c, common.InvalidArgument(err.Error()))
		return
	}

	user, _ := CurrentUser(c)
	updated, err := s.accounts.UpdateAccount(c.Request.Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, updated, "Account details updated successfully")
}

func (s *HTTPServer) updateAvatar(c *gin.Context) {
	path, err := s.saveUpload(c, "avatar")
	defer s.removeUpload(c, path)
	if err != nil {
		s.writeError(c, err)
		return
	}

	user, _ := CurrentUser(c)
	updated, err := s.accounts.UpdateAvatar(c.Request.Context(), user.ID, path)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, updated, "Avatar updated successfully")
}

func (s *HTTPServer) updateCoverImage(c *gin.Context) {
	path, err := s.saveUpload(c, "coverImage")
	defer s.removeUpload(c, path)
	if err != nil {
		s.writeError(c, err)
		return
	}

	user, _ := CurrentUser(c)
	updated, err := s.accounts.UpdateCoverImage(c.Request.Context(), user.ID, path)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, updated, "Cover image updated successfully")
}

func (s *HTTPServer) channelProfile(c *gin.Context) {
	viewer, _ := CurrentUser(c)
	profile, err := s.channels.ChannelProfile(c.Request.Context(), c.Param("username"), viewer.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, profile, "Channel fetched successfully")
}

func (s *HTTPServer) toggleSubscription(c *gin.Context) {
	user, _ := CurrentUser(c)
	subscribed, err := s.channels.ToggleSubscription(c.Request.Context(), user.ID, c.Param("channelId"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	message := "Unsubscribed successfully"
	if subscribed {
		message = "Subscribed successfully"
	}
	respond(c, http.StatusOK, gin.H{"subscribed": subscribed}, message)
}

func (s *HTTPServer) watchHistory(c *gin.Context) {
	user, _ := CurrentUser(c)
	history, err := s.accounts.WatchHistory(c.Request.Context(), user.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, history, "Watch history fetched successfully")
}

func (s *HTTPServer) addToWatchHistory(c *gin.Context) {
	user, _ := CurrentUser(c)
	if err := s.accounts.AddToWatchHistory(c.Request.Context(), user.ID, c.Param("videoId")); err != nil {
		s.writeError(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "Added to watch history")
}
