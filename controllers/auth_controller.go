package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nestpost/nestpost/middleware"
	"github.com/nestpost/nestpost/stores"
	"github.com/nestpost/nestpost/utils"
)

// tokenTTL is how long an issued bearer token stays valid.
const tokenTTL = 72 * time.Hour

// AuthController handles registration, login, and session endpoints.
type AuthController struct {
	users *stores.UserStore
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{users: stores.NewUserStore(db)}
}

// Register creates a local account.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	id, err := a.users.Register(strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrValidation):
			utils.Error(ctx, http.StatusBadRequest, 40002, "username and password are required")
		case errors.Is(err, stores.ErrDuplicateUsername):
			utils.Sugar.Warnf("user %s is already registered", req.Username)
			utils.Error(ctx, http.StatusBadRequest, 40003, "username already registered")
		default:
			utils.Sugar.Errorf("register failed: %v", err)
			utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to register user")
		}
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"id": id, "username": strings.TrimSpace(req.Username)})
}

// Login verifies credentials and issues a bearer token. Unknown usernames and
// wrong passwords produce the same response.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}

	user, err := a.users.Verify(strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		utils.Sugar.Errorf("login lookup failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to verify credentials")
		return
	}
	if user == nil {
		utils.Sugar.Warnf("incorrect login for %s from %s", req.Username, ctx.ClientIP())
		utils.Error(ctx, http.StatusUnauthorized, 40110, "incorrect username or password")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, tokenTTL)
	if err != nil {
		utils.Sugar.Errorf("token generation failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to generate token")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"access_token": token})
}

// Logout revokes the presented token until its natural expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	raw, exists := ctx.Get(middleware.ContextTokenKey)
	token, _ := raw.(string)
	if !exists || token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "unauthorized")
		return
	}

	expires := time.Now().Add(tokenTTL)
	if claims, err := utils.ParseToken(token); err == nil && claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	utils.BlacklistToken(token, expires)

	ctx.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the account behind the presented token.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40121, "unauthorized")
		return
	}

	user, err := a.users.Lookup(userID)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Sugar.Errorf("user lookup failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to load user")
		return
	}

	ctx.JSON(http.StatusOK, user)
}
