package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nestpost/nestpost/middleware"
	"github.com/nestpost/nestpost/models"
	"github.com/nestpost/nestpost/stores"
	"github.com/nestpost/nestpost/utils"
)

const (
	cacheKeyTopPosts    = "cache:posts:top"
	cacheKeyThreadPref  = "cache:post:thread:"
	cacheInvalidatePref = "cache:post"
)

// PostController manages CRUD operations for posts and their threads.
type PostController struct {
	posts *stores.PostStore
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB) *PostController {
	return &PostController{posts: stores.NewPostStore(db)}
}

// ListTopLevel returns every top-level post with its author, newest first.
func (p *PostController) ListTopLevel(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes(cacheKeyTopPosts); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	posts, err := p.posts.TopLevel()
	if err != nil {
		utils.Sugar.Errorf("list top-level posts failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to list posts")
		return
	}
	if posts == nil {
		posts = []stores.PostWithAuthor{}
	}

	utils.CacheSetJSON(cacheKeyTopPosts, posts, time.Hour)
	ctx.JSON(http.StatusOK, posts)
}

// CreatePost creates a post for the authenticated user, optionally citing a
// parent post.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req struct {
		Title    string `json:"title" binding:"required"`
		Body     string `json:"body" binding:"required"`
		ParentID *uint  `json:"parent_id"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "unauthorized")
		return
	}

	title := utils.Sanitize(strings.TrimSpace(req.Title))
	body := utils.Sanitize(req.Body)

	id, err := p.posts.Create(title, body, userID, req.ParentID)
	if err != nil {
		if errors.Is(err, stores.ErrValidation) {
			utils.Error(ctx, http.StatusBadRequest, 40021, "title and body are required")
			return
		}
		utils.Sugar.Errorf("create post failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to create post")
		return
	}

	utils.InvalidateByPrefix(cacheInvalidatePref)

	ctx.JSON(http.StatusCreated, gin.H{"id": id})
}

// Filter returns posts inside a created-time window. lastdate selects posts
// after the boundary (ascending), firstdate posts before it (descending);
// when both are given firstdate wins.
func (p *PostController) Filter(ctx *gin.Context) {
	limit := stores.DefaultWindowLimit
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.Error(ctx, http.StatusBadRequest, 40030, "invalid limit")
			return
		}
		limit = n
	}

	boundary, direction, err := parseWindow(ctx.Query("lastdate"), ctx.Query("firstdate"))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40031, err.Error())
		return
	}

	posts, err := p.posts.Window(boundary, direction, limit)
	if err != nil {
		utils.Sugar.Errorf("filter posts failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to filter posts")
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}

	ctx.JSON(http.StatusOK, posts)
}

// GetThread returns the post and its full ancestor chain.
func (p *PostController) GetThread(ctx *gin.Context) {
	id, ok := parsePostID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
		return
	}

	cacheKey := cacheKeyThreadPref + strconv.FormatUint(uint64(id), 10)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	chain, err := p.posts.Thread(id)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.Sugar.Errorf("load thread failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load post")
		return
	}

	utils.CacheSetJSON(cacheKey, chain, time.Hour)
	ctx.JSON(http.StatusOK, chain)
}

// UpdatePost rewrites title and body; only the author may do so, and a post
// owned by someone else answers exactly like a missing one.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
		Body  string `json:"body" binding:"required"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid request payload")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40112, "unauthorized")
		return
	}

	id, ok := parsePostID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
		return
	}

	if _, err := p.posts.Owned(id, userID); err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
			return
		}
		utils.Sugar.Errorf("owned lookup failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to load post")
		return
	}

	title := utils.Sanitize(strings.TrimSpace(req.Title))
	body := utils.Sanitize(req.Body)

	if err := p.posts.Update(id, userID, title, body); err != nil {
		if errors.Is(err, stores.ErrValidation) {
			utils.Error(ctx, http.StatusBadRequest, 40023, "title and body are required")
			return
		}
		utils.Sugar.Errorf("update post failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to update post")
		return
	}

	utils.InvalidateByPrefix(cacheInvalidatePref)

	ctx.Status(http.StatusNoContent)
}

// DeletePost removes the author's post and its direct children.
func (p *PostController) DeletePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	id, ok := parsePostID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40403, "post not found")
		return
	}

	if _, err := p.posts.Owned(id, userID); err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40403, "post not found")
			return
		}
		utils.Sugar.Errorf("owned lookup failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to load post")
		return
	}

	if err := p.posts.Delete(id, userID); err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40403, "post not found")
			return
		}
		utils.Sugar.Errorf("delete post failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to delete post")
		return
	}

	utils.InvalidateByPrefix(cacheInvalidatePref)

	ctx.Status(http.StatusNoContent)
}

// parseWindow applies the documented precedence: the firstdate (before)
// branch wins when both boundaries are supplied.
func parseWindow(lastdate, firstdate string) (time.Time, stores.WindowDirection, error) {
	var boundary time.Time
	var direction stores.WindowDirection

	if lastdate != "" {
		t, err := parseDate(lastdate)
		if err != nil {
			return time.Time{}, "", errors.New("invalid lastdate")
		}
		boundary, direction = t, stores.WindowAfter
	}
	if firstdate != "" {
		t, err := parseDate(firstdate)
		if err != nil {
			return time.Time{}, "", errors.New("invalid firstdate")
		}
		boundary, direction = t, stores.WindowBefore
	}
	if direction == "" {
		return time.Time{}, "", errors.New("lastdate or firstdate is required")
	}
	return boundary, direction, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parsePostID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}
