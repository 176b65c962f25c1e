package stores

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/nestpost/nestpost/models"
)

// DefaultWindowLimit bounds a created-window query when the caller gives no limit.
const DefaultWindowLimit = 5

// WindowDirection selects which side of the boundary a window query returns.
type WindowDirection string

const (
	// WindowAfter returns posts created strictly after the boundary, oldest first.
	WindowAfter WindowDirection = "after"
	// WindowBefore returns posts created strictly before the boundary, newest first.
	WindowBefore WindowDirection = "before"
)

// PostWithAuthor is a post row joined with its author's username, the shape
// served on all public read paths.
type PostWithAuthor struct {
	ID       uint      `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Created  time.Time `json:"created"`
	AuthorID uint      `json:"author_id"`
	ParentID *uint     `json:"parent_id"`
	Username string    `json:"username"`
}

const postWithAuthorColumns = "posts.id, posts.title, posts.body, posts.created, posts.author_id, posts.parent_id, users.username"

// PostStore persists posts and their parent/child thread structure.
type PostStore struct {
	db *gorm.DB
}

// NewPostStore creates a PostStore bound to the given database handle.
func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{db: db}
}

func (s *PostStore) joined() *gorm.DB {
	return s.db.Table("posts").
		Select(postWithAuthorColumns).
		Joins("JOIN users ON users.id = posts.author_id")
}

// Create inserts a post and returns its id. Title and body are required.
// The parent id, when given, is not checked for existence: replies to a
// since-deleted post are accepted and simply dangle.
func (s *PostStore) Create(title, body string, authorID uint, parentID *uint) (uint, error) {
	if strings.TrimSpace(title) == "" || body == "" {
		return 0, ErrValidation
	}

	post := models.Post{
		Title:    title,
		Body:     body,
		AuthorID: authorID,
		ParentID: parentID,
	}
	if err := s.db.Create(&post).Error; err != nil {
		return 0, err
	}
	return post.ID, nil
}

// TopLevel returns every post without a parent, newest first.
func (s *PostStore) TopLevel() ([]PostWithAuthor, error) {
	var posts []PostWithAuthor
	err := s.joined().
		Where("posts.parent_id IS NULL").
		Order("posts.created DESC").
		Scan(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// Thread returns the post and all of its transitive parents, walking parent
// references up to the first top-level post. The walk stops quietly at a
// dangling parent so orphaned replies still render, and a cycle guard keeps
// malformed data from looping. ErrNotFound when the target id does not exist.
func (s *PostStore) Thread(id uint) ([]PostWithAuthor, error) {
	var chain []PostWithAuthor
	seen := map[uint]bool{}

	next := &id
	for next != nil && !seen[*next] {
		seen[*next] = true

		var row PostWithAuthor
		err := s.joined().Where("posts.id = ?", *next).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}

		chain = append(chain, row)
		next = row.ParentID
	}

	if len(chain) == 0 {
		return nil, ErrNotFound
	}
	return chain, nil
}

// Owned is the point lookup used before a mutation: it matches only posts
// belonging to authorID. A post that exists under another owner yields the
// same ErrNotFound as a post that does not exist at all.
func (s *PostStore) Owned(id, authorID uint) (*PostWithAuthor, error) {
	var row PostWithAuthor
	err := s.joined().
		Where("posts.id = ? AND posts.author_id = ?", id, authorID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Update rewrites title and body of the post matching both id and author.
// Zero matched rows is a silent no-op: ownership is checked upstream via
// Owned, so a miss here only means the row vanished in between.
func (s *PostStore) Update(id, authorID uint, title, body string) error {
	if strings.TrimSpace(title) == "" || body == "" {
		return ErrValidation
	}
	return s.db.Model(&models.Post{}).
		Where("id = ? AND author_id = ?", id, authorID).
		Updates(map[string]interface{}{"title": title, "body": body}).Error
}

// Delete removes the post matching id and author, then every direct child of
// it regardless of the child's owner. Both steps run in one transaction so a
// crash cannot delete the parent and leave the children behind. The cascade is
// exactly one level deep: grandchildren stay, orphaned.
func (s *PostStore) Delete(id, authorID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND author_id = ?", id, authorID).Delete(&models.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("parent_id = ?", id).Delete(&models.Post{}).Error
	})
}

// Window returns up to limit posts on one side of the boundary timestamp:
// created > boundary ascending for WindowAfter, created < boundary descending
// for WindowBefore.
func (s *PostStore) Window(boundary time.Time, direction WindowDirection, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = DefaultWindowLimit
	}

	query := s.db.Model(&models.Post{})
	switch direction {
	case WindowBefore:
		query = query.Where("created < ?", boundary).Order("created DESC")
	default:
		query = query.Where("created > ?", boundary).Order("created ASC")
	}

	var posts []models.Post
	if err := query.Limit(limit).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}
