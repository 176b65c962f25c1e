package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is a blog entry. A nil ParentID marks a top-level post; replies carry the
// id of the post they answer, forming a tree of arbitrary depth.
type Post struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Title    string    `gorm:"size:255;not null" json:"title"`
	Body     string    `gorm:"type:text;not null" json:"body"`
	Created  time.Time `gorm:"index;not null" json:"created"`
	AuthorID uint      `gorm:"index;not null" json:"author_id"`
	ParentID *uint     `gorm:"index" json:"parent_id"`
	Author   User      `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// BeforeCreate stamps Created, the sole ordering and filtering key.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.Created.IsZero() {
		p.Created = time.Now()
	}
	return nil
}

// OwnedBy reports whether the given user is the post's author. Only the owner
// may update or delete a post.
func (p *Post) OwnedBy(userID uint) bool {
	return p.AuthorID == userID
}
