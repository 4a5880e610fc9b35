package postgres

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type profileRow struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Name      string
	Avatar    string
	CreatedAt time.Time
}

func (profileRow) TableName() string { return "profiles" }

type postRow struct {
	ID            string `gorm:"primaryKey;type:varchar(64)"`
	AuthorID      string `gorm:"index;type:varchar(64)"`
	Title         string
	Prompt        string   `gorm:"type:text"`
	Images        []string `gorm:"type:text;serializer:json"`
	Category      string   `gorm:"index"`
	Tags          []string `gorm:"type:text;serializer:json"`
	AISource      string
	LikesCount    int `gorm:"not null;default:0"`
	CommentsCount int `gorm:"not null;default:0"`
	SharesCount   int `gorm:"not null;default:0"`
	Version       int64
	CreatedAt     time.Time `gorm:"index"`
}

func (postRow) TableName() string { return "posts" }

// BeforeCreate генерирует UUID для нового поста.
func (p *postRow) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type likeRow struct {
	UserID    string `gorm:"primaryKey;type:varchar(64)"`
	PostID    string `gorm:"primaryKey;type:varchar(64);index"`
	CreatedAt time.Time
}

func (likeRow) TableName() string { return "likes" }

type bookmarkRow struct {
	UserID    string `gorm:"primaryKey;type:varchar(64)"`
	PostID    string `gorm:"primaryKey;type:varchar(64);index"`
	CreatedAt time.Time
}

func (bookmarkRow) TableName() string { return "bookmarks" }

type commentRow struct {
	ID         string  `gorm:"primaryKey;type:varchar(64)"`
	PostID     string  `gorm:"index;type:varchar(64)"`
	ParentID   *string `gorm:"index;type:varchar(64)"`
	AuthorID   string  `gorm:"index;type:varchar(64)"`
	Content    string  `gorm:"type:text"`
	LikesCount int     `gorm:"not null;default:0"`
	CreatedAt  time.Time
}

func (commentRow) TableName() string { return "comments" }

func (c *commentRow) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type commentLikeRow struct {
	UserID    string `gorm:"primaryKey;type:varchar(64)"`
	CommentID string `gorm:"primaryKey;type:varchar(64);index"`
	CreatedAt time.Time
}

func (commentLikeRow) TableName() string { return "comment_likes" }

var allModels = []any{
	&profileRow{}, &postRow{}, &likeRow{}, &bookmarkRow{}, &commentRow{}, &commentLikeRow{},
}
