package domain

import "time"

// AISource - модель, которой был сгенерирован промпт.
type AISource string

const (
	SourceChatGPT AISource = "chatgpt"
	SourceGrok    AISource = "grok"
	SourceGemini  AISource = "gemini"
)

// DefaultAISource используется, когда исходное значение не распознано.
const DefaultAISource = SourceChatGPT

// KnownAISources - канонический набор моделей.
var KnownAISources = []AISource{SourceChatGPT, SourceGrok, SourceGemini}

// Значения по умолчанию для удалённого или неполного автора.
const (
	UnknownAuthorID   = "unknown-author"
	UnknownAuthorName = "Deleted User"
	PlaceholderAvatar = "https://images.pexels.com/photos/1239291/pexels-photo-1239291.jpeg"
)

// Author - автор поста или комментария.
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Counters - счётчики вовлечённости поста. Никогда не бывают отрицательными.
type Counters struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
	Shares   int `json:"shares"`
}

// Post - канонический пост в ленте.
// IsLiked и IsBookmarked имеют смысл только относительно текущего зрителя.
type Post struct {
	ID           string    `json:"id"`
	Author       Author    `json:"author"`
	Title        string    `json:"title,omitempty"`
	Body         string    `json:"prompt"`
	Images       []string  `json:"images"`
	Category     string    `json:"category"`
	Tags         []string  `json:"tags"`
	AISource     AISource  `json:"ai_source"`
	Counters     Counters  `json:"counters"`
	IsLiked      bool      `json:"is_liked"`
	IsBookmarked bool      `json:"is_bookmarked"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
}

// OwnedBy сообщает, принадлежит ли пост зрителю.
func (p Post) OwnedBy(viewerID string) bool {
	return viewerID != "" && p.Author.ID == viewerID
}

// Comment - канонический комментарий. ParentID == nil означает комментарий верхнего уровня.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Likes     int       `json:"likes"`
	IsLiked   bool      `json:"is_liked"`
	CreatedAt time.Time `json:"created_at"`
}

// OwnedBy сообщает, принадлежит ли комментарий зрителю.
func (c Comment) OwnedBy(viewerID string) bool {
	return viewerID != "" && c.Author.ID == viewerID
}

// AuthorRecord - автор в том виде, в каком его отдаёт бэкенд. Поля могут быть пустыми.
type AuthorRecord struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// PostRecord - сырая запись поста от бэкенда: автор может отсутствовать,
// ai_source - произвольная строка.
type PostRecord struct {
	ID           string        `json:"id"`
	Author       *AuthorRecord `json:"author"`
	Title        string        `json:"title,omitempty"`
	Prompt       string        `json:"prompt"`
	Images       []string      `json:"images"`
	Category     string        `json:"category"`
	Tags         []string      `json:"tags"`
	AISource     string        `json:"ai_source"`
	Likes        int           `json:"likes"`
	Comments     int           `json:"comments"`
	Shares       int           `json:"shares"`
	IsLiked      bool          `json:"is_liked"`
	IsBookmarked bool          `json:"is_bookmarked"`
	Version      int64         `json:"version"`
	CreatedAt    time.Time     `json:"created_at"`
}

// CommentRecord - сырая запись комментария от бэкенда.
type CommentRecord struct {
	ID        string        `json:"id"`
	PostID    string        `json:"post_id"`
	ParentID  *string       `json:"parent_id,omitempty"`
	Author    *AuthorRecord `json:"author"`
	Content   string        `json:"content"`
	Likes     int           `json:"likes"`
	IsLiked   bool          `json:"is_liked"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewPost - входные данные для создания поста.
type NewPost struct {
	AuthorID string   `json:"-"`
	Title    string   `json:"title"`
	Prompt   string   `json:"prompt"`
	Images   []string `json:"images"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	AISource string   `json:"ai_source"`
}

// NewComment - входные данные для создания комментария.
type NewComment struct {
	PostID   string  `json:"-"`
	ParentID *string `json:"parent_id,omitempty"`
	AuthorID string  `json:"-"`
	Content  string  `json:"content"`
}

// Profile - публичный профиль пользователя.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
}

// Receipt - подтверждение записи: версия поста после изменения.
type Receipt struct {
	PostID  string `json:"post_id"`
	Version int64  `json:"version"`
}

// UserStats - статистика профиля.
type UserStats struct {
	Posts          int `json:"posts"`
	LikesReceived  int `json:"likes_received"`
	BookmarksRecvd int `json:"bookmarks_received"`
	SharesReceived int `json:"shares_received"`
	CommentsGiven  int `json:"comments_given"`
	LikesGiven     int `json:"likes_given"`
	BookmarksGiven int `json:"bookmarks_given"`
}

// MaxCommentLength - максимальная длина комментария.
const MaxCommentLength = 2000
