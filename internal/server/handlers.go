package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/UkralStul/promptkaart/internal/auth"
	"github.com/UkralStul/promptkaart/internal/dataloader"
	"github.com/UkralStul/promptkaart/internal/domain"
)

// === Auth ===

type sessionRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// SessionResponse - ответ POST /auth/session.
type SessionResponse struct {
	Token   string          `json:"token"`
	Profile *domain.Profile `json:"profile"`
}

// createSession заводит (или обновляет) профиль и выдаёт токен.
// Вход пользователя вне этого сервиса, здесь только сессия.
// Существующий профиль обновляет и получает на него токен только сам владелец.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UserID == "" {
		req.UserID = uuid.NewString()
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, r, domain.NewValidationError("name is required"))
		return
	}

	if err := s.claimProfile(r, req.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := s.store.UpsertProfile(r.Context(), domain.Profile{ID: req.UserID, Name: req.Name, Avatar: req.Avatar})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.tokens.Issue(profile.ID, profile.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{Token: token, Profile: profile})
}

// claimProfile пропускает новый id или id, совпадающий с владельцем токена.
func (s *Server) claimProfile(r *http.Request, userID string) error {
	_, err := s.store.GetProfile(r.Context(), userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	if auth.ViewerFrom(r.Context()) != userID {
		return domain.NewForbiddenError("profile belongs to another user")
	}
	return nil
}

// === Posts ===

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListPosts(r.Context(), auth.ViewerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) listBookmarks(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListBookmarkedPosts(r.Context(), auth.ViewerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.GetPost(r.Context(), chi.URLParam(r, "postID"), auth.ViewerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var in domain.NewPost
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.AuthorID = auth.ViewerFrom(r.Context())

	post, err := s.store.CreatePost(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePost(r.Context(), chi.URLParam(r, "postID"), auth.ViewerFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Likes & Bookmarks ===

func (s *Server) writeReceipt(w http.ResponseWriter, r *http.Request, rec domain.Receipt, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) likePost(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.InsertLike(r.Context(), auth.ViewerFrom(r.Context()), chi.URLParam(r, "postID"))
	s.writeReceipt(w, r, rec, err)
}

func (s *Server) unlikePost(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.DeleteLike(r.Context(), auth.ViewerFrom(r.Context()), chi.URLParam(r, "postID"))
	s.writeReceipt(w, r, rec, err)
}

func (s *Server) bookmarkPost(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.InsertBookmark(r.Context(), auth.ViewerFrom(r.Context()), chi.URLParam(r, "postID"))
	s.writeReceipt(w, r, rec, err)
}

func (s *Server) unbookmarkPost(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.DeleteBookmark(r.Context(), auth.ViewerFrom(r.Context()), chi.URLParam(r, "postID"))
	s.writeReceipt(w, r, rec, err)
}

// === Comments ===

// PageInfo - курсор следующей страницы.
type PageInfo struct {
	HasNextPage bool    `json:"has_next_page"`
	EndCursor   *string `json:"end_cursor,omitempty"`
}

// CommentPage - страница корневых комментариев вместе со всеми их ответами.
type CommentPage struct {
	Comments []*domain.CommentRecord `json:"comments"`
	PageInfo PageInfo                `json:"page_info"`
}

// CommentCreated - ответ POST /posts/{id}/comments.
type CommentCreated struct {
	Comment *domain.CommentRecord `json:"comment"`
	Receipt domain.Receipt        `json:"receipt"`
}

// trimPage отрезает лишний элемент, запрошенный сверх limit для hasNextPage.
func trimPage(comments []*domain.CommentRecord, limit int) ([]*domain.CommentRecord, PageInfo) {
	hasNextPage := len(comments) > limit
	if hasNextPage {
		comments = comments[:limit] // Убираем лишний элемент
	}
	info := PageInfo{HasNextPage: hasNextPage}
	if len(comments) > 0 {
		info.EndCursor = &comments[len(comments)-1].ID
	}
	return comments, info
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	postID := chi.URLParam(r, "postID")
	args, err := pageArgs(r, 10)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.store.GetPost(ctx, postID, ""); err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := args.Limit
	args.Limit++
	roots, err := s.store.GetCommentsByPostID(ctx, postID, args)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	roots, info := trimPage(roots, limit)

	// Ответы загружаются батчами по уровням дерева
	descendants, err := dataloader.For(ctx).Descendants(ctx, roots)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	all := append(roots, descendants...)

	if err := s.markLiked(r, all); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CommentPage{Comments: all, PageInfo: info})
}

// listReplies - страница прямых ответов на комментарий.
func (s *Server) listReplies(w http.ResponseWriter, r *http.Request) {
	args, err := pageArgs(r, 5)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit := args.Limit
	args.Limit++
	replies, err := s.store.GetCommentsByParentID(r.Context(), chi.URLParam(r, "commentID"), args)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	replies, info := trimPage(replies, limit)
	if err := s.markLiked(r, replies); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CommentPage{Comments: replies, PageInfo: info})
}

func (s *Server) markLiked(r *http.Request, comments []*domain.CommentRecord) error {
	viewerID := auth.ViewerFrom(r.Context())
	if viewerID == "" || len(comments) == 0 {
		return nil
	}
	ids := make([]string, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}
	liked, err := s.store.LikedCommentIDs(r.Context(), viewerID, ids)
	if err != nil {
		return err
	}
	for _, c := range comments {
		c.IsLiked = liked[c.ID]
	}
	return nil
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var in domain.NewComment
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.PostID = chi.URLParam(r, "postID")
	in.AuthorID = auth.ViewerFrom(r.Context())
	if in.ParentID != nil && *in.ParentID == "" {
		in.ParentID = nil
	}

	comment, receipt, err := s.store.CreateComment(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CommentCreated{Comment: comment, Receipt: receipt})
}

func (s *Server) likeComment(w http.ResponseWriter, r *http.Request) {
	err := s.store.InsertCommentLike(r.Context(), auth.ViewerFrom(r.Context()), chi.URLParam(r, "commentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unlikeComment(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteCommentLike(r.Context(), auth.ViewerFrom(r.Context()), chi.URLParam(r, "commentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Profiles ===

func (s *Server) userStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.UserStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
