package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/changefeed"
	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/metrics"
	"github.com/UkralStul/promptkaart/internal/storage"
)

type postRow struct {
	id        string
	authorID  string
	title     string
	prompt    string
	images    []string
	category  string
	tags      []string
	aiSource  string
	likes     int
	comments  int
	shares    int
	version   int64
	createdAt time.Time
}

type commentRow struct {
	id        string
	postID    string
	parentID  *string
	authorID  string
	content   string
	likes     int
	createdAt time.Time
}

// pair - ключ строки связи (пользователь, объект).
type pair struct {
	userID   string
	targetID string
}

// Store реализует интерфейс Storage в памяти.
type Store struct {
	mu               sync.RWMutex
	posts            map[string]*postRow
	comments         map[string]*commentRow
	commentsByPost   map[string][]string // map[postID][]commentID (только корневые)
	commentsByParent map[string][]string // map[parentID][]commentID
	likes            map[pair]struct{}
	bookmarks        map[pair]struct{}
	commentLikes     map[pair]struct{}
	profiles         map[string]*domain.Profile

	pub changefeed.Publisher
	log *zap.Logger
	now func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// New создает новый экземпляр in-memory хранилища.
// pub получает события изменений; nil - события не публикуются.
func New(pub changefeed.Publisher, log *zap.Logger) *Store {
	if pub == nil {
		pub = storage.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		posts:            make(map[string]*postRow),
		comments:         make(map[string]*commentRow),
		commentsByPost:   make(map[string][]string),
		commentsByParent: make(map[string][]string),
		likes:            make(map[pair]struct{}),
		bookmarks:        make(map[pair]struct{}),
		commentLikes:     make(map[pair]struct{}),
		profiles:         make(map[string]*domain.Profile),
		pub:              pub,
		log:              log.Named("inmemory"),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Close ничего не освобождает.
func (s *Store) Close() error { return nil }

// publish вызывается без удержания блокировки.
func (s *Store) publish(ctx context.Context, events ...domain.ChangeEvent) {
	for _, ev := range events {
		if err := s.pub.Publish(ctx, ev); err != nil {
			s.log.Warn("failed to publish change event",
				zap.String("relation", string(ev.Relation)), zap.Error(err))
		}
	}
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, in domain.NewPost) (*domain.PostRecord, error) {
	if err := storage.ValidateNewPost(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	p := &postRow{
		id:        uuid.NewString(),
		authorID:  in.AuthorID,
		title:     in.Title,
		prompt:    in.Prompt,
		images:    append([]string{}, in.Images...),
		category:  in.Category,
		tags:      storage.CleanTags(in.Tags),
		aiSource:  in.AISource,
		createdAt: s.now(),
	}
	s.posts[p.id] = p
	rec := s.recordLocked(p, in.AuthorID)
	ev := domain.ChangeEvent{
		Relation:    domain.RelationPosts,
		Kind:        domain.EventInsert,
		New:         &domain.Row{ID: p.id, PostID: p.id, UserID: p.authorID},
		Version:     p.version,
		CommittedAt: p.createdAt,
	}
	s.mu.Unlock()

	metrics.StorageWrites.WithLabelValues(string(domain.RelationPosts), "ok").Inc()
	s.publish(ctx, ev)
	return rec, nil
}

func (s *Store) GetPost(ctx context.Context, postID, viewerID string) (*domain.PostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[postID]
	if !ok {
		return nil, domain.NewNotFoundError("post", postID)
	}
	return s.recordLocked(p, viewerID), nil
}

func (s *Store) ListPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allPosts := make([]*postRow, 0, len(s.posts))
	for _, p := range s.posts {
		allPosts = append(allPosts, p)
	}
	return s.recordsLocked(allPosts, viewerID), nil
}

func (s *Store) ListBookmarkedPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error) {
	if err := storage.RequireViewer(viewerID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bookmarked := make([]*postRow, 0)
	for k := range s.bookmarks {
		if k.userID != viewerID {
			continue
		}
		if p, ok := s.posts[k.targetID]; ok {
			bookmarked = append(bookmarked, p)
		}
	}
	return s.recordsLocked(bookmarked, viewerID), nil
}

func (s *Store) DeletePost(ctx context.Context, postID, viewerID string) error {
	if err := storage.RequireViewer(viewerID); err != nil {
		return err
	}

	s.mu.Lock()
	p, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		return domain.NewNotFoundError("post", postID)
	}
	if p.authorID != viewerID {
		s.mu.Unlock()
		return domain.NewForbiddenError("only the author can delete a post")
	}

	delete(s.posts, postID)
	for id, c := range s.comments {
		if c.postID != postID {
			continue
		}
		delete(s.comments, id)
		delete(s.commentsByParent, id)
		for k := range s.commentLikes {
			if k.targetID == id {
				delete(s.commentLikes, k)
			}
		}
	}
	delete(s.commentsByPost, postID)
	for k := range s.likes {
		if k.targetID == postID {
			delete(s.likes, k)
		}
	}
	for k := range s.bookmarks {
		if k.targetID == postID {
			delete(s.bookmarks, k)
		}
	}
	ev := domain.ChangeEvent{
		Relation:    domain.RelationPosts,
		Kind:        domain.EventDelete,
		Old:         &domain.Row{ID: postID, PostID: postID, UserID: p.authorID},
		CommittedAt: s.now(),
	}
	s.mu.Unlock()

	metrics.StorageWrites.WithLabelValues(string(domain.RelationPosts), "ok").Inc()
	s.publish(ctx, ev)
	return nil
}

// recordsLocked сортирует посты от новых к старым и заполняет флаги зрителя.
func (s *Store) recordsLocked(rows []*postRow, viewerID string) []*domain.PostRecord {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].createdAt.After(rows[j].createdAt)
	})
	out := make([]*domain.PostRecord, len(rows))
	for i, p := range rows {
		out[i] = s.recordLocked(p, viewerID)
	}
	return out
}

func (s *Store) recordLocked(p *postRow, viewerID string) *domain.PostRecord {
	rec := &domain.PostRecord{
		ID:        p.id,
		Author:    s.authorLocked(p.authorID),
		Title:     p.title,
		Prompt:    p.prompt,
		Images:    append([]string{}, p.images...),
		Category:  p.category,
		Tags:      append([]string{}, p.tags...),
		AISource:  p.aiSource,
		Likes:     p.likes,
		Comments:  p.comments,
		Shares:    p.shares,
		Version:   p.version,
		CreatedAt: p.createdAt,
	}
	if viewerID != "" {
		_, rec.IsLiked = s.likes[pair{viewerID, p.id}]
		_, rec.IsBookmarked = s.bookmarks[pair{viewerID, p.id}]
	}
	return rec
}

// authorLocked возвращает nil, если профиль удалён.
func (s *Store) authorLocked(id string) *domain.AuthorRecord {
	pr, ok := s.profiles[id]
	if !ok {
		return nil
	}
	return &domain.AuthorRecord{ID: pr.ID, Name: pr.Name, Avatar: pr.Avatar}
}

// === Like & Bookmark Methods ===

func (s *Store) InsertLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.insertPair(ctx, domain.RelationLikes, s.likes, viewerID, postID, func(p *postRow) { p.likes++ })
}

func (s *Store) DeleteLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.deletePair(ctx, domain.RelationLikes, s.likes, viewerID, postID, func(p *postRow) {
		if p.likes > 0 {
			p.likes--
		}
	})
}

func (s *Store) InsertBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.insertPair(ctx, domain.RelationBookmarks, s.bookmarks, viewerID, postID, func(*postRow) {})
}

func (s *Store) DeleteBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.deletePair(ctx, domain.RelationBookmarks, s.bookmarks, viewerID, postID, func(*postRow) {})
}

func (s *Store) insertPair(ctx context.Context, rel domain.Relation, set map[pair]struct{}, viewerID, postID string, apply func(*postRow)) (domain.Receipt, error) {
	if err := storage.RequireViewer(viewerID); err != nil {
		return domain.Receipt{}, err
	}

	s.mu.Lock()
	p, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		return domain.Receipt{}, domain.NewNotFoundError("post", postID)
	}
	key := pair{viewerID, postID}
	if _, exists := set[key]; exists {
		s.mu.Unlock()
		metrics.StorageWrites.WithLabelValues(string(rel), "conflict").Inc()
		return domain.Receipt{}, domain.NewConflictError(string(rel), nil)
	}
	set[key] = struct{}{}
	apply(p)
	p.version++
	receipt := domain.Receipt{PostID: postID, Version: p.version}
	ev := domain.ChangeEvent{
		Relation:    rel,
		Kind:        domain.EventInsert,
		New:         &domain.Row{ID: viewerID + ":" + postID, PostID: postID, UserID: viewerID},
		Version:     p.version,
		CommittedAt: s.now(),
	}
	s.mu.Unlock()

	metrics.StorageWrites.WithLabelValues(string(rel), "ok").Inc()
	s.publish(ctx, ev)
	return receipt, nil
}

func (s *Store) deletePair(ctx context.Context, rel domain.Relation, set map[pair]struct{}, viewerID, postID string, apply func(*postRow)) (domain.Receipt, error) {
	if err := storage.RequireViewer(viewerID); err != nil {
		return domain.Receipt{}, err
	}

	s.mu.Lock()
	p, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		return domain.Receipt{}, domain.NewNotFoundError("post", postID)
	}
	key := pair{viewerID, postID}
	if _, exists := set[key]; !exists {
		// Удаление отсутствующей строки - не ошибка.
		receipt := domain.Receipt{PostID: postID, Version: p.version}
		s.mu.Unlock()
		return receipt, nil
	}
	delete(set, key)
	apply(p)
	p.version++
	receipt := domain.Receipt{PostID: postID, Version: p.version}
	ev := domain.ChangeEvent{
		Relation:    rel,
		Kind:        domain.EventDelete,
		Old:         &domain.Row{ID: viewerID + ":" + postID, PostID: postID, UserID: viewerID},
		Version:     p.version,
		CommittedAt: s.now(),
	}
	s.mu.Unlock()

	metrics.StorageWrites.WithLabelValues(string(rel), "ok").Inc()
	s.publish(ctx, ev)
	return receipt, nil
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, in domain.NewComment) (*domain.CommentRecord, domain.Receipt, error) {
	if err := storage.ValidateNewComment(in); err != nil {
		return nil, domain.Receipt{}, err
	}

	s.mu.Lock()
	// Проверка поста
	post, ok := s.posts[in.PostID]
	if !ok {
		s.mu.Unlock()
		return nil, domain.Receipt{}, domain.NewNotFoundError("post", in.PostID)
	}

	// Проверка родительского комментария
	if in.ParentID != nil {
		parent, ok := s.comments[*in.ParentID]
		if !ok || parent.postID != in.PostID {
			s.mu.Unlock()
			return nil, domain.Receipt{}, domain.NewNotFoundError("parent comment", *in.ParentID)
		}
	}

	c := &commentRow{
		id:        uuid.NewString(),
		postID:    in.PostID,
		authorID:  in.AuthorID,
		content:   in.Content,
		createdAt: s.now(),
	}
	if in.ParentID != nil {
		parentID := *in.ParentID
		c.parentID = &parentID
	}
	s.comments[c.id] = c

	// Обновление индексов для иерархии
	if c.parentID == nil {
		s.commentsByPost[c.postID] = append(s.commentsByPost[c.postID], c.id)
	} else {
		s.commentsByParent[*c.parentID] = append(s.commentsByParent[*c.parentID], c.id)
	}

	post.comments++
	post.version++
	receipt := domain.Receipt{PostID: post.id, Version: post.version}
	rec := s.commentRecordLocked(c, in.AuthorID)
	ev := domain.ChangeEvent{
		Relation:    domain.RelationComments,
		Kind:        domain.EventInsert,
		New:         &domain.Row{ID: c.id, PostID: c.postID, UserID: c.authorID, ParentID: c.parentID},
		Version:     post.version,
		CommittedAt: c.createdAt,
	}
	s.mu.Unlock()

	metrics.StorageWrites.WithLabelValues(string(domain.RelationComments), "ok").Inc()
	s.publish(ctx, ev)
	return rec, receipt, nil
}

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.CommentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comment, ok := s.comments[id]
	if !ok {
		return nil, domain.NewNotFoundError("comment", id)
	}
	return s.commentRecordLocked(comment, ""), nil
}

func (s *Store) InsertCommentLike(ctx context.Context, viewerID, commentID string) error {
	if err := storage.RequireViewer(viewerID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return domain.NewNotFoundError("comment", commentID)
	}
	key := pair{viewerID, commentID}
	if _, exists := s.commentLikes[key]; exists {
		return domain.NewConflictError("comment like", nil)
	}
	s.commentLikes[key] = struct{}{}
	c.likes++
	return nil
}

func (s *Store) DeleteCommentLike(ctx context.Context, viewerID, commentID string) error {
	if err := storage.RequireViewer(viewerID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return domain.NewNotFoundError("comment", commentID)
	}
	key := pair{viewerID, commentID}
	if _, exists := s.commentLikes[key]; !exists {
		return nil
	}
	delete(s.commentLikes, key)
	if c.likes > 0 {
		c.likes--
	}
	return nil
}

func (s *Store) LikedCommentIDs(ctx context.Context, viewerID string, commentIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool, len(commentIDs))
	if viewerID == "" {
		return liked, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range commentIDs {
		if _, ok := s.commentLikes[pair{viewerID, id}]; ok {
			liked[id] = true
		}
	}
	return liked, nil
}

func (s *Store) commentRecordLocked(c *commentRow, viewerID string) *domain.CommentRecord {
	rec := &domain.CommentRecord{
		ID:        c.id,
		PostID:    c.postID,
		Author:    s.authorLocked(c.authorID),
		Content:   c.content,
		Likes:     c.likes,
		CreatedAt: c.createdAt,
	}
	if c.parentID != nil {
		parentID := *c.parentID
		rec.ParentID = &parentID
	}
	if viewerID != "" {
		_, rec.IsLiked = s.commentLikes[pair{viewerID, c.id}]
	}
	return rec
}

// === Pagination Methods ===

func (s *Store) GetCommentsByPostID(ctx context.Context, postID string, args storage.PaginationArgs) ([]*domain.CommentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commentIDs, ok := s.commentsByPost[postID]
	if !ok {
		return []*domain.CommentRecord{}, nil
	}

	return s.paginateComments(commentIDs, args), nil
}

func (s *Store) GetCommentsByParentID(ctx context.Context, parentID string, args storage.PaginationArgs) ([]*domain.CommentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commentIDs, ok := s.commentsByParent[parentID]
	if !ok {
		return []*domain.CommentRecord{}, nil
	}

	return s.paginateComments(commentIDs, args), nil
}

// paginateComments - вспомогательная функция для пагинации
func (s *Store) paginateComments(ids []string, args storage.PaginationArgs) []*domain.CommentRecord {
	allComments := s.sortedLocked(ids)

	startIndex := 0
	if args.Cursor != nil {
		for i, c := range allComments {
			if c.id == *args.Cursor {
				startIndex = i + 1
				break
			}
		}
	}

	if startIndex >= len(allComments) {
		return []*domain.CommentRecord{}
	}

	endIndex := startIndex + args.Limit
	if endIndex > len(allComments) {
		endIndex = len(allComments)
	}

	out := make([]*domain.CommentRecord, 0, endIndex-startIndex)
	for _, c := range allComments[startIndex:endIndex] {
		out = append(out, s.commentRecordLocked(c, ""))
	}
	return out
}

// sortedLocked сортирует по времени создания, чтобы пагинация была консистентной.
func (s *Store) sortedLocked(ids []string) []*commentRow {
	rows := make([]*commentRow, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.comments[id]; ok {
			rows = append(rows, c)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].createdAt.Before(rows[j].createdAt)
	})
	return rows
}

// === Dataloader Methods ===

func (s *Store) GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.CommentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string][]*domain.CommentRecord, len(parentIDs))
	for _, pID := range parentIDs {
		children := s.sortedLocked(s.commentsByParent[pID])
		recs := make([]*domain.CommentRecord, len(children))
		for i, c := range children {
			recs[i] = s.commentRecordLocked(c, "")
		}
		results[pID] = recs
	}

	return results, nil
}

// === Profile Methods ===

func (s *Store) UpsertProfile(ctx context.Context, p domain.Profile) (*domain.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = s.now()
	}
	stored := p
	s.profiles[p.ID] = &stored
	return &p, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, domain.NewNotFoundError("profile", id)
	}
	out := *p
	return &out, nil
}

// DeleteProfile удаляет профиль; посты остаются с "удалённым" автором.
func (s *Store) DeleteProfile(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
}

func (s *Store) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st domain.UserStats
	own := make(map[string]struct{})
	for _, p := range s.posts {
		if p.authorID == userID {
			own[p.id] = struct{}{}
			st.Posts++
			st.SharesReceived += p.shares
		}
	}
	for k := range s.likes {
		if k.userID == userID {
			st.LikesGiven++
		}
		if _, ok := own[k.targetID]; ok {
			st.LikesReceived++
		}
	}
	for k := range s.bookmarks {
		if k.userID == userID {
			st.BookmarksGiven++
		}
		if _, ok := own[k.targetID]; ok {
			st.BookmarksRecvd++
		}
	}
	for _, c := range s.comments {
		if c.authorID == userID {
			st.CommentsGiven++
		}
	}
	return st, nil
}
