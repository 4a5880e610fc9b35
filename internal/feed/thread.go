package feed

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/normalize"
)

// Node - комментарий в дереве отображения.
type Node struct {
	Comment domain.Comment
	Depth   int
	// CanReply - на этой глубине ещё можно отвечать.
	CanReply bool
	Replies  []*Node
}

// BuildTree строит дерево: корни и ответы по возрастанию времени создания.
// Ответы глубже maxDepth показываются на глубине maxDepth сразу после родителя.
// Комментарий с неизвестным родителем считается корнем.
func BuildTree(comments []domain.Comment, maxDepth int) []*Node {
	maxDepth = max(maxDepth, 0)

	known := make(map[string]bool, len(comments))
	for _, c := range comments {
		known[c.ID] = true
	}
	var roots []domain.Comment
	children := make(map[string][]domain.Comment)
	for _, c := range comments {
		if c.ParentID == nil || !known[*c.ParentID] {
			roots = append(roots, c)
			continue
		}
		children[*c.ParentID] = append(children[*c.ParentID], c)
	}
	sortComments(roots)
	for _, list := range children {
		sortComments(list)
	}

	var flatten func(c domain.Comment) []*Node
	flatten = func(c domain.Comment) []*Node {
		out := []*Node{{Comment: c, Depth: maxDepth}}
		for _, child := range children[c.ID] {
			out = append(out, flatten(child)...)
		}
		return out
	}

	var build func(c domain.Comment, depth int) *Node
	build = func(c domain.Comment, depth int) *Node {
		n := &Node{Comment: c, Depth: depth, CanReply: true}
		for _, child := range children[c.ID] {
			if depth+1 < maxDepth {
				n.Replies = append(n.Replies, build(child, depth+1))
			} else {
				n.Replies = append(n.Replies, flatten(child)...)
			}
		}
		return n
	}

	out := make([]*Node, 0, len(roots))
	for _, r := range roots {
		if maxDepth == 0 {
			out = append(out, flatten(r)...)
			continue
		}
		out = append(out, build(r, 0))
	}
	return out
}

func sortComments(list []domain.Comment) {
	slices.SortStableFunc(list, func(a, b domain.Comment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

// Thread - комментарии одного поста. Перезагружается по событиям ленты изменений.
type Thread struct {
	e        *Engine
	postID   string
	maxDepth int
	log      *zap.Logger

	mu           sync.Mutex
	comments     []domain.Comment
	pending      map[string]bool
	listeners    map[int]func([]*Node)
	nextListener int

	notifyMu sync.Mutex

	kick      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// OpenThread загружает комментарии поста и держит их актуальными до Close.
func (e *Engine) OpenThread(ctx context.Context, postID string) (*Thread, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	t := &Thread{
		e:         e,
		postID:    postID,
		maxDepth:  e.opts.MaxDepth,
		log:       e.log.With(zap.String("post_id", postID)),
		pending:   make(map[string]bool),
		listeners: make(map[int]func([]*Node)),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	t.ctx, t.cancel = context.WithCancel(e.ctx)

	if err := t.Reload(ctx); err != nil {
		t.cancel()
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		t.cancel()
		return nil, ErrClosed
	}
	e.threads[t] = struct{}{}
	e.wg.Add(1)
	e.mu.Unlock()

	go t.loop()
	return t, nil
}

// PostID - пост, которому принадлежит ветка.
func (t *Thread) PostID() string { return t.postID }

// Comments - плоский список комментариев.
func (t *Thread) Comments() []domain.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.comments)
}

// Tree - дерево для отображения.
func (t *Thread) Tree() []*Node {
	return BuildTree(t.Comments(), t.maxDepth)
}

// OnChange регистрирует подписчика на изменения дерева.
func (t *Thread) OnChange(fn func([]*Node)) func() {
	t.mu.Lock()
	id := t.nextListener
	t.nextListener++
	t.listeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Reload перезагружает комментарии. Параллельные вызовы объединяются.
func (t *Thread) Reload(ctx context.Context) error {
	_, err, _ := t.e.group.Do("comments:"+t.postID, func() (any, error) {
		ctx, cancel := t.e.call(ctx)
		defer cancel()

		recs, err := t.e.src.ListComments(ctx, t.postID, t.e.session.ViewerID)
		if err != nil {
			return nil, remoteErr(err)
		}
		comments := make([]domain.Comment, 0, len(recs))
		for _, r := range recs {
			if r != nil {
				comments = append(comments, normalize.Comment(*r))
			}
		}
		t.replace(comments)
		return nil, nil
	})
	return err
}

// Reply отвечает на комментарий parentID.
func (t *Thread) Reply(ctx context.Context, parentID, body string) (domain.Comment, error) {
	return t.e.AddComment(ctx, t.postID, body, parentID)
}

// ToggleCommentLike переключает лайк комментария с откатом при ошибке.
func (t *Thread) ToggleCommentLike(ctx context.Context, commentID string) error {
	if t.e.session.Anonymous() {
		return domain.ErrNotAuthenticated
	}

	t.mu.Lock()
	i := t.index(commentID)
	if i < 0 {
		t.mu.Unlock()
		return domain.NewNotFoundError("comment", commentID)
	}
	snapshot := t.comments[i]
	target := !snapshot.IsLiked
	t.setLocked(i, likeComment(snapshot, target))
	t.pending[commentID] = target
	t.mu.Unlock()
	t.notify()

	ctx, cancel := t.e.call(ctx)
	defer cancel()
	var err error
	if target {
		err = t.e.src.InsertCommentLike(ctx, t.e.session.ViewerID, commentID)
	} else {
		err = t.e.src.DeleteCommentLike(ctx, t.e.session.ViewerID, commentID)
	}

	t.mu.Lock()
	delete(t.pending, commentID)
	if err != nil {
		if j := t.index(commentID); j >= 0 {
			c := t.comments[j]
			c.IsLiked = snapshot.IsLiked
			c.Likes = snapshot.Likes
			t.setLocked(j, c)
		}
	}
	t.mu.Unlock()

	if err != nil {
		err = remoteErr(err)
		t.log.Info("comment like rolled back", zap.String("comment_id", commentID), zap.Error(err))
		t.notify()
		return err
	}
	return nil
}

// Close останавливает фоновую перезагрузку ветки.
func (t *Thread) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		t.e.mu.Lock()
		delete(t.e.threads, t)
		t.e.mu.Unlock()
		<-t.done
	})
}

func (t *Thread) loop() {
	defer t.e.wg.Done()
	defer close(t.done)

	timer := time.NewTimer(t.e.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.kick:
			timer.Reset(t.e.opts.Debounce)
		case <-timer.C:
			if err := t.Reload(t.ctx); err != nil && t.ctx.Err() == nil {
				t.log.Warn("comments reload failed", zap.Error(err))
			}
		}
	}
}

func (t *Thread) scheduleReload() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// replace заменяет список, сохраняя неподтверждённые лайки.
func (t *Thread) replace(comments []domain.Comment) {
	t.mu.Lock()
	for i, c := range comments {
		if target, ok := t.pending[c.ID]; ok {
			comments[i] = likeComment(c, target)
		}
	}
	t.comments = comments
	t.mu.Unlock()
	t.notify()
}

// insert добавляет собственный комментарий, не дожидаясь перезагрузки.
func (t *Thread) insert(c domain.Comment) {
	t.mu.Lock()
	if t.index(c.ID) >= 0 {
		t.mu.Unlock()
		return
	}
	t.comments = append(slices.Clone(t.comments), c)
	t.mu.Unlock()
	t.notify()
}

func (t *Thread) notify() {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if len(t.listeners) == 0 {
		t.mu.Unlock()
		return
	}
	listeners := make([]func([]*Node), 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	comments := slices.Clone(t.comments)
	t.mu.Unlock()

	tree := BuildTree(comments, t.maxDepth)
	for _, fn := range listeners {
		fn(tree)
	}
}

func (t *Thread) index(commentID string) int {
	return slices.IndexFunc(t.comments, func(c domain.Comment) bool { return c.ID == commentID })
}

func (t *Thread) setLocked(i int, c domain.Comment) {
	t.comments = slices.Clone(t.comments)
	t.comments[i] = c
}

func likeComment(c domain.Comment, liked bool) domain.Comment {
	if c.IsLiked == liked {
		return c
	}
	c.IsLiked = liked
	c.Likes = adjust(c.Likes, liked)
	return c
}
