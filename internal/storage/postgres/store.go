package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/UkralStul/promptkaart/internal/changefeed"
	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/logging"
	"github.com/UkralStul/promptkaart/internal/metrics"
	"github.com/UkralStul/promptkaart/internal/storage"
)

// Store реализует интерфейс Storage с использованием PostgreSQL.
type Store struct {
	db  *gorm.DB
	pub changefeed.Publisher
	log *zap.Logger
}

var _ storage.Storage = (*Store)(nil)

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string, pub changefeed.Publisher, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logging.GormLevel(log)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(db, pub, log)
}

// NewWithDB оборачивает уже открытое соединение и выполняет миграцию схемы.
func NewWithDB(db *gorm.DB, pub changefeed.Publisher, log *zap.Logger) (*Store, error) {
	if pub == nil {
		pub = storage.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, pub: pub, log: log.Named("postgres")}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) publish(ctx context.Context, ev domain.ChangeEvent) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish change event",
			zap.String("relation", string(ev.Relation)), zap.Error(err))
	}
}

// isUniqueViolation распознаёт нарушение уникальности у postgres и sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewNotFoundError(resource, id)
	}
	return err
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, in domain.NewPost) (*domain.PostRecord, error) {
	if err := storage.ValidateNewPost(in); err != nil {
		return nil, err
	}

	row := &postRow{
		AuthorID:  in.AuthorID,
		Title:     in.Title,
		Prompt:    in.Prompt,
		Images:    append([]string{}, in.Images...),
		Category:  in.Category,
		Tags:      storage.CleanTags(in.Tags),
		AISource:  in.AISource,
		CreatedAt: time.Now().UTC(),
	}
	// GORM заполнит ID в BeforeCreate
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		metrics.StorageWrites.WithLabelValues(string(domain.RelationPosts), "error").Inc()
		return nil, err
	}
	metrics.StorageWrites.WithLabelValues(string(domain.RelationPosts), "ok").Inc()

	s.publish(ctx, domain.ChangeEvent{
		Relation:    domain.RelationPosts,
		Kind:        domain.EventInsert,
		New:         &domain.Row{ID: row.ID, PostID: row.ID, UserID: row.AuthorID},
		Version:     row.Version,
		CommittedAt: row.CreatedAt,
	})

	recs, err := s.hydrate(ctx, []*postRow{row}, in.AuthorID)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

func (s *Store) GetPost(ctx context.Context, postID, viewerID string) (*domain.PostRecord, error) {
	var row postRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", postID).Error; err != nil {
		return nil, notFound(err, "post", postID)
	}
	recs, err := s.hydrate(ctx, []*postRow{&row}, viewerID)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

func (s *Store) ListPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error) {
	var rows []*postRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.hydrate(ctx, rows, viewerID)
}

func (s *Store) ListBookmarkedPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error) {
	if err := storage.RequireViewer(viewerID); err != nil {
		return nil, err
	}
	var rows []*postRow
	err := s.db.WithContext(ctx).
		Joins("JOIN bookmarks ON bookmarks.post_id = posts.id").
		Where("bookmarks.user_id = ?", viewerID).
		Order("posts.created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, rows, viewerID)
}

func (s *Store) DeletePost(ctx context.Context, postID, viewerID string) error {
	if err := storage.RequireViewer(viewerID); err != nil {
		return err
	}

	var authorID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row postRow
		if err := tx.Select("id", "author_id").First(&row, "id = ?", postID).Error; err != nil {
			return notFound(err, "post", postID)
		}
		if row.AuthorID != viewerID {
			return domain.NewForbiddenError("only the author can delete a post")
		}
		authorID = row.AuthorID

		commentIDs := tx.Model(&commentRow{}).Select("id").Where("post_id = ?", postID)
		if err := tx.Where("comment_id IN (?)", commentIDs).Delete(&commentLikeRow{}).Error; err != nil {
			return err
		}
		for _, m := range []any{&commentRow{}, &likeRow{}, &bookmarkRow{}} {
			if err := tx.Where("post_id = ?", postID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&postRow{}, "id = ?", postID).Error
	})
	if err != nil {
		return err
	}
	metrics.StorageWrites.WithLabelValues(string(domain.RelationPosts), "ok").Inc()

	s.publish(ctx, domain.ChangeEvent{
		Relation:    domain.RelationPosts,
		Kind:        domain.EventDelete,
		Old:         &domain.Row{ID: postID, PostID: postID, UserID: authorID},
		CommittedAt: time.Now().UTC(),
	})
	return nil
}

// hydrate подставляет авторов и флаги зрителя, сохраняя порядок строк.
func (s *Store) hydrate(ctx context.Context, rows []*postRow, viewerID string) ([]*domain.PostRecord, error) {
	out := make([]*domain.PostRecord, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	postIDs := make([]string, len(rows))
	authorIDs := make([]string, 0, len(rows))
	for i, r := range rows {
		postIDs[i] = r.ID
		authorIDs = append(authorIDs, r.AuthorID)
	}

	authors, err := s.authors(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	liked := map[string]bool{}
	bookmarked := map[string]bool{}
	if viewerID != "" {
		var likedIDs, bookmarkedIDs []string
		if err := s.db.WithContext(ctx).Model(&likeRow{}).
			Where("user_id = ? AND post_id IN ?", viewerID, postIDs).
			Pluck("post_id", &likedIDs).Error; err != nil {
			return nil, err
		}
		if err := s.db.WithContext(ctx).Model(&bookmarkRow{}).
			Where("user_id = ? AND post_id IN ?", viewerID, postIDs).
			Pluck("post_id", &bookmarkedIDs).Error; err != nil {
			return nil, err
		}
		for _, id := range likedIDs {
			liked[id] = true
		}
		for _, id := range bookmarkedIDs {
			bookmarked[id] = true
		}
	}

	for i, r := range rows {
		out[i] = &domain.PostRecord{
			ID:           r.ID,
			Author:       authors[r.AuthorID],
			Title:        r.Title,
			Prompt:       r.Prompt,
			Images:       r.Images,
			Category:     r.Category,
			Tags:         r.Tags,
			AISource:     r.AISource,
			Likes:        r.LikesCount,
			Comments:     r.CommentsCount,
			Shares:       r.SharesCount,
			IsLiked:      liked[r.ID],
			IsBookmarked: bookmarked[r.ID],
			Version:      r.Version,
			CreatedAt:    r.CreatedAt,
		}
	}
	return out, nil
}

// authors загружает профили одним запросом. Отсутствующий профиль даёт nil.
func (s *Store) authors(ctx context.Context, ids []string) (map[string]*domain.AuthorRecord, error) {
	var profiles []profileRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*domain.AuthorRecord, len(profiles))
	for _, p := range profiles {
		out[p.ID] = &domain.AuthorRecord{ID: p.ID, Name: p.Name, Avatar: p.Avatar}
	}
	return out, nil
}

// === Like & Bookmark Methods ===

func (s *Store) InsertLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.insertPair(ctx, domain.RelationLikes, &likeRow{UserID: viewerID, PostID: postID}, viewerID, postID,
		map[string]any{"likes_count": gorm.Expr("likes_count + 1")})
}

func (s *Store) DeleteLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.deletePair(ctx, domain.RelationLikes, &likeRow{}, viewerID, postID,
		map[string]any{"likes_count": gorm.Expr("CASE WHEN likes_count > 0 THEN likes_count - 1 ELSE 0 END")})
}

func (s *Store) InsertBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.insertPair(ctx, domain.RelationBookmarks, &bookmarkRow{UserID: viewerID, PostID: postID}, viewerID, postID,
		map[string]any{})
}

func (s *Store) DeleteBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.deletePair(ctx, domain.RelationBookmarks, &bookmarkRow{}, viewerID, postID, map[string]any{})
}

// bumpVersion применяет updates и увеличивает версию поста внутри транзакции.
func bumpVersion(tx *gorm.DB, postID string, updates map[string]any) (int64, error) {
	updates["version"] = gorm.Expr("version + 1")
	res := tx.Model(&postRow{}).Where("id = ?", postID).Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, domain.NewNotFoundError("post", postID)
	}
	var version int64
	if err := tx.Model(&postRow{}).Where("id = ?", postID).Pluck("version", &version).Error; err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) insertPair(ctx context.Context, rel domain.Relation, row any, viewerID, postID string, updates map[string]any) (domain.Receipt, error) {
	if err := storage.RequireViewer(viewerID); err != nil {
		return domain.Receipt{}, err
	}

	var version int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&postRow{}).Where("id = ?", postID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return domain.NewNotFoundError("post", postID)
		}
		if err := tx.Create(row).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.NewConflictError(string(rel), err)
			}
			return err
		}
		v, err := bumpVersion(tx, postID, updates)
		version = v
		return err
	})
	if err != nil {
		outcome := "error"
		if domain.KindOf(err) == domain.KindConflict {
			outcome = "conflict"
		}
		metrics.StorageWrites.WithLabelValues(string(rel), outcome).Inc()
		return domain.Receipt{}, err
	}
	metrics.StorageWrites.WithLabelValues(string(rel), "ok").Inc()

	s.publish(ctx, domain.ChangeEvent{
		Relation:    rel,
		Kind:        domain.EventInsert,
		New:         &domain.Row{ID: viewerID + ":" + postID, PostID: postID, UserID: viewerID},
		Version:     version,
		CommittedAt: time.Now().UTC(),
	})
	return domain.Receipt{PostID: postID, Version: version}, nil
}

func (s *Store) deletePair(ctx context.Context, rel domain.Relation, model any, viewerID, postID string, updates map[string]any) (domain.Receipt, error) {
	if err := storage.RequireViewer(viewerID); err != nil {
		return domain.Receipt{}, err
	}

	var (
		version int64
		deleted bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row postRow
		if err := tx.Select("id", "version").First(&row, "id = ?", postID).Error; err != nil {
			return notFound(err, "post", postID)
		}
		res := tx.Where("user_id = ? AND post_id = ?", viewerID, postID).Delete(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Удаление отсутствующей строки - не ошибка.
			version = row.Version
			return nil
		}
		deleted = true
		v, err := bumpVersion(tx, postID, updates)
		version = v
		return err
	})
	if err != nil {
		metrics.StorageWrites.WithLabelValues(string(rel), "error").Inc()
		return domain.Receipt{}, err
	}

	receipt := domain.Receipt{PostID: postID, Version: version}
	if !deleted {
		return receipt, nil
	}
	metrics.StorageWrites.WithLabelValues(string(rel), "ok").Inc()
	s.publish(ctx, domain.ChangeEvent{
		Relation:    rel,
		Kind:        domain.EventDelete,
		Old:         &domain.Row{ID: viewerID + ":" + postID, PostID: postID, UserID: viewerID},
		Version:     version,
		CommittedAt: time.Now().UTC(),
	})
	return receipt, nil
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, in domain.NewComment) (*domain.CommentRecord, domain.Receipt, error) {
	if err := storage.ValidateNewComment(in); err != nil {
		return nil, domain.Receipt{}, err
	}

	row := &commentRow{
		PostID:    in.PostID,
		ParentID:  in.ParentID,
		AuthorID:  in.AuthorID,
		Content:   in.Content,
		CreatedAt: time.Now().UTC(),
	}
	var version int64

	// Проверяем существование поста и родителя в одной транзакции
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&postRow{}).Where("id = ?", in.PostID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.NewNotFoundError("post", in.PostID)
		}

		// Если есть родитель, проверяем его существование
		if in.ParentID != nil {
			var parentCommentCount int64
			if err := tx.Model(&commentRow{}).
				Where("id = ? AND post_id = ?", *in.ParentID, in.PostID).
				Count(&parentCommentCount).Error; err != nil {
				return err
			}
			if parentCommentCount == 0 {
				return domain.NewNotFoundError("parent comment", *in.ParentID)
			}
		}

		if err := tx.Create(row).Error; err != nil {
			return err
		}
		v, err := bumpVersion(tx, in.PostID, map[string]any{"comments_count": gorm.Expr("comments_count + 1")})
		version = v
		return err
	})
	if err != nil {
		metrics.StorageWrites.WithLabelValues(string(domain.RelationComments), "error").Inc()
		return nil, domain.Receipt{}, err
	}
	metrics.StorageWrites.WithLabelValues(string(domain.RelationComments), "ok").Inc()

	s.publish(ctx, domain.ChangeEvent{
		Relation:    domain.RelationComments,
		Kind:        domain.EventInsert,
		New:         &domain.Row{ID: row.ID, PostID: row.PostID, UserID: row.AuthorID, ParentID: row.ParentID},
		Version:     version,
		CommittedAt: row.CreatedAt,
	})

	recs, err := s.commentRecords(ctx, []*commentRow{row})
	if err != nil {
		return nil, domain.Receipt{}, err
	}
	return recs[0], domain.Receipt{PostID: in.PostID, Version: version}, nil
}

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.CommentRecord, error) {
	var row commentRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "comment", id)
	}
	recs, err := s.commentRecords(ctx, []*commentRow{&row})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

func (s *Store) InsertCommentLike(ctx context.Context, viewerID, commentID string) error {
	if err := storage.RequireViewer(viewerID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&commentLikeRow{UserID: viewerID, CommentID: commentID}).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.NewConflictError("comment like", err)
			}
			return err
		}
		res := tx.Model(&commentRow{}).Where("id = ?", commentID).
			Update("likes_count", gorm.Expr("likes_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NewNotFoundError("comment", commentID)
		}
		return nil
	})
}

func (s *Store) DeleteCommentLike(ctx context.Context, viewerID, commentID string) error {
	if err := storage.RequireViewer(viewerID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND comment_id = ?", viewerID, commentID).Delete(&commentLikeRow{})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		return tx.Model(&commentRow{}).Where("id = ?", commentID).
			Update("likes_count", gorm.Expr("CASE WHEN likes_count > 0 THEN likes_count - 1 ELSE 0 END")).Error
	})
}

func (s *Store) LikedCommentIDs(ctx context.Context, viewerID string, commentIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool, len(commentIDs))
	if viewerID == "" || len(commentIDs) == 0 {
		return liked, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).Model(&commentLikeRow{}).
		Where("user_id = ? AND comment_id IN ?", viewerID, commentIDs).
		Pluck("comment_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

func (s *Store) commentRecords(ctx context.Context, rows []*commentRow) ([]*domain.CommentRecord, error) {
	out := make([]*domain.CommentRecord, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.AuthorID
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		out[i] = &domain.CommentRecord{
			ID:        r.ID,
			PostID:    r.PostID,
			ParentID:  r.ParentID,
			Author:    authors[r.AuthorID],
			Content:   r.Content,
			Likes:     r.LikesCount,
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

// === Pagination Methods ===

func (s *Store) GetCommentsByPostID(ctx context.Context, postID string, args storage.PaginationArgs) ([]*domain.CommentRecord, error) {
	// Выбираем только комментарии верхнего уровня для поста (parent_id IS NULL)
	query := s.db.WithContext(ctx).
		Where("post_id = ? AND parent_id IS NULL", postID)
	return s.paginate(ctx, query, args)
}

func (s *Store) GetCommentsByParentID(ctx context.Context, parentID string, args storage.PaginationArgs) ([]*domain.CommentRecord, error) {
	query := s.db.WithContext(ctx).Where("parent_id = ?", parentID)
	return s.paginate(ctx, query, args)
}

func (s *Store) paginate(ctx context.Context, query *gorm.DB, args storage.PaginationArgs) ([]*domain.CommentRecord, error) {
	query = query.Order("created_at ASC").Order("id ASC").Limit(args.Limit)

	// Реализация курсорной пагинации
	if args.Cursor != nil {
		var cursorComment commentRow
		// Находим время создания комментария-курсора
		if err := s.db.WithContext(ctx).First(&cursorComment, "id = ?", *args.Cursor).Error; err == nil {
			// И выбираем все записи, созданные ПОСЛЕ него
			query = query.Where("created_at > ? OR (created_at = ? AND id > ?)",
				cursorComment.CreatedAt, cursorComment.CreatedAt, cursorComment.ID)
		}
	}

	var rows []*commentRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.commentRecords(ctx, rows)
}

// === Dataloader Method ===

func (s *Store) GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.CommentRecord, error) {
	result := make(map[string][]*domain.CommentRecord, len(parentIDs))
	if len(parentIDs) == 0 {
		return result, nil
	}

	var rows []*commentRow
	// Загружаем все дочерние комментарии для всех переданных parentID одним запросом
	err := s.db.WithContext(ctx).
		Where("parent_id IN ?", parentIDs).
		Order("parent_id, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	recs, err := s.commentRecords(ctx, rows)
	if err != nil {
		return nil, err
	}
	// Группируем результаты в карту map[parentID][]*CommentRecord
	for _, c := range recs {
		if c.ParentID != nil {
			result[*c.ParentID] = append(result[*c.ParentID], c)
		}
	}
	return result, nil
}

// === Profile Methods ===

func (s *Store) UpsertProfile(ctx context.Context, p domain.Profile) (*domain.Profile, error) {
	if p.ID == "" {
		return nil, domain.NewValidationError("profile id is required")
	}
	row := profileRow{ID: p.ID, Name: p.Name, Avatar: p.Avatar, CreatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "avatar"}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, p.ID)
}

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	var row profileRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "profile", id)
	}
	return &domain.Profile{ID: row.ID, Name: row.Name, Avatar: row.Avatar, CreatedAt: row.CreatedAt}, nil
}

// UserStats считает показатели профиля параллельными запросами.
func (s *Store) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	var posts, shares, likesRecv, bookmarksRecv, commentsGiven, likesGiven, bookmarksGiven int64

	g, gctx := errgroup.WithContext(ctx)
	db := s.db.WithContext(gctx)
	g.Go(func() error {
		return db.Model(&postRow{}).Where("author_id = ?", userID).Count(&posts).Error
	})
	g.Go(func() error {
		return db.Model(&postRow{}).Where("author_id = ?", userID).
			Select("COALESCE(SUM(shares_count), 0)").Scan(&shares).Error
	})
	g.Go(func() error {
		return db.Model(&likeRow{}).Joins("JOIN posts ON posts.id = likes.post_id").
			Where("posts.author_id = ?", userID).Count(&likesRecv).Error
	})
	g.Go(func() error {
		return db.Model(&bookmarkRow{}).Joins("JOIN posts ON posts.id = bookmarks.post_id").
			Where("posts.author_id = ?", userID).Count(&bookmarksRecv).Error
	})
	g.Go(func() error {
		return db.Model(&commentRow{}).Where("author_id = ?", userID).Count(&commentsGiven).Error
	})
	g.Go(func() error {
		return db.Model(&likeRow{}).Where("user_id = ?", userID).Count(&likesGiven).Error
	})
	g.Go(func() error {
		return db.Model(&bookmarkRow{}).Where("user_id = ?", userID).Count(&bookmarksGiven).Error
	})
	if err := g.Wait(); err != nil {
		return domain.UserStats{}, err
	}

	return domain.UserStats{
		Posts:          int(posts),
		LikesReceived:  int(likesRecv),
		BookmarksRecvd: int(bookmarksRecv),
		SharesReceived: int(shares),
		CommentsGiven:  int(commentsGiven),
		LikesGiven:     int(likesGiven),
		BookmarksGiven: int(bookmarksGiven),
	}, nil
}
