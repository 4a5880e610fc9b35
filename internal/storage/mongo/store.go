// Package mongo реализует Storage поверх MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/UkralStul/promptkaart/internal/changefeed"
	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/metrics"
	"github.com/UkralStul/promptkaart/internal/storage"
)

type profileDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Avatar    string    `bson:"avatar"`
	CreatedAt time.Time `bson:"createdAt"`
}

type postDoc struct {
	ID        string    `bson:"_id"`
	AuthorID  string    `bson:"authorId"`
	Title     string    `bson:"title"`
	Prompt    string    `bson:"prompt"`
	Images    []string  `bson:"images"`
	Category  string    `bson:"category"`
	Tags      []string  `bson:"tags"`
	AISource  string    `bson:"aiSource"`
	Likes     int       `bson:"likes"`
	Comments  int       `bson:"comments"`
	Shares    int       `bson:"shares"`
	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"createdAt"`
}

// pairDoc - лайк, закладка или лайк комментария. _id = userID:targetID.
type pairDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	TargetID  string    `bson:"targetId"`
	CreatedAt time.Time `bson:"createdAt"`
}

type commentDoc struct {
	ID        string    `bson:"_id"`
	PostID    string    `bson:"postId"`
	ParentID  *string   `bson:"parentId"`
	AuthorID  string    `bson:"authorId"`
	Content   string    `bson:"content"`
	Likes     int       `bson:"likes"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Store реализует интерфейс Storage с использованием MongoDB.
type Store struct {
	client       *mongo.Client
	profiles     *mongo.Collection
	posts        *mongo.Collection
	likes        *mongo.Collection
	bookmarks    *mongo.Collection
	comments     *mongo.Collection
	commentLikes *mongo.Collection

	pub changefeed.Publisher
	log *zap.Logger
}

var _ storage.Storage = (*Store)(nil)

// Connect подключается к MongoDB, проверяет соединение и создаёт индексы.
func Connect(ctx context.Context, uri, database string, pub changefeed.Publisher, log *zap.Logger) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := newStore(client, client.Database(database), pub, log)
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func newStore(client *mongo.Client, db *mongo.Database, pub changefeed.Publisher, log *zap.Logger) *Store {
	if pub == nil {
		pub = storage.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		client:       client,
		profiles:     db.Collection("profiles"),
		posts:        db.Collection("posts"),
		likes:        db.Collection("likes"),
		bookmarks:    db.Collection("bookmarks"),
		comments:     db.Collection("comments"),
		commentLikes: db.Collection("comment_likes"),
		pub:          pub,
		log:          log.Named("mongo"),
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.posts: {
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "authorId", Value: 1}}},
		},
		s.likes:        {{Keys: bson.D{{Key: "targetId", Value: 1}}}, {Keys: bson.D{{Key: "userId", Value: 1}}}},
		s.bookmarks:    {{Keys: bson.D{{Key: "targetId", Value: 1}}}, {Keys: bson.D{{Key: "userId", Value: 1}}}},
		s.commentLikes: {{Keys: bson.D{{Key: "targetId", Value: 1}}}},
		s.comments: {
			{Keys: bson.D{{Key: "postId", Value: 1}, {Key: "parentId", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "parentId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) publish(ctx context.Context, ev domain.ChangeEvent) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish change event",
			zap.String("relation", string(ev.Relation)), zap.Error(err))
	}
}

func pairID(userID, targetID string) string { return userID + ":" + targetID }

func notFound(err error, resource, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.NewNotFoundError(resource, id)
	}
	return err
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, in domain.NewPost) (*domain.PostRecord, error) {
	if err := storage.ValidateNewPost(in); err != nil {
		return nil, err
	}
	doc := postDoc{
		ID:        uuid.NewString(),
		AuthorID:  in.AuthorID,
		Title:     in.Title,
		Prompt:    in.Prompt,
		Images:    append([]string{}, in.Images...),
		Category:  in.Category,
		Tags:      storage.CleanTags(in.Tags),
		AISource:  in.AISource,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.posts.InsertOne(ctx, doc); err != nil {
		metrics.StorageWrites.WithLabelValues(string(domain.RelationPosts), "error").Inc()
		return nil, err
	}
	metrics.StorageWrites.WithLabelValues(string(domain.RelationPosts), "ok").Inc()

	s.publish(ctx, domain.ChangeEvent{
		Relation:    domain.RelationPosts,
		Kind:        domain.EventInsert,
		New:         &domain.Row{ID: doc.ID, PostID: doc.ID, UserID: doc.AuthorID},
		CommittedAt: doc.CreatedAt,
	})

	recs, err := s.hydrate(ctx, []postDoc{doc}, in.AuthorID)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

func (s *Store) GetPost(ctx context.Context, postID, viewerID string) (*domain.PostRecord, error) {
	var doc postDoc
	if err := s.posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&doc); err != nil {
		return nil, notFound(err, "post", postID)
	}
	recs, err := s.hydrate(ctx, []postDoc{doc}, viewerID)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

func (s *Store) ListPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error) {
	docs, err := s.findPosts(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, docs, viewerID)
}

func (s *Store) ListBookmarkedPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error) {
	if err := storage.RequireViewer(viewerID); err != nil {
		return nil, err
	}
	ids, err := s.targetIDs(ctx, s.bookmarks, bson.M{"userId": viewerID})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.PostRecord{}, nil
	}
	docs, err := s.findPosts(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, docs, viewerID)
}

func (s *Store) findPosts(ctx context.Context, filter bson.M) ([]postDoc, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []postDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) DeletePost(ctx context.Context, postID, viewerID string) error {
	if err := storage.RequireViewer(viewerID); err != nil {
		return err
	}
	var doc postDoc
	if err := s.posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&doc); err != nil {
		return notFound(err, "post", postID)
	}
	if doc.AuthorID != viewerID {
		return domain.NewForbiddenError("only the author can delete a post")
	}
	if _, err := s.posts.DeleteOne(ctx, bson.M{"_id": postID}); err != nil {
		return err
	}

	// Каскад: комментарии, их лайки, лайки и закладки поста
	commentIDs, err := s.commentIDs(ctx, bson.M{"postId": postID})
	if err != nil {
		return err
	}
	if len(commentIDs) > 0 {
		if _, err := s.commentLikes.DeleteMany(ctx, bson.M{"targetId": bson.M{"$in": commentIDs}}); err != nil {
			return err
		}
	}
	for _, coll := range []*mongo.Collection{s.likes, s.bookmarks} {
		if _, err := coll.DeleteMany(ctx, bson.M{"targetId": postID}); err != nil {
			return err
		}
	}
	if _, err := s.comments.DeleteMany(ctx, bson.M{"postId": postID}); err != nil {
		return err
	}
	metrics.StorageWrites.WithLabelValues(string(domain.RelationPosts), "ok").Inc()

	s.publish(ctx, domain.ChangeEvent{
		Relation:    domain.RelationPosts,
		Kind:        domain.EventDelete,
		Old:         &domain.Row{ID: postID, PostID: postID, UserID: doc.AuthorID},
		CommittedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Store) targetIDs(ctx context.Context, coll *mongo.Collection, filter bson.M) ([]string, error) {
	cur, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var docs []pairDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.TargetID
	}
	return ids, nil
}

func (s *Store) commentIDs(ctx context.Context, filter bson.M) ([]string, error) {
	cur, err := s.comments.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (s *Store) hydrate(ctx context.Context, docs []postDoc, viewerID string) ([]*domain.PostRecord, error) {
	out := make([]*domain.PostRecord, len(docs))
	if len(docs) == 0 {
		return out, nil
	}
	postIDs := make([]string, len(docs))
	authorIDs := make([]string, len(docs))
	for i, d := range docs {
		postIDs[i] = d.ID
		authorIDs[i] = d.AuthorID
	}
	authors, err := s.authors(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	liked := map[string]bool{}
	bookmarked := map[string]bool{}
	if viewerID != "" {
		filter := bson.M{"userId": viewerID, "targetId": bson.M{"$in": postIDs}}
		likedIDs, err := s.targetIDs(ctx, s.likes, filter)
		if err != nil {
			return nil, err
		}
		bookmarkedIDs, err := s.targetIDs(ctx, s.bookmarks, filter)
		if err != nil {
			return nil, err
		}
		for _, id := range likedIDs {
			liked[id] = true
		}
		for _, id := range bookmarkedIDs {
			bookmarked[id] = true
		}
	}

	for i, d := range docs {
		out[i] = &domain.PostRecord{
			ID:           d.ID,
			Author:       authors[d.AuthorID],
			Title:        d.Title,
			Prompt:       d.Prompt,
			Images:       d.Images,
			Category:     d.Category,
			Tags:         d.Tags,
			AISource:     d.AISource,
			Likes:        d.Likes,
			Comments:     d.Comments,
			Shares:       d.Shares,
			IsLiked:      liked[d.ID],
			IsBookmarked: bookmarked[d.ID],
			Version:      d.Version,
			CreatedAt:    d.CreatedAt,
		}
	}
	return out, nil
}

func (s *Store) authors(ctx context.Context, ids []string) (map[string]*domain.AuthorRecord, error) {
	cur, err := s.profiles.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var docs []profileDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make(map[string]*domain.AuthorRecord, len(docs))
	for _, p := range docs {
		out[p.ID] = &domain.AuthorRecord{ID: p.ID, Name: p.Name, Avatar: p.Avatar}
	}
	return out, nil
}

// === Like & Bookmark Methods ===

func (s *Store) InsertLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.insertPair(ctx, domain.RelationLikes, s.likes, viewerID, postID, bson.M{"likes": 1})
}

func (s *Store) DeleteLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.deletePair(ctx, domain.RelationLikes, s.likes, viewerID, postID, "likes")
}

func (s *Store) InsertBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.insertPair(ctx, domain.RelationBookmarks, s.bookmarks, viewerID, postID, bson.M{})
}

func (s *Store) DeleteBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.deletePair(ctx, domain.RelationBookmarks, s.bookmarks, viewerID, postID, "")
}

// bump увеличивает версию поста (и счётчики из inc) и возвращает новую версию.
func (s *Store) bump(ctx context.Context, postID string, update any) (int64, error) {
	var doc postDoc
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"version": 1})
	if err := s.posts.FindOneAndUpdate(ctx, bson.M{"_id": postID}, update, opts).Decode(&doc); err != nil {
		return 0, notFound(err, "post", postID)
	}
	return doc.Version, nil
}

func (s *Store) insertPair(ctx context.Context, rel domain.Relation, coll *mongo.Collection, viewerID, postID string, inc bson.M) (domain.Receipt, error) {
	if err := storage.RequireViewer(viewerID); err != nil {
		return domain.Receipt{}, err
	}
	n, err := s.posts.CountDocuments(ctx, bson.M{"_id": postID})
	if err != nil {
		return domain.Receipt{}, err
	}
	if n == 0 {
		return domain.Receipt{}, domain.NewNotFoundError("post", postID)
	}

	id := pairID(viewerID, postID)
	doc := pairDoc{ID: id, UserID: viewerID, TargetID: postID, CreatedAt: time.Now().UTC()}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			metrics.StorageWrites.WithLabelValues(string(rel), "conflict").Inc()
			return domain.Receipt{}, domain.NewConflictError(string(rel), err)
		}
		return domain.Receipt{}, err
	}

	inc["version"] = 1
	version, err := s.bump(ctx, postID, bson.M{"$inc": inc})
	if err != nil {
		// Пост удалили между проверкой и обновлением
		_, _ = coll.DeleteOne(ctx, bson.M{"_id": id})
		return domain.Receipt{}, err
	}
	metrics.StorageWrites.WithLabelValues(string(rel), "ok").Inc()

	s.publish(ctx, domain.ChangeEvent{
		Relation:    rel,
		Kind:        domain.EventInsert,
		New:         &domain.Row{ID: id, PostID: postID, UserID: viewerID},
		Version:     version,
		CommittedAt: doc.CreatedAt,
	})
	return domain.Receipt{PostID: postID, Version: version}, nil
}

// deletePair удаляет строку связи. counter - поле счётчика поста или пустая строка.
func (s *Store) deletePair(ctx context.Context, rel domain.Relation, coll *mongo.Collection, viewerID, postID, counter string) (domain.Receipt, error) {
	if err := storage.RequireViewer(viewerID); err != nil {
		return domain.Receipt{}, err
	}
	var post postDoc
	if err := s.posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&post); err != nil {
		return domain.Receipt{}, notFound(err, "post", postID)
	}

	id := pairID(viewerID, postID)
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return domain.Receipt{}, err
	}
	if res.DeletedCount == 0 {
		return domain.Receipt{PostID: postID, Version: post.Version}, nil
	}

	set := bson.D{{Key: "version", Value: bson.D{{Key: "$add", Value: bson.A{"$version", 1}}}}}
	if counter != "" {
		// Счётчик не уходит ниже нуля
		set = append(set, bson.E{Key: counter, Value: bson.D{{Key: "$max", Value: bson.A{0,
			bson.D{{Key: "$subtract", Value: bson.A{"$" + counter, 1}}}}}}})
	}
	version, err := s.bump(ctx, postID, mongo.Pipeline{{{Key: "$set", Value: set}}})
	if err != nil {
		return domain.Receipt{}, err
	}
	metrics.StorageWrites.WithLabelValues(string(rel), "ok").Inc()

	s.publish(ctx, domain.ChangeEvent{
		Relation:    rel,
		Kind:        domain.EventDelete,
		Old:         &domain.Row{ID: id, PostID: postID, UserID: viewerID},
		Version:     version,
		CommittedAt: time.Now().UTC(),
	})
	return domain.Receipt{PostID: postID, Version: version}, nil
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, in domain.NewComment) (*domain.CommentRecord, domain.Receipt, error) {
	if err := storage.ValidateNewComment(in); err != nil {
		return nil, domain.Receipt{}, err
	}
	n, err := s.posts.CountDocuments(ctx, bson.M{"_id": in.PostID})
	if err != nil {
		return nil, domain.Receipt{}, err
	}
	if n == 0 {
		return nil, domain.Receipt{}, domain.NewNotFoundError("post", in.PostID)
	}
	if in.ParentID != nil {
		n, err := s.comments.CountDocuments(ctx, bson.M{"_id": *in.ParentID, "postId": in.PostID})
		if err != nil {
			return nil, domain.Receipt{}, err
		}
		if n == 0 {
			return nil, domain.Receipt{}, domain.NewNotFoundError("parent comment", *in.ParentID)
		}
	}

	doc := commentDoc{
		ID:        uuid.NewString(),
		PostID:    in.PostID,
		ParentID:  in.ParentID,
		AuthorID:  in.AuthorID,
		Content:   in.Content,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.comments.InsertOne(ctx, doc); err != nil {
		metrics.StorageWrites.WithLabelValues(string(domain.RelationComments), "error").Inc()
		return nil, domain.Receipt{}, err
	}
	version, err := s.bump(ctx, in.PostID, bson.M{"$inc": bson.M{"comments": 1, "version": 1}})
	if err != nil {
		_, _ = s.comments.DeleteOne(ctx, bson.M{"_id": doc.ID})
		return nil, domain.Receipt{}, err
	}
	metrics.StorageWrites.WithLabelValues(string(domain.RelationComments), "ok").Inc()

	s.publish(ctx, domain.ChangeEvent{
		Relation:    domain.RelationComments,
		Kind:        domain.EventInsert,
		New:         &domain.Row{ID: doc.ID, PostID: doc.PostID, UserID: doc.AuthorID, ParentID: doc.ParentID},
		Version:     version,
		CommittedAt: doc.CreatedAt,
	})

	recs, err := s.commentRecords(ctx, []commentDoc{doc})
	if err != nil {
		return nil, domain.Receipt{}, err
	}
	return recs[0], domain.Receipt{PostID: in.PostID, Version: version}, nil
}

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.CommentRecord, error) {
	var doc commentDoc
	if err := s.comments.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound(err, "comment", id)
	}
	recs, err := s.commentRecords(ctx, []commentDoc{doc})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

func (s *Store) InsertCommentLike(ctx context.Context, viewerID, commentID string) error {
	if err := storage.RequireViewer(viewerID); err != nil {
		return err
	}
	n, err := s.comments.CountDocuments(ctx, bson.M{"_id": commentID})
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewNotFoundError("comment", commentID)
	}
	doc := pairDoc{ID: pairID(viewerID, commentID), UserID: viewerID, TargetID: commentID, CreatedAt: time.Now().UTC()}
	if _, err := s.commentLikes.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.NewConflictError("comment like", err)
		}
		return err
	}
	_, err = s.comments.UpdateOne(ctx, bson.M{"_id": commentID}, bson.M{"$inc": bson.M{"likes": 1}})
	return err
}

func (s *Store) DeleteCommentLike(ctx context.Context, viewerID, commentID string) error {
	if err := storage.RequireViewer(viewerID); err != nil {
		return err
	}
	res, err := s.commentLikes.DeleteOne(ctx, bson.M{"_id": pairID(viewerID, commentID)})
	if err != nil || res.DeletedCount == 0 {
		return err
	}
	_, err = s.comments.UpdateOne(ctx,
		bson.M{"_id": commentID, "likes": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"likes": -1}})
	return err
}

func (s *Store) LikedCommentIDs(ctx context.Context, viewerID string, commentIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool, len(commentIDs))
	if viewerID == "" || len(commentIDs) == 0 {
		return liked, nil
	}
	ids, err := s.targetIDs(ctx, s.commentLikes, bson.M{"userId": viewerID, "targetId": bson.M{"$in": commentIDs}})
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

func (s *Store) commentRecords(ctx context.Context, docs []commentDoc) ([]*domain.CommentRecord, error) {
	out := make([]*domain.CommentRecord, len(docs))
	if len(docs) == 0 {
		return out, nil
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.AuthorID
	}
	authors, err := s.authors(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		out[i] = &domain.CommentRecord{
			ID:        d.ID,
			PostID:    d.PostID,
			ParentID:  d.ParentID,
			Author:    authors[d.AuthorID],
			Content:   d.Content,
			Likes:     d.Likes,
			CreatedAt: d.CreatedAt,
		}
	}
	return out, nil
}

// === Pagination Methods ===

func (s *Store) GetCommentsByPostID(ctx context.Context, postID string, args storage.PaginationArgs) ([]*domain.CommentRecord, error) {
	return s.paginate(ctx, bson.M{"postId": postID, "parentId": nil}, args)
}

func (s *Store) GetCommentsByParentID(ctx context.Context, parentID string, args storage.PaginationArgs) ([]*domain.CommentRecord, error) {
	return s.paginate(ctx, bson.M{"parentId": parentID}, args)
}

func (s *Store) paginate(ctx context.Context, filter bson.M, args storage.PaginationArgs) ([]*domain.CommentRecord, error) {
	if args.Cursor != nil {
		var cursorDoc commentDoc
		if err := s.comments.FindOne(ctx, bson.M{"_id": *args.Cursor}).Decode(&cursorDoc); err == nil {
			filter["$or"] = bson.A{
				bson.M{"createdAt": bson.M{"$gt": cursorDoc.CreatedAt}},
				bson.M{"createdAt": cursorDoc.CreatedAt, "_id": bson.M{"$gt": cursorDoc.ID}},
			}
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(args.Limit))
	cur, err := s.comments.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []commentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return s.commentRecords(ctx, docs)
}

// === Dataloader Method ===

func (s *Store) GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.CommentRecord, error) {
	result := make(map[string][]*domain.CommentRecord, len(parentIDs))
	if len(parentIDs) == 0 {
		return result, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.comments.Find(ctx, bson.M{"parentId": bson.M{"$in": parentIDs}}, opts)
	if err != nil {
		return nil, err
	}
	var docs []commentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	recs, err := s.commentRecords(ctx, docs)
	if err != nil {
		return nil, err
	}
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
	update := bson.M{
		"$set":         bson.M{"name": p.Name, "avatar": p.Avatar},
		"$setOnInsert": bson.M{"createdAt": time.Now().UTC().Truncate(time.Millisecond)},
	}
	if _, err := s.profiles.UpdateOne(ctx, bson.M{"_id": p.ID}, update, options.Update().SetUpsert(true)); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, p.ID)
}

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	var doc profileDoc
	if err := s.profiles.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound(err, "profile", id)
	}
	return &domain.Profile{ID: doc.ID, Name: doc.Name, Avatar: doc.Avatar, CreatedAt: doc.CreatedAt}, nil
}

func (s *Store) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	var (
		st      domain.UserStats
		postIDs []string
	)

	cur, err := s.posts.Find(ctx, bson.M{"authorId": userID}, options.Find().SetProjection(bson.M{"_id": 1, "shares": 1}))
	if err != nil {
		return st, err
	}
	var own []postDoc
	if err := cur.All(ctx, &own); err != nil {
		return st, err
	}
	for _, p := range own {
		postIDs = append(postIDs, p.ID)
		st.SharesReceived += p.Shares
	}
	st.Posts = len(own)

	count := func(coll *mongo.Collection, filter bson.M, dst *int) func() error {
		return func() error {
			n, err := coll.CountDocuments(ctx, filter)
			*dst = int(n)
			return err
		}
	}

	var g errgroup.Group
	if len(postIDs) > 0 {
		g.Go(count(s.likes, bson.M{"targetId": bson.M{"$in": postIDs}}, &st.LikesReceived))
		g.Go(count(s.bookmarks, bson.M{"targetId": bson.M{"$in": postIDs}}, &st.BookmarksRecvd))
	}
	g.Go(count(s.comments, bson.M{"authorId": userID}, &st.CommentsGiven))
	g.Go(count(s.likes, bson.M{"userId": userID}, &st.LikesGiven))
	g.Go(count(s.bookmarks, bson.M{"userId": userID}, &st.BookmarksGiven))
	if err := g.Wait(); err != nil {
		return domain.UserStats{}, err
	}
	return st, nil
}
