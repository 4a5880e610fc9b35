// Package remote - клиент HTTP API ленты. Реализует feed.Source.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/feed"
	"github.com/UkralStul/promptkaart/internal/server"
)

// DefaultTimeout ограничивает каждый вызов API.
const DefaultTimeout = 10 * time.Second

// commentPageSize - размер страницы при выгрузке всех комментариев.
const commentPageSize = 100

// Client ходит в API от имени одного пользователя.
// Зритель определяется токеном, параметр viewerID методов Source не передаётся.
type Client struct {
	base    *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
	timeout time.Duration
	log     *zap.Logger

	mu    sync.RWMutex
	token string
}

var _ feed.Source = (*Client)(nil)

// Option настраивает Client.
type Option func(*Client)

// WithToken задаёт токен сессии.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout задаёт таймаут вызова.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New создаёт клиента для сервиса по адресу baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", base.Scheme)
	}
	c := &Client{
		base:    base,
		http:    &http.Client{},
		dialer:  &websocket.Dialer{HandshakeTimeout: DefaultTimeout},
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("remote")
	return c, nil
}

// Token - текущий токен сессии.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// === Auth ===

type sessionRequest struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Login заводит сессию и запоминает выданный токен.
func (c *Client) Login(ctx context.Context, userID, name, avatar string) (*domain.Profile, error) {
	var resp server.SessionResponse
	err := c.do(ctx, http.MethodPost, "/auth/session", nil, sessionRequest{UserID: userID, Name: name, Avatar: avatar}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return resp.Profile, nil
}

// === Posts ===

func (c *Client) ListPosts(ctx context.Context, _ string) ([]*domain.PostRecord, error) {
	var posts []*domain.PostRecord
	if err := c.do(ctx, http.MethodGet, "/posts", nil, nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *Client) GetPost(ctx context.Context, postID, _ string) (*domain.PostRecord, error) {
	var post domain.PostRecord
	if err := c.do(ctx, http.MethodGet, "/posts/"+url.PathEscape(postID), nil, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) ListBookmarkedPosts(ctx context.Context, _ string) ([]*domain.PostRecord, error) {
	var posts []*domain.PostRecord
	if err := c.do(ctx, http.MethodGet, "/bookmarks", nil, nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *Client) CreatePost(ctx context.Context, in domain.NewPost) (*domain.PostRecord, error) {
	var post domain.PostRecord
	if err := c.do(ctx, http.MethodPost, "/posts", nil, in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(postID), nil, nil, nil)
}

// === Likes & Bookmarks ===

func (c *Client) InsertLike(ctx context.Context, _, postID string) (domain.Receipt, error) {
	return c.receipt(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/likes")
}

func (c *Client) DeleteLike(ctx context.Context, _, postID string) (domain.Receipt, error) {
	return c.receipt(ctx, http.MethodDelete, "/posts/"+url.PathEscape(postID)+"/likes")
}

func (c *Client) InsertBookmark(ctx context.Context, _, postID string) (domain.Receipt, error) {
	return c.receipt(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/bookmarks")
}

func (c *Client) DeleteBookmark(ctx context.Context, _, postID string) (domain.Receipt, error) {
	return c.receipt(ctx, http.MethodDelete, "/posts/"+url.PathEscape(postID)+"/bookmarks")
}

func (c *Client) receipt(ctx context.Context, method, path string) (domain.Receipt, error) {
	var rec domain.Receipt
	err := c.do(ctx, method, path, nil, nil, &rec)
	return rec, err
}

// === Comments ===

type commentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id,omitempty"`
}

func (c *Client) CreateComment(ctx context.Context, in domain.NewComment) (*domain.CommentRecord, domain.Receipt, error) {
	var resp server.CommentCreated
	path := "/posts/" + url.PathEscape(in.PostID) + "/comments"
	if err := c.do(ctx, http.MethodPost, path, nil, commentRequest{Content: in.Content, ParentID: in.ParentID}, &resp); err != nil {
		return nil, domain.Receipt{}, err
	}
	if resp.Comment == nil {
		return nil, domain.Receipt{}, &domain.Error{Kind: domain.KindUnknown, Message: "remote: empty comment in response"}
	}
	return resp.Comment, resp.Receipt, nil
}

// ListComments обходит все страницы корневых комментариев; ответы приходят вместе с корнями.
func (c *Client) ListComments(ctx context.Context, postID, _ string) ([]*domain.CommentRecord, error) {
	path := "/posts/" + url.PathEscape(postID) + "/comments"
	query := url.Values{"limit": {strconv.Itoa(commentPageSize)}}

	var all []*domain.CommentRecord
	for {
		var page server.CommentPage
		if err := c.do(ctx, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Comments...)
		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == nil {
			return all, nil
		}
		query.Set("cursor", *page.PageInfo.EndCursor)
	}
}

func (c *Client) InsertCommentLike(ctx context.Context, _, commentID string) error {
	return c.do(ctx, http.MethodPost, "/comments/"+url.PathEscape(commentID)+"/likes", nil, nil, nil)
}

func (c *Client) DeleteCommentLike(ctx context.Context, _, commentID string) error {
	return c.do(ctx, http.MethodDelete, "/comments/"+url.PathEscape(commentID)+"/likes", nil, nil, nil)
}

// === Profiles ===

func (c *Client) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	var stats domain.UserStats
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/stats", nil, nil, &stats)
	return stats, err
}

// === Transport ===

type errorBody struct {
	Error string      `json:"error"`
	Code  domain.Kind `json:"code"`
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// do выполняет запрос с таймаутом и переводит ответ в domain.Error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: failed to encode request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), payload)
	if err != nil {
		return fmt.Errorf("remote: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NewUnavailableError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return domain.NewUnavailableError(err)
		}
		return &domain.Error{Kind: domain.KindUnknown, Message: "remote: malformed response", Err: err}
	}
	return nil
}

// KindForStatus переводит HTTP-статус в класс ошибки.
func KindForStatus(status int) domain.Kind {
	switch {
	case status == http.StatusUnauthorized:
		return domain.KindNotAuthenticated
	case status == http.StatusForbidden:
		return domain.KindForbidden
	case status == http.StatusNotFound:
		return domain.KindNotFound
	case status == http.StatusConflict:
		return domain.KindConflict
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge, status == http.StatusUnprocessableEntity:
		return domain.KindInvalid
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return domain.KindUnavailable
	}
	return domain.KindUnknown
}

func decodeError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &domain.Error{
		Kind:    KindForStatus(resp.StatusCode),
		Message: body.Error,
		Err:     fmt.Errorf("http status %d", resp.StatusCode),
	}
}
