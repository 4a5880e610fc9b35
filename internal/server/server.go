// Package server - HTTP API ленты поверх storage.Storage и ленты изменений.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/auth"
	"github.com/UkralStul/promptkaart/internal/changefeed"
	"github.com/UkralStul/promptkaart/internal/dataloader"
	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/metrics"
	"github.com/UkralStul/promptkaart/internal/storage"
)

// DefaultRequestTimeout ограничивает обычные (не websocket) запросы.
const DefaultRequestTimeout = 10 * time.Second

// Feed - источник событий изменений для /realtime.
type Feed interface {
	Subscribe(ctx context.Context, relations ...domain.Relation) (*changefeed.Subscription, error)
}

// Server собирает зависимости обработчиков.
type Server struct {
	store    storage.Storage
	feed     Feed
	tokens   *auth.Tokens
	log      *zap.Logger
	timeout  time.Duration
	upgrader websocket.Upgrader
}

// New - конструктор. timeout <= 0 означает DefaultRequestTimeout.
func New(store storage.Storage, feed Feed, tokens *auth.Tokens, log *zap.Logger, timeout time.Duration) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Server{
		store:   store,
		feed:    feed,
		tokens:  tokens,
		log:     log.Named("server"),
		timeout: timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler возвращает корневой роутер.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(s.observe)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(s.tokens.Middleware(s.writeError))

		// Websocket живёт дольше таймаута запроса
		r.Get("/realtime", s.realtime)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.timeout))
			r.Use(dataloader.Middleware(s.store))

			r.Post("/auth/session", s.createSession)

			r.Route("/posts", func(r chi.Router) {
				r.Get("/", s.listPosts)
				r.Post("/", s.createPost)
				r.Route("/{postID}", func(r chi.Router) {
					r.Get("/", s.getPost)
					r.Delete("/", s.deletePost)
					r.Post("/likes", s.likePost)
					r.Delete("/likes", s.unlikePost)
					r.Post("/bookmarks", s.bookmarkPost)
					r.Delete("/bookmarks", s.unbookmarkPost)
					r.Get("/comments", s.listComments)
					r.Post("/comments", s.createComment)
				})
			})
			r.Get("/bookmarks", s.listBookmarks)

			r.Route("/comments/{commentID}", func(r chi.Router) {
				r.Get("/replies", s.listReplies)
				r.Post("/likes", s.likeComment)
				r.Delete("/likes", s.unlikeComment)
			})

			r.Get("/users/{userID}/stats", s.userStats)
		})
	})

	return router
}

// observe пишет access-лог и метрики по шаблону маршрута.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type errorBody struct {
	Error string      `json:"error"`
	Code  domain.Kind `json:"code"`
}

// StatusFor переводит класс ошибки в HTTP-статус.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotAuthenticated:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		kind = domain.KindUnknown
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.NewValidationError("request body is too large")
		}
		return &domain.Error{Kind: domain.KindInvalid, Message: "invalid request body", Err: err}
	}
	return nil
}

// pageArgs читает limit и cursor. Лимит по умолчанию def, не больше 100.
func pageArgs(r *http.Request, def int) (storage.PaginationArgs, error) {
	args := storage.PaginationArgs{Limit: def}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return args, domain.NewValidationError("limit must be a positive integer")
		}
		args.Limit = min(n, 100)
	}
	if c := r.URL.Query().Get("cursor"); c != "" {
		args.Cursor = &c
	}
	return args, nil
}
