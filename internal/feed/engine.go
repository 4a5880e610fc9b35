package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/normalize"
)

// ErrClosed возвращается после Engine.Close.
var ErrClosed = errors.New("feed: engine closed")

// Значения Options по умолчанию.
const (
	DefaultTimeout       = 10 * time.Second
	DefaultDebounce      = 50 * time.Millisecond
	DefaultMaxRetries    = 4
	DefaultRetryInterval = 200 * time.Millisecond
	DefaultMaxDepth      = 2
)

// Options - настройки движка. Нулевые поля заменяются значениями по умолчанию.
type Options struct {
	// Timeout ограничивает каждый удалённый вызов.
	Timeout time.Duration
	// Debounce - пауза перед перезагрузкой после событий о постах.
	Debounce time.Duration
	// MaxRetries и RetryInterval задают экспоненциальный повтор перезагрузки.
	MaxRetries    uint
	RetryInterval time.Duration
	// MaxDepth - глубина отображения дерева комментариев.
	MaxDepth int
	// Realtime включает подписку на ленту изменений.
	Realtime bool
	Logger   *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Engine синхронизирует одну ленту с источником.
// Переходы состояния сериализуются мьютексом, удалённые вызовы идут без него.
type Engine struct {
	src     Source
	session Session
	opts    Options
	log     *zap.Logger

	mu           sync.Mutex
	state        State
	nextID       uint64
	commenting   map[string]bool
	threads      map[*Thread]struct{}
	listeners    map[int]func(State)
	nextListener int
	started      bool
	closed       bool
	sub          domain.Subscription

	// notifyMu сохраняет порядок уведомлений подписчиков.
	notifyMu sync.Mutex

	group  singleflight.Group
	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New создаёт движок. Работа начинается со Start.
func New(src Source, session Session, scope Scope, opts Options) *Engine {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		src:        src,
		session:    session,
		opts:       opts,
		log:        opts.Logger.Named("feed").With(zap.Stringer("scope", scope.Kind)),
		state:      NewState(scope, session.ViewerID),
		commenting: make(map[string]bool),
		threads:    make(map[*Thread]struct{}),
		listeners:  make(map[int]func(State)),
		kick:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start подписывается на ленту изменений (если включено) и выполняет первую загрузку.
// Ошибка загрузки также отражается в State.Status.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.started {
		e.mu.Unlock()
		return errors.New("feed: engine already started")
	}
	e.started = true
	e.mu.Unlock()

	if e.State().Scope.Kind == ScopeFavorites && e.session.Anonymous() {
		return domain.ErrNotAuthenticated
	}

	// Подписка раньше загрузки, чтобы не потерять события между ними
	if e.opts.Realtime {
		if err := e.subscribe(); err != nil {
			return err
		}
	}

	e.wg.Add(1)
	go e.refetchLoop()

	return e.Refresh(ctx)
}

// State - текущий снимок ленты.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Posts - текущий список постов.
func (e *Engine) Posts() []domain.Post {
	return e.State().Posts
}

// Mutations - журнал мутаций: ожидающие и последние завершённые.
func (e *Engine) Mutations() []Mutation {
	return e.State().Mutations
}

// Session - зритель, от имени которого работает движок.
func (e *Engine) Session() Session { return e.session }

// OnChange регистрирует подписчика на изменения состояния и возвращает функцию отписки.
// Подписчик вызывается синхронно и не должен вызывать методы движка, меняющие состояние.
func (e *Engine) OnChange(fn func(State)) func() {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Close отписывается от ленты изменений и останавливает фоновые горутины.
// Результаты мутаций, завершившихся после Close, отбрасываются.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sub := e.sub
	threads := make([]*Thread, 0, len(e.threads))
	for t := range e.threads {
		threads = append(threads, t)
	}
	e.mu.Unlock()

	e.cancel()
	for _, t := range threads {
		t.Close()
	}
	var err error
	if sub != nil {
		err = sub.Close()
	}
	e.wg.Wait()
	e.log.Debug("engine closed")
	return err
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// dispatch применяет действие, уведомляет подписчиков и запускает эффекты.
func (e *Engine) dispatch(a Action) Effect {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Effect{}
	}
	next, eff := Reduce(e.state, a)
	e.state = next
	var listeners []func(State)
	if eff.Changed {
		listeners = make([]func(State), 0, len(e.listeners))
		for _, fn := range e.listeners {
			listeners = append(listeners, fn)
		}
	}
	var threads []*Thread
	if eff.CommentsOf != "" {
		for t := range e.threads {
			if t.postID == eff.CommentsOf {
				threads = append(threads, t)
			}
		}
	}
	e.mu.Unlock()

	if eff.Refetch {
		e.scheduleRefetch()
	}
	for _, t := range threads {
		t.scheduleReload()
	}
	for _, fn := range listeners {
		fn(next)
	}
	return eff
}

// records нормализует записи источника, пропуская пустые.
func records(in []*domain.PostRecord) []domain.Post {
	out := make([]domain.Post, 0, len(in))
	for _, r := range in {
		if r != nil {
			out = append(out, normalize.Post(*r))
		}
	}
	return out
}

// remoteErr приводит ошибку источника к классифицированной.
func remoteErr(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if domain.KindOf(err) == domain.KindUnavailable {
		return domain.NewUnavailableError(err)
	}
	return err
}

func (e *Engine) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.Timeout)
}
