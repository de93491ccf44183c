package mail

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/ignatzorin/nova-auth/internal/goroutine"
	"github.com/ignatzorin/nova-auth/internal/logger"
	"github.com/ignatzorin/nova-auth/internal/metrics"
)

var (
	ErrQueueFull = errors.New("mail: очередь писем переполнена")
	ErrClosed    = errors.New("mail: отправка остановлена")
)

// DispatcherOptions задаёт параметры фоновой отправки.
type DispatcherOptions struct {
	Workers    int
	QueueSize  int
	RatePerSec float64
	MaxRetries uint64
	BaseDelay  time.Duration
}

// Dispatcher принимает письма в очередь и отправляет их в фоне: с ограничением
// скорости и повторами с экспоненциальной задержкой. Send не ждёт SMTP.
type Dispatcher struct {
	next    Sender
	opts    DispatcherOptions
	queue   chan Message
	limiter *rate.Limiter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewDispatcher(next Sender, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}

	return &Dispatcher{
		next:    next,
		opts:    opts,
		queue:   make(chan Message, opts.QueueSize),
		limiter: rate.NewLimiter(limit, opts.Workers),
	}
}

// Start запускает воркеры. Отмена ctx не останавливает их: очередь
// дорабатывается до Close, значения ctx (логгер, трейсинг) сохраняются.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
			defer d.wg.Done()
			for msg := range d.queue {
				d.deliver(ctx, msg)
			}
		})
	}
}

// Send ставит письмо в очередь.
func (d *Dispatcher) Send(_ context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close перестаёт принимать письма и ждёт, пока воркеры разберут очередь.
// Когда истекает ctx, ожидание лимитера и повторы прерываются,
// оставшиеся письма отбрасываются.
func (d *Dispatcher) Close(ctx context.Context) {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	cancel := d.cancel
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		logger.Log.WithField("queued", len(d.queue)).Warn("mail: очередь не разобрана до остановки")
		if cancel != nil {
			cancel()
		}
		<-drained
	}

	if cancel != nil {
		cancel()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	log := logger.ForIdentifier(msg.To)

	if err := d.limiter.Wait(ctx); err != nil {
		metrics.RecordMailDelivery(metrics.ResultError)
		log.WithError(err).Warn("mail: письмо не отправлено, сервис останавливается")
		return
	}

	attempt := 0
	backoff := retry.WithMaxRetries(d.opts.MaxRetries, retry.NewExponential(d.opts.BaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := d.next.Send(ctx, msg); err != nil {
			log.WithError(err).WithField("attempt", attempt).Debug("mail: попытка отправки не удалась")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		metrics.RecordMailDelivery(metrics.ResultError)
		log.WithError(err).WithField("attempts", attempt).Error("mail: не удалось отправить письмо")
		return
	}

	metrics.RecordMailDelivery(metrics.ResultOK)
}
