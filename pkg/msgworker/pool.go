package msgworker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Terminal results: the job is done, never retried.
var (
	// ErrAlreadyProcessed marks an echoed event whose message already exists.
	ErrAlreadyProcessed = errors.New("message already processed")
	// ErrSkipped marks a job rejected by admission control (no quota).
	ErrSkipped = errors.New("job skipped")
)

// Job representa una unidad de trabajo de un mensaje entrante.
// MessageID (el id del gateway) es la clave de identidad del job: como mucho
// una instancia encolada por id, incluso bajo retransmisión del gateway.
type Job struct {
	InstanceKey string
	ChatJID     string
	MessageID   string
	Content     string
	MediaURL    string
	MediaKind   string
	SenderName  string
	Timestamp   int64
	FromMe      bool
	IsGroup     bool
	Participant string
}

// Processor executes the per-message pipeline for one job.
type Processor func(ctx context.Context, job Job) error

// JobResult is one finished job kept in the bounded history rings.
type JobResult struct {
	Job        Job       `json:"job"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// PoolStats contiene métricas en tiempo real del worker pool
type PoolStats struct {
	NumWorkers     int   `json:"num_workers"`
	QueueDepth     int   `json:"queue_depth"`
	QueueCapacity  int   `json:"queue_capacity"`
	ActiveWorkers  int   `json:"active_workers"`
	TotalEnqueued  int64 `json:"total_enqueued"`
	TotalProcessed int64 `json:"total_processed"`
	TotalRetries   int64 `json:"total_retries"`
	TotalFailed    int64 `json:"total_failed"`
	TotalSkipped   int64 `json:"total_skipped"`
	TotalDropped   int64 `json:"total_dropped"`
	PendingJobs    int   `json:"pending_jobs"`
}

// Options tunes the pool. Zero values fall back to the defaults used in
// production (5 workers, 5 jobs/s, 3 attempts, 1s base delay).
type Options struct {
	NumWorkers     int
	QueueSize      int
	RatePerSecond  float64
	MaxAttempts    int
	RetryBaseDelay time.Duration
	CompletedCap   int
	FailedCap      int
}

// Pool procesa los jobs de mensajes con concurrencia acotada y un rate
// limiter global que protege la API de IA/envío aguas abajo.
type Pool struct {
	opts    Options
	queue   chan Job
	limiter *rate.Limiter
	process Processor

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  int32
	stopCh   chan struct{}

	// pending guarda los ids encolados o en proceso para deduplicar.
	pendingMu sync.Mutex
	pending   map[string]struct{}

	historyMu sync.Mutex
	completed []JobResult
	failed    []JobResult

	// Métricas
	totalEnqueued  int64
	totalProcessed int64
	totalRetries   int64
	totalFailed    int64
	totalSkipped   int64
	totalDropped   int64
	activeWorkers  int32
}

// NewPool crea el pool. El processor se invoca una vez por intento.
func NewPool(opts Options, process Processor) *Pool {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.CompletedCap <= 0 {
		opts.CompletedCap = 100
	}
	if opts.FailedCap <= 0 {
		opts.FailedCap = 500
	}

	return &Pool{
		opts:    opts,
		queue:   make(chan Job, opts.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		process: process,
		pending: make(map[string]struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Start inicia todos los workers del pool.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.opts.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	logrus.Infof("[WORKER_POOL] Started with %d workers, queue size %d, rate %.1f/s",
		p.opts.NumWorkers, p.opts.QueueSize, p.opts.RatePerSecond)
}

// Enqueue encola un job. Retorna false cuando el id ya está pendiente
// (dedup), cuando la cola está llena o cuando el pool está detenido.
func (p *Pool) Enqueue(job Job) (ok bool) {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}
	if job.MessageID == "" {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	p.pendingMu.Lock()
	if _, dup := p.pending[job.MessageID]; dup {
		p.pendingMu.Unlock()
		logrus.Debugf("[WORKER_POOL] Duplicate enqueue suppressed for %s", job.MessageID)
		return false
	}
	p.pending[job.MessageID] = struct{}{}
	p.pendingMu.Unlock()

	// Stop puede cerrar la cola entre el chequeo del flag y el send; el
	// recover convierte ese cierre en un drop normal en vez de un panic.
	defer func() {
		if r := recover(); r != nil {
			p.clearPending(job.MessageID)
			atomic.AddInt64(&p.totalDropped, 1)
			ok = false
		}
	}()

	select {
	case p.queue <- job:
		atomic.AddInt64(&p.totalEnqueued, 1)
		return true
	default:
		p.clearPending(job.MessageID)
		atomic.AddInt64(&p.totalDropped, 1)
		logrus.Warnf("[WORKER_POOL] Queue full, dropping job %s for %s|%s",
			job.MessageID, job.InstanceKey, job.ChatJID)
		return false
	}
}

// Stop detiene el pool de forma graceful y espera a los workers.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		close(p.stopCh)
		close(p.queue)
		logrus.Info("[WORKER_POOL] Stopping workers...")
		p.wg.Wait()
		logrus.Info("[WORKER_POOL] All workers stopped")
	})
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	logrus.Debugf("[WORKER_POOL] Worker %d started", id)

	for {
		select {
		case job, ok := <-p.queue:
			if !ok {
				logrus.Debugf("[WORKER_POOL] Worker %d shutting down", id)
				return
			}
			p.execute(ctx, id, job)
		case <-ctx.Done():
			return
		}
	}
}

// execute corre el pipeline con reintentos y backoff exponencial.
func (p *Pool) execute(ctx context.Context, id int, job Job) {
	atomic.AddInt32(&p.activeWorkers, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.totalFailed, 1)
			logrus.Errorf("[WORKER_POOL] Worker %d panic for %s|%s: %v",
				id, job.InstanceKey, job.ChatJID, r)
			p.recordFailed(job, 1, "panic during processing")
		}
		p.clearPending(job.MessageID)
		atomic.AddInt32(&p.activeWorkers, -1)
	}()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.opts.RetryBaseDelay
	exp.MaxElapsedTime = 0
	exp.RandomizationFactor = 0
	// Reset recalcula el intervalo actual; sin esto NextBackOff seguiría
	// usando el intervalo inicial por defecto del constructor.
	exp.Reset()

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		lastErr = p.process(ctx, job)
		if lastErr == nil {
			atomic.AddInt64(&p.totalProcessed, 1)
			p.recordCompleted(job, attempt)
			return
		}

		if errors.Is(lastErr, ErrAlreadyProcessed) || errors.Is(lastErr, ErrSkipped) {
			// Resultado terminal por regla de negocio, sin reintento.
			atomic.AddInt64(&p.totalSkipped, 1)
			p.recordCompleted(job, attempt)
			return
		}

		if attempt == p.opts.MaxAttempts {
			break
		}

		delay := exp.NextBackOff()
		atomic.AddInt64(&p.totalRetries, 1)
		logrus.WithError(lastErr).Warnf("[WORKER_POOL] Worker %d job %s attempt %d/%d failed, retrying in %v",
			id, job.MessageID, attempt, p.opts.MaxAttempts, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		}
	}

	atomic.AddInt64(&p.totalFailed, 1)
	logrus.WithError(lastErr).Errorf("[WORKER_POOL] Job %s permanently failed after %d attempts",
		job.MessageID, p.opts.MaxAttempts)
	p.recordFailed(job, p.opts.MaxAttempts, lastErr.Error())
}

func (p *Pool) clearPending(messageID string) {
	p.pendingMu.Lock()
	delete(p.pending, messageID)
	p.pendingMu.Unlock()
}

func (p *Pool) recordCompleted(job Job, attempts int) {
	p.historyMu.Lock()
	p.completed = append(p.completed, JobResult{Job: job, Attempts: attempts, FinishedAt: time.Now()})
	if len(p.completed) > p.opts.CompletedCap {
		p.completed = p.completed[len(p.completed)-p.opts.CompletedCap:]
	}
	p.historyMu.Unlock()
}

func (p *Pool) recordFailed(job Job, attempts int, errText string) {
	p.historyMu.Lock()
	p.failed = append(p.failed, JobResult{Job: job, Attempts: attempts, Error: errText, FinishedAt: time.Now()})
	if len(p.failed) > p.opts.FailedCap {
		p.failed = p.failed[len(p.failed)-p.opts.FailedCap:]
	}
	p.historyMu.Unlock()
}

// FailedJobs returns a snapshot of the permanently failed history ring.
func (p *Pool) FailedJobs() []JobResult {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	out := make([]JobResult, len(p.failed))
	copy(out, p.failed)
	return out
}

// CompletedJobs returns a snapshot of the completed history ring.
func (p *Pool) CompletedJobs() []JobResult {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	out := make([]JobResult, len(p.completed))
	copy(out, p.completed)
	return out
}

// GetStats retorna estadísticas en tiempo real del pool.
func (p *Pool) GetStats() PoolStats {
	p.pendingMu.Lock()
	pendingCount := len(p.pending)
	p.pendingMu.Unlock()

	return PoolStats{
		NumWorkers:     p.opts.NumWorkers,
		QueueDepth:     len(p.queue),
		QueueCapacity:  p.opts.QueueSize,
		ActiveWorkers:  int(atomic.LoadInt32(&p.activeWorkers)),
		TotalEnqueued:  atomic.LoadInt64(&p.totalEnqueued),
		TotalProcessed: atomic.LoadInt64(&p.totalProcessed),
		TotalRetries:   atomic.LoadInt64(&p.totalRetries),
		TotalFailed:    atomic.LoadInt64(&p.totalFailed),
		TotalSkipped:   atomic.LoadInt64(&p.totalSkipped),
		TotalDropped:   atomic.LoadInt64(&p.totalDropped),
		PendingJobs:    pendingCount,
	}
}
