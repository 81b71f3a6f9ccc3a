package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/frahmantamala/payfast-itn/internal/itn"
)

// DeliveryJob is one signed notification waiting to be posted.
type DeliveryJob struct {
	MerchantPaymentID string
	GatewayPaymentID  string
	Body              []byte
}

type Worker struct {
	ID         int
	WorkerPool chan chan DeliveryJob
	JobChannel chan DeliveryJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan DeliveryJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan DeliveryJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(DeliveryJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "m_payment_id", job.MerchantPaymentID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type Config struct {
	NotifyURL       string
	MerchantID      string
	Passphrase      string
	DeliveryTimeout time.Duration
	MaxAttempts     int
	MaxWorkers      int
	JobQueueSize    int
	WorkerPoolSize  int
}

type Stats struct {
	Queued    int64 `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// Gateway imitates the payment gateway: it signs notifications, posts them to
// the merchant through a bounded worker pool, and answers validate calls for
// the bodies it sent.
type Gateway struct {
	notifyURL       string
	merchantID      string
	signer          *itn.Signer
	deliveryTimeout time.Duration
	maxAttempts     int
	client          *http.Client
	logger          *slog.Logger

	sentMu sync.RWMutex
	sent   map[[sha256.Size]byte]struct{}

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64

	jobQueue   chan DeliveryJob
	workerPool chan chan DeliveryJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewGateway(config Config, logger *slog.Logger) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	workerPoolSize := config.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = maxWorkers
	}

	deliveryTimeout := config.DeliveryTimeout
	if deliveryTimeout <= 0 {
		deliveryTimeout = 10 * time.Second
	}

	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	g := &Gateway{
		notifyURL:       config.NotifyURL,
		merchantID:      config.MerchantID,
		signer:          itn.NewSigner(config.Passphrase),
		deliveryTimeout: deliveryTimeout,
		maxAttempts:     maxAttempts,
		client:          &http.Client{Timeout: deliveryTimeout},
		logger:          logger,
		sent:            make(map[[sha256.Size]byte]struct{}),

		maxWorkers: maxWorkers,
		jobQueue:   make(chan DeliveryJob, jobQueueSize),
		workerPool: make(chan chan DeliveryJob, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	g.startWorkerPool()

	return g
}

func (g *Gateway) startWorkerPool() {
	g.once.Do(func() {
		for i := 0; i < g.maxWorkers; i++ {
			worker := NewWorker(i, g.workerPool, g.logger)
			worker.Start(g.ctx, &g.wg, g.deliver)
		}

		g.wg.Add(1)
		go g.dispatch()

		g.logger.Info("sandbox gateway worker pool started",
			"max_workers", g.maxWorkers,
			"queue_size", cap(g.jobQueue))
	})
}

func (g *Gateway) dispatch() {
	defer g.wg.Done()

	for {
		select {
		case job := <-g.jobQueue:
			select {
			case jobChannel := <-g.workerPool:
				select {
				case jobChannel <- job:
				case <-g.ctx.Done():
					g.logger.Info("dispatcher shutting down")
					return
				}
			case <-g.ctx.Done():
				g.logger.Info("dispatcher shutting down")
				return
			}
		case <-g.ctx.Done():
			g.logger.Info("dispatcher shutting down")
			return
		}
	}
}

func (g *Gateway) Shutdown() {
	g.logger.Info("shutting down sandbox gateway")
	g.cancel()
	g.wg.Wait()
	g.logger.Info("sandbox gateway shutdown complete")
}

// Notify signs p and queues its delivery. It fails when the queue is full.
func (g *Gateway) Notify(p Payment) (DeliveryJob, error) {
	job := DeliveryJob{
		MerchantPaymentID: p.MerchantPaymentID,
		GatewayPaymentID:  p.GatewayPaymentID,
		Body:              SignedBody(p, g.merchantID, g.signer),
	}
	g.remember(job.Body)

	select {
	case g.jobQueue <- job:
		g.queued.Add(1)
		g.logger.Info("notification queued",
			"m_payment_id", job.MerchantPaymentID,
			"pf_payment_id", job.GatewayPaymentID,
			"queue_length", len(g.jobQueue))
		return job, nil
	default:
		g.logger.Warn("job queue full, rejecting notification",
			"m_payment_id", job.MerchantPaymentID,
			"queue_capacity", cap(g.jobQueue))
		return DeliveryJob{}, fmt.Errorf("notification queue full, please try again later")
	}
}

func (g *Gateway) remember(body []byte) {
	sum := sha256.Sum256(body)
	g.sentMu.Lock()
	g.sent[sum] = struct{}{}
	g.sentMu.Unlock()
}

// Sent reports whether body is byte-for-byte a notification this gateway
// produced.
func (g *Gateway) Sent(body []byte) bool {
	sum := sha256.Sum256(body)
	g.sentMu.RLock()
	_, ok := g.sent[sum]
	g.sentMu.RUnlock()
	return ok
}

func (g *Gateway) Stats() Stats {
	return Stats{
		Queued:    g.queued.Load(),
		Delivered: g.delivered.Load(),
		Failed:    g.failed.Load(),
	}
}

// deliver posts the job, retrying with backoff until the merchant answers 200
// or attempts run out.
func (g *Gateway) deliver(job DeliveryJob) {
	backoff := retry.WithMaxRetries(uint64(g.maxAttempts-1), retry.NewExponential(200*time.Millisecond))

	attempt := 0
	err := retry.Do(g.ctx, backoff, func(ctx context.Context) error {
		attempt++
		status, err := g.post(ctx, job.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		if status != http.StatusOK {
			return retry.RetryableError(fmt.Errorf("merchant answered status %d", status))
		}
		return nil
	})
	if err != nil {
		g.failed.Add(1)
		g.logger.Error("notification delivery failed",
			"m_payment_id", job.MerchantPaymentID,
			"attempts", attempt,
			"error", err)
		return
	}

	g.delivered.Add(1)
	g.logger.Info("notification delivered",
		"m_payment_id", job.MerchantPaymentID,
		"attempts", attempt)
}

func (g *Gateway) post(ctx context.Context, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, g.deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.notifyURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create notify request: %w", err)
	}
	req.Header.Set("Content-Type", itn.FormContentType)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("notify request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	return resp.StatusCode, nil
}
