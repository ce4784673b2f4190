// Package notification delivers guest and host messages through an external
// gateway. Delivery is fire-and-forget from the caller's point of view: Send
// enqueues, a worker pool posts, and a failed delivery is logged rather than
// surfaced, because no booking or payment decision ever depends on it.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	notificationtypes "github.com/frahmantamala/stay-booking/internal/core/datamodel/notification"
)

type deliveryJob struct {
	Message notificationtypes.Message
}

type worker struct {
	id         int
	workerPool chan chan deliveryJob
	jobChannel chan deliveryJob
	logger     *slog.Logger
}

func newWorker(id int, workerPool chan chan deliveryJob, logger *slog.Logger) *worker {
	return &worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan deliveryJob),
		logger:     logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, deliver func(deliveryJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.workerPool <- w.jobChannel

			select {
			case job := <-w.jobChannel:
				w.logger.Debug("worker delivering notification",
					"worker_id", w.id,
					"user_id", job.Message.UserID,
					"template", job.Message.Template)
				deliver(job)
			case <-ctx.Done():
				w.logger.Debug("notification worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

type Client struct {
	gatewayURL     string
	apiKey         string
	requestTimeout time.Duration
	logger         *slog.Logger

	jobQueue   chan deliveryJob
	workerPool chan chan deliveryJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type Config struct {
	GatewayURL     string
	APIKey         string
	RequestTimeout time.Duration
	MaxWorkers     int
	JobQueueSize   int
	WorkerPoolSize int
}

func NewClient(config Config, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	workerPoolSize := config.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = maxWorkers
	}

	requestTimeout := config.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	client := &Client{
		gatewayURL:     config.GatewayURL,
		apiKey:         config.APIKey,
		requestTimeout: requestTimeout,
		logger:         logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan deliveryJob, jobQueueSize),
		workerPool: make(chan chan deliveryJob, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	client.startWorkerPool()

	return client
}

func (c *Client) startWorkerPool() {
	c.once.Do(func() {
		for i := 0; i < c.maxWorkers; i++ {
			w := newWorker(i, c.workerPool, c.logger)
			w.start(c.ctx, &c.wg, c.deliver)
		}

		// registered before the goroutine starts so a Shutdown racing with
		// startup cannot Wait past the dispatcher
		c.wg.Add(1)
		go c.dispatch()

		c.logger.Info("notification worker pool started",
			"max_workers", c.maxWorkers,
			"queue_size", cap(c.jobQueue))
	})
}

func (c *Client) dispatch() {
	defer c.wg.Done()

	for {
		select {
		case job := <-c.jobQueue:
			select {
			case jobChannel := <-c.workerPool:
				select {
				case jobChannel <- job:

				case <-c.ctx.Done():
					c.logger.Info("notification dispatcher shutting down")
					return
				}
			case <-c.ctx.Done():
				c.logger.Info("notification dispatcher shutting down")
				return
			}
		case <-c.ctx.Done():
			c.logger.Info("notification dispatcher shutting down")
			return
		}
	}
}

func (c *Client) Shutdown() {
	c.logger.Info("shutting down notification client")
	c.cancel()
	c.wg.Wait()
	c.logger.Info("notification client shutdown complete")
}

// Send enqueues one message for asynchronous delivery. A full queue drops the
// message with a warning instead of blocking the caller.
func (c *Client) Send(userID int64, template string, data map[string]interface{}) error {
	msg := notificationtypes.Message{
		UserID:   userID,
		Template: template,
		Data:     data,
	}
	if err := msg.Validate(); err != nil {
		c.logger.Error("notification validation failed", "error", err)
		return fmt.Errorf("validation error: %w", err)
	}

	select {
	case c.jobQueue <- deliveryJob{Message: msg}:
		c.logger.Debug("notification queued",
			"user_id", userID,
			"template", template,
			"queue_length", len(c.jobQueue))
		return nil
	default:
		c.logger.Warn("notification queue full, dropping message",
			"user_id", userID,
			"template", template,
			"queue_capacity", cap(c.jobQueue))
		return fmt.Errorf("notification queue full")
	}
}

func (c *Client) deliver(job deliveryJob) {
	jsonData, err := json.Marshal(job.Message)
	if err != nil {
		c.logger.Error("failed to marshal notification", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		c.logger.Error("failed to create notification request",
			"error", err,
			"user_id", job.Message.UserID)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpClient := &http.Client{Timeout: c.requestTimeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		c.logger.Error("notification delivery failed",
			"error", err,
			"user_id", job.Message.UserID,
			"template", job.Message.Template)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Info("notification delivered",
			"user_id", job.Message.UserID,
			"template", job.Message.Template,
			"status_code", resp.StatusCode)
	} else {
		c.logger.Warn("notification gateway returned error",
			"user_id", job.Message.UserID,
			"template", job.Message.Template,
			"status_code", resp.StatusCode)
	}
}
