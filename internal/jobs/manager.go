package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/crosslist/internal/pipeline"
	"github.com/maltedev/crosslist/internal/proxy"
)

// ConversionStream is the Redis stream bulk-job progress events go to.
const ConversionStream = "crosslist:conversions"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
)

// RedisClient is the slice of the Redis API the manager publishes through.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// Store persists finished conversions. A nil Store disables persistence.
type Store interface {
	SaveConversion(ctx context.Context, jobID uuid.NullUUID, user string, res *pipeline.ConversionResult) (uuid.UUID, error)
}

// Job is one bulk conversion batch tracked by the manager.
type Job struct {
	ID        uuid.UUID
	URLs      []string
	User      string
	Publish   bool
	SellPrice float64

	mu          sync.Mutex
	status      JobStatus
	progress    *pipeline.BulkProgress
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	cancel      context.CancelFunc
}

// JobView is a point-in-time, JSON-safe snapshot of a job.
type JobView struct {
	ID          uuid.UUID                 `json:"id"`
	Status      JobStatus                 `json:"status"`
	User        string                    `json:"user,omitempty"`
	Publish     bool                      `json:"publish"`
	URLCount    int                       `json:"url_count"`
	Progress    pipeline.ProgressSnapshot `json:"progress"`
	CreatedAt   time.Time                 `json:"created_at"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
}

func (j *Job) view() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()

	view := JobView{
		ID:        j.ID,
		Status:    j.status,
		User:      j.User,
		Publish:   j.Publish,
		URLCount:  len(j.URLs),
		Progress:  j.progress.Snapshot(),
		CreatedAt: j.createdAt,
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		view.StartedAt = &t
	}
	if !j.completedAt.IsZero() {
		t := j.completedAt
		view.CompletedAt = &t
	}
	return view
}

func (j *Job) setStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	switch status {
	case JobRunning:
		j.startedAt = time.Now()
	case JobCompleted, JobCancelled:
		j.completedAt = time.Now()
	}
}

// Results returns the conversion results resolved so far.
func (j *Job) Results() []*pipeline.ConversionResult {
	return j.progress.Results()
}

// Manager owns bulk conversion jobs: it runs each batch on its own
// goroutine, publishes per-item progress to a Redis stream and persists
// outcomes through the Store. Concurrent batches contend on the browser
// pool's capacity gate rather than a per-batch limit here.
type Manager struct {
	pipeline *pipeline.Pipeline
	store    Store
	redis    RedisClient
	logger   *slog.Logger

	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
	wg   sync.WaitGroup
}

func NewManager(p *pipeline.Pipeline, store Store, redisClient RedisClient) *Manager {
	return &Manager{
		pipeline: p,
		store:    store,
		redis:    redisClient,
		logger:   slog.Default().With("component", "job_manager"),
		jobs:     make(map[uuid.UUID]*Job),
	}
}

// SubmitRequest describes one bulk batch.
type SubmitRequest struct {
	URLs      []string `json:"urls"`
	User      string   `json:"user"`
	Publish   bool     `json:"publish"`
	SellPrice float64  `json:"sell_price,omitempty"`
}

// Submit registers a job and starts it in the background.
func (m *Manager) Submit(req SubmitRequest) (*Job, error) {
	if len(req.URLs) == 0 {
		return nil, fmt.Errorf("no urls given")
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.New(),
		URLs:      req.URLs,
		User:      req.User,
		Publish:   req.Publish,
		SellPrice: req.SellPrice,
		status:    JobPending,
		progress:  pipeline.NewBulkProgress(len(req.URLs)),
		createdAt: time.Now(),
		cancel:    cancel,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, job)

	m.logger.Info("job submitted", "id", job.ID, "urls", len(req.URLs), "publish", req.Publish)
	return job, nil
}

func (m *Manager) run(ctx context.Context, job *Job) {
	defer m.wg.Done()
	defer job.cancel()

	job.setStatus(JobRunning)

	req := pipeline.ConvertRequest{User: job.User, Publish: job.Publish, SellPrice: job.SellPrice}
	m.pipeline.ConvertBulk(ctx, job.URLs, req, job.progress, func(res *pipeline.ConversionResult) {
		m.persist(job, res)
		m.publishProgress(job, res)
	})

	if ctx.Err() != nil {
		job.setStatus(JobCancelled)
	} else {
		job.setStatus(JobCompleted)
	}

	snap := job.progress.Snapshot()
	m.logger.Info("job finished",
		"id", job.ID,
		"status", job.view().Status,
		"completed", snap.Completed,
		"failed", snap.Failed)
}

func (m *Manager) persist(job *Job, res *pipeline.ConversionResult) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jobID := uuid.NullUUID{UUID: job.ID, Valid: true}
	if _, err := m.store.SaveConversion(ctx, jobID, job.User, res); err != nil {
		m.logger.Error("failed to persist conversion", "job_id", job.ID, "url", res.URL, "error", err)
	}
}

func (m *Manager) publishProgress(job *Job, res *pipeline.ConversionResult) {
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap := job.progress.Snapshot()
	progressJSON, err := json.Marshal(snap)
	if err != nil {
		m.logger.Error("failed to marshal progress", "job_id", job.ID, "error", err)
		return
	}

	args := &redis.XAddArgs{
		Stream: ConversionStream,
		Values: map[string]any{
			"event_type": "CONVERSION_PROGRESS",
			"job_id":     job.ID.String(),
			"url":        res.URL,
			"status":     string(res.Status),
			"step":       string(res.Step),
			"error":      res.Error,
			"progress":   string(progressJSON),
			"timestamp":  fmt.Sprintf("%d", time.Now().UnixNano()),
		},
	}
	if _, err := m.redis.XAdd(ctx, args).Result(); err != nil {
		m.logger.Error("failed to publish progress", "job_id", job.ID, "error", err)
	}
}

// Get returns a job by id.
func (m *Manager) Get(id uuid.UUID) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

// Snapshot returns a JSON-safe view of a job.
func (m *Manager) Snapshot(id uuid.UUID) (JobView, bool) {
	job, ok := m.Get(id)
	if !ok {
		return JobView{}, false
	}
	return job.view(), true
}

// List returns snapshots of every known job.
func (m *Manager) List() []JobView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]JobView, 0, len(m.jobs))
	for _, job := range m.jobs {
		views = append(views, job.view())
	}
	return views
}

// Cancel stops a running job. Already-resolved URLs keep their results.
func (m *Manager) Cancel(id uuid.UUID) bool {
	job, ok := m.Get(id)
	if !ok {
		return false
	}
	job.cancel()
	m.logger.Info("job cancelled", "id", id)
	return true
}

// Wait blocks until all running jobs finish. Used during shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// RunProxyMaintenance periodically reactivates dead proxies so the pools
// recover after a hostile stretch. Blocks until ctx is done.
func (m *Manager) RunProxyMaintenance(ctx context.Context, pool *proxy.Pool, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := pool.ReactivateAll(); n > 0 {
				m.logger.Info("reactivated proxies", "count", n)
			}
		}
	}
}
