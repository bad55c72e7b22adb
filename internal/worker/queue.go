// Package worker runs the mockup generation queue: an in-memory, ordered set
// of tasks drained by a single logical worker that respects the provider's
// mockup rate limit.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"atrocitee/internal/domain"
	"atrocitee/internal/events"
	"atrocitee/internal/metrics"
	"atrocitee/internal/models"
	"atrocitee/internal/observability"
	"atrocitee/internal/provider"
	"atrocitee/internal/ratelimit"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const fallbackArtifactURL = "https://placehold.co/1800x2400.png"

var (
	ErrTaskNotFound   = fmt.Errorf("mockup task: %w", domain.ErrNotFound)
	ErrInvalidRequest = errors.New("invalid mockup request")
)

// MockupClient is the part of the provider client the queue needs.
type MockupClient interface {
	CreateMockupTask(ctx context.Context, productID int64, req provider.MockupTaskRequest) (*provider.MockupTaskResult, error)
	GetMockupTask(ctx context.Context, taskKey string) (*provider.MockupTaskResult, error)
}

type MockupRequest struct {
	VariantID          int64  `json:"variant_id"`
	ProviderProductID  int64  `json:"provider_product_id"`
	ProviderVariantID  int64  `json:"provider_variant_id"`
	ProviderExternalID string `json:"provider_external_id,omitempty"`
	View               string `json:"view"`
	ArtifactURL        string `json:"artifact_url,omitempty"`
}

type Options struct {
	DefaultArtifactURL string
	RedrainDelay       time.Duration
	Retention          time.Duration
	SweepInterval      time.Duration
	Store              domain.TaskStore
	Events             domain.EventPublisher
	Reporter           observability.Reporter
	Logger             *zerolog.Logger
}

type stepOutcome int

const (
	stepIdle stepOutcome = iota
	stepThrottled
	stepProcessed
)

// Queue owns every mockup task of the process. Construct one per process
// and share it between the HTTP handlers and the CLI.
type Queue struct {
	client          MockupClient
	limiter         *ratelimit.Limiter
	store           domain.TaskStore
	events          domain.EventPublisher
	reporter        observability.Reporter
	logger          zerolog.Logger
	defaultArtifact string
	redrain         time.Duration
	retention       time.Duration
	sweepEvery      time.Duration

	mu       sync.Mutex
	tasks    []*models.MockupTask
	ctx      context.Context
	wakeAt   time.Time
	stopWake func() bool

	running atomic.Bool

	now      func() time.Time
	schedule func(d time.Duration, fn func()) func() bool
	spawn    func(fn func())
}

func NewQueue(client MockupClient, limiter *ratelimit.Limiter, opts Options) *Queue {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "mockup_queue").Logger()
	}
	if limiter == nil {
		limiter = ratelimit.New(2, ratelimit.DefaultWindow)
	}
	redrain := opts.RedrainDelay
	if redrain <= 0 {
		redrain = 100 * time.Millisecond
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	sweepEvery := opts.SweepInterval
	if sweepEvery <= 0 {
		sweepEvery = 10 * time.Minute
	}

	return &Queue{
		client:          client,
		limiter:         limiter,
		store:           opts.Store,
		events:          opts.Events,
		reporter:        observability.OrNop(opts.Reporter),
		logger:          logger,
		defaultArtifact: opts.DefaultArtifactURL,
		redrain:         redrain,
		retention:       retention,
		sweepEvery:      sweepEvery,
		ctx:             context.Background(),
		now:             time.Now,
		schedule: func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		},
		spawn: func(fn func()) { go fn() },
	}
}

// WithClock replaces the time source. Intended for tests.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// WithScheduler replaces time.AfterFunc and the goroutine launcher. Intended for tests.
func (q *Queue) WithScheduler(schedule func(d time.Duration, fn func()) func() bool, spawn func(fn func())) *Queue {
	if schedule != nil {
		q.schedule = schedule
	}
	if spawn != nil {
		q.spawn = spawn
	}
	return q
}

// Start binds the queue to ctx, restores unfinished tasks from the mirror,
// starts the retention sweep and kicks the worker. Once ctx is done no new
// loop is started.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	q.ctx = ctx
	q.mu.Unlock()

	go func() {
		ticker := time.NewTicker(q.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				if q.stopWake != nil {
					q.stopWake()
					q.stopWake = nil
				}
				q.mu.Unlock()
				return
			case <-ticker.C:
				if _, err := q.Sweep(ctx); err != nil {
					q.logger.Warn().Err(err).Msg("mockup task sweep failed")
				}
			}
		}
	}()

	return q.Restore(ctx)
}

// Sweep drops completed and failed tasks that finished more than the
// retention period ago, from memory and from the mirror. It returns the
// number of tasks evicted from memory.
func (q *Queue) Sweep(ctx context.Context) (int, error) {
	cutoff := q.now().Add(-q.retention)

	q.mu.Lock()
	kept := q.tasks[:0]
	evicted := 0
	for _, t := range q.tasks {
		if t.Status.Terminal() && t.UpdatedAt.Before(cutoff) {
			evicted++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(q.tasks); i++ {
		q.tasks[i] = nil
	}
	q.tasks = kept
	q.mu.Unlock()

	if evicted > 0 {
		q.logger.Debug().Int("count", evicted).Msg("evicted finished mockup tasks")
	}
	if q.store == nil {
		return evicted, nil
	}
	if _, err := q.store.PurgeFinishedMockupTasks(ctx, cutoff); err != nil {
		return evicted, fmt.Errorf("purge mirrored mockup tasks: %w", err)
	}
	return evicted, nil
}

// Restore reloads non-terminal tasks from the mirror table.
func (q *Queue) Restore(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	stored, err := q.store.ListActiveMockupTasks(ctx)
	if err != nil {
		return fmt.Errorf("restore mockup tasks: %w", err)
	}

	q.mu.Lock()
	known := make(map[uuid.UUID]bool, len(q.tasks))
	for _, t := range q.tasks {
		known[t.ID] = true
	}
	restored := 0
	for _, t := range stored {
		if known[t.ID] {
			continue
		}
		q.tasks = append(q.tasks, t)
		restored++
	}
	sort.SliceStable(q.tasks, func(i, j int) bool { return q.tasks[i].CreatedAt.Before(q.tasks[j].CreatedAt) })
	q.mu.Unlock()

	if restored > 0 {
		q.logger.Info().Int("count", restored).Msg("restored mockup tasks")
	}
	q.Trigger()
	return nil
}

// Enqueue adds a pending task and wakes the worker. While a non-terminal
// task exists for the same variant and view, that task is returned instead.
func (q *Queue) Enqueue(ctx context.Context, req MockupRequest) (*models.MockupTask, error) {
	if req.VariantID <= 0 || req.ProviderProductID <= 0 || req.ProviderVariantID <= 0 {
		return nil, fmt.Errorf("%w: variant_id, provider_product_id and provider_variant_id are required", ErrInvalidRequest)
	}
	view := NormalizeView(req.View)

	q.mu.Lock()
	for _, t := range q.tasks {
		if t.VariantID == req.VariantID && t.View == view && !t.Status.Terminal() {
			existing := cloneTask(t)
			q.mu.Unlock()
			return existing, nil
		}
	}

	now := q.now()
	task := &models.MockupTask{
		ID:                 uuid.New(),
		VariantID:          req.VariantID,
		ProviderProductID:  req.ProviderProductID,
		ProviderVariantID:  req.ProviderVariantID,
		ProviderExternalID: req.ProviderExternalID,
		View:               view,
		ArtifactURL:        q.artifactFor(req.ArtifactURL),
		Status:             models.TaskPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	q.tasks = append(q.tasks, task)
	snapshot := cloneTask(task)
	q.mu.Unlock()

	metrics.IncMockupTransition(string(models.TaskPending))
	q.persist(ctx, snapshot)
	q.logger.Debug().Str("task_id", snapshot.ID.String()).Int64("variant_id", snapshot.VariantID).Str("view", string(view)).Msg("mockup task enqueued")

	q.Trigger()
	return cloneTask(snapshot), nil
}

// Trigger starts the worker loop unless one is already running.
func (q *Queue) Trigger() {
	if q.context().Err() != nil {
		return
	}
	if !q.running.CompareAndSwap(false, true) {
		return
	}
	q.spawn(q.runLoop)
}

func (q *Queue) runLoop() {
	ctx := q.context()
	switch q.step(ctx) {
	case stepThrottled:
		// The wake-up armed by step resumes the drain.
		q.running.Store(false)
	case stepProcessed:
		q.running.Store(false)
		q.schedule(q.redrain, q.Trigger)
	default:
		q.running.Store(false)
		// An enqueue may have lost the race with the idle decision.
		if q.hasReady() {
			q.Trigger()
		}
	}
}

// step advances at most one task through the state machine.
func (q *Queue) step(ctx context.Context) stepOutcome {
	now := q.now()

	q.mu.Lock()
	task := q.nextCandidate(now)
	if task == nil {
		earliest := q.earliestRetry()
		q.mu.Unlock()
		if earliest != nil {
			q.wakeIn(earliest.Sub(now))
		}
		return stepIdle
	}

	if !q.limiter.CanProceed() {
		wait := q.limiter.TimeUntilNextSlot()
		q.markRateLimited(task, now, wait)
		snapshot := cloneTask(task)
		q.mu.Unlock()

		q.persist(ctx, snapshot)
		q.logger.Debug().Str("task_id", snapshot.ID.String()).Dur("wait", wait).Msg("mockup limiter refused, task deferred")
		q.wakeIn(wait)
		return stepThrottled
	}

	task.Status = models.TaskProcessing
	task.RetryAfter = nil
	task.UpdatedAt = now
	q.limiter.RecordCall()
	snapshot := cloneTask(task)
	q.mu.Unlock()

	metrics.IncMockupTransition(string(models.TaskProcessing))
	q.persist(ctx, snapshot)

	result, err := q.client.CreateMockupTask(ctx, snapshot.ProviderProductID, q.buildRequest(snapshot))

	done := q.now()
	q.mu.Lock()
	var throttleWait time.Duration
	switch {
	case err == nil:
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			task.Status = models.TaskError
			task.Error = fmt.Sprintf("encode result: %v", mErr)
		} else {
			task.Status = models.TaskCompleted
			task.Result = raw
			task.Error = ""
		}
		task.UpdatedAt = done
	default:
		if wait, ok := provider.ParseThrottleHint(err); ok {
			throttleWait = wait
			q.markRateLimited(task, done, wait)
			task.Error = err.Error()
		} else {
			task.Status = models.TaskError
			task.Error = err.Error()
			task.UpdatedAt = done
		}
	}
	if task.Status != models.TaskRateLimited {
		metrics.IncMockupTransition(string(task.Status))
	}
	snapshot = cloneTask(task)
	q.mu.Unlock()

	q.persist(ctx, snapshot)

	switch snapshot.Status {
	case models.TaskRateLimited:
		q.logger.Info().Str("task_id", snapshot.ID.String()).Dur("wait", throttleWait).Msg("provider throttled mockup job")
		q.wakeIn(throttleWait)
	case models.TaskError:
		q.reporter.Report(ctx, "mockup.generate", err, observability.Tags(
			"task_id", snapshot.ID.String(),
			"variant_id", fmt.Sprint(snapshot.VariantID),
			"view", string(snapshot.View),
		))
		q.publish(snapshot)
	case models.TaskCompleted:
		q.logger.Info().Str("task_id", snapshot.ID.String()).Msg("mockup task completed")
		q.publish(snapshot)
	}
	return stepProcessed
}

// nextCandidate prefers the oldest pending task over any rate limited task
// whose retry time has passed. Caller holds q.mu.
func (q *Queue) nextCandidate(now time.Time) *models.MockupTask {
	var throttled *models.MockupTask
	for _, t := range q.tasks {
		switch t.Status {
		case models.TaskPending:
			return t
		case models.TaskRateLimited:
			if throttled == nil && (t.RetryAfter == nil || !t.RetryAfter.After(now)) {
				throttled = t
			}
		}
	}
	if throttled != nil {
		throttled.Status = models.TaskPending
		throttled.RetryAfter = nil
	}
	return throttled
}

// earliestRetry returns the soonest future retry time. Caller holds q.mu.
func (q *Queue) earliestRetry() *time.Time {
	var earliest *time.Time
	for _, t := range q.tasks {
		if t.Status == models.TaskRateLimited && t.RetryAfter != nil {
			if earliest == nil || t.RetryAfter.Before(*earliest) {
				at := *t.RetryAfter
				earliest = &at
			}
		}
	}
	return earliest
}

// markRateLimited moves a task to rate_limited. Caller holds q.mu.
func (q *Queue) markRateLimited(task *models.MockupTask, now time.Time, wait time.Duration) {
	retryAt := now.Add(wait)
	task.Status = models.TaskRateLimited
	task.RetryAfter = &retryAt
	task.Attempts++
	task.UpdatedAt = now
	metrics.IncMockupTransition(string(models.TaskRateLimited))
}

func (q *Queue) hasReady() bool {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if t.Status == models.TaskPending {
			return true
		}
		if t.Status == models.TaskRateLimited && t.RetryAfter != nil && !t.RetryAfter.After(now) {
			return true
		}
	}
	return false
}

// wakeIn keeps a single wake-up timer armed for the earliest needed time.
func (q *Queue) wakeIn(d time.Duration) {
	if d < 0 {
		d = 0
	}
	at := q.now().Add(d)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx.Err() != nil {
		return
	}
	if q.stopWake != nil && !q.wakeAt.After(at) {
		return
	}
	if q.stopWake != nil {
		q.stopWake()
	}
	q.wakeAt = at
	q.stopWake = q.schedule(d, func() {
		q.mu.Lock()
		if q.wakeAt.Equal(at) {
			q.wakeAt = time.Time{}
			q.stopWake = nil
		}
		q.mu.Unlock()
		q.Trigger()
	})
}

func (q *Queue) buildRequest(t *models.MockupTask) provider.MockupTaskRequest {
	req := provider.MockupTaskRequest{
		VariantIDs: []int64{t.ProviderVariantID},
		Format:     "jpg",
		Files: []provider.MockupFile{{
			Placement: Placement(t.View),
			ImageURL:  q.artifactFor(t.ArtifactURL),
		}},
	}
	if style, ok := mockupStyles[t.View]; ok {
		req.Options = []string{style}
	}
	return req
}

// artifactFor never returns an empty reference; the provider rejects jobs without a file.
func (q *Queue) artifactFor(url string) string {
	switch {
	case url != "":
		return url
	case q.defaultArtifact != "":
		return q.defaultArtifact
	default:
		return fallbackArtifactURL
	}
}

func (q *Queue) persist(ctx context.Context, t *models.MockupTask) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveMockupTask(ctx, t); err != nil {
		q.logger.Warn().Err(err).Str("task_id", t.ID.String()).Msg("failed to mirror mockup task")
	}
}

func (q *Queue) publish(t *models.MockupTask) {
	if q.events == nil {
		return
	}
	payload := events.MockupTaskPayload{
		TaskID:    t.ID.String(),
		VariantID: t.VariantID,
		View:      string(t.View),
		Status:    string(t.Status),
		Error:     t.Error,
	}
	if err := q.events.PublishJSON(events.EventMockupTaskFinished, payload); err != nil {
		q.logger.Warn().Err(err).Msg("failed to publish mockup event")
	}
}

func (q *Queue) context() context.Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ctx
}

// Get returns a copy of the task.
func (q *Queue) Get(id uuid.UUID) (*models.MockupTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if t.ID == id {
			return cloneTask(t), nil
		}
	}
	return nil, ErrTaskNotFound
}

// List returns copies of all tasks in creation order.
func (q *Queue) List() []*models.MockupTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.MockupTask, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, cloneTask(t))
	}
	return out
}

// Remove drops a task that the worker has not picked up yet.
func (q *Queue) Remove(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	idx := -1
	for i, t := range q.tasks {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	if q.tasks[idx].Status != models.TaskPending {
		status := q.tasks[idx].Status
		q.mu.Unlock()
		return fmt.Errorf("%w: task is %s", domain.ErrInvalidTransition, status)
	}
	q.tasks = append(q.tasks[:idx], q.tasks[idx+1:]...)
	q.mu.Unlock()

	if q.store != nil {
		if err := q.store.DeleteMockupTask(ctx, id); err != nil {
			q.logger.Warn().Err(err).Str("task_id", id.String()).Msg("failed to delete mirrored mockup task")
		}
	}
	return nil
}

// Refresh polls the provider for the generation job behind a completed task
// and stores the latest result.
func (q *Queue) Refresh(ctx context.Context, id uuid.UUID) (*models.MockupTask, error) {
	task, err := q.Get(id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskCompleted {
		return nil, fmt.Errorf("%w: task is %s", domain.ErrInvalidTransition, task.Status)
	}

	var previous provider.MockupTaskResult
	if err := json.Unmarshal(task.Result, &previous); err != nil || previous.TaskKey == "" {
		return nil, fmt.Errorf("task %s has no provider task key", id)
	}

	latest, err := q.client.GetMockupTask(ctx, previous.TaskKey)
	if err != nil {
		return nil, fmt.Errorf("poll mockup task %s: %w", previous.TaskKey, err)
	}
	raw, err := json.Marshal(latest)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	q.mu.Lock()
	var snapshot *models.MockupTask
	for _, t := range q.tasks {
		if t.ID == id {
			t.Result = raw
			t.UpdatedAt = q.now()
			snapshot = cloneTask(t)
			break
		}
	}
	q.mu.Unlock()
	if snapshot == nil {
		return nil, ErrTaskNotFound
	}

	q.persist(ctx, snapshot)
	return snapshot, nil
}

func cloneTask(t *models.MockupTask) *models.MockupTask {
	c := *t
	if t.RetryAfter != nil {
		at := *t.RetryAfter
		c.RetryAfter = &at
	}
	if t.Result != nil {
		c.Result = append(json.RawMessage(nil), t.Result...)
	}
	return &c
}
