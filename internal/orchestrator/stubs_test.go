package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"motionbooth/internal/domain"
	"motionbooth/internal/pollqueue"
	"motionbooth/internal/provider/runway"
)

// memTaskRepo mirrors the conditional-update semantics of the SQL layer so
// the idempotency scenarios exercise the same win/lose transitions.
type memTaskRepo struct {
	mu    sync.Mutex
	rows  map[string]*domain.GenerationTask
	errOn map[string]error
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{rows: map[string]*domain.GenerationTask{}, errOn: map[string]error{}}
}

func (r *memTaskRepo) failOn(method string, err error) { r.errOn[method] = err }

func (r *memTaskRepo) Create(_ context.Context, task *domain.GenerationTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["Create"]; err != nil {
		return err
	}
	cp := *task
	r.rows[task.ID] = &cp
	return nil
}

func (r *memTaskRepo) GetByID(_ context.Context, taskID string) (*domain.GenerationTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["GetByID"]; err != nil {
		return nil, err
	}
	row, ok := r.rows[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memTaskRepo) MarkSubmitted(_ context.Context, taskID, providerTaskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if row.State == domain.TaskStatePending {
		row.State = domain.TaskStateSubmitted
		row.ProviderTaskID = providerTaskID
	}
	return nil
}

func (r *memTaskRepo) MarkPolling(_ context.Context, taskID string, attempt int, observed domain.ProviderState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn["MarkPolling"]; err != nil {
		return err
	}
	row, ok := r.rows[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if row.State == domain.TaskStateSubmitted || row.State == domain.TaskStatePolling {
		row.State = domain.TaskStatePolling
		if attempt > row.Attempt {
			row.Attempt = attempt
		}
		row.LastProviderState = observed
	}
	return nil
}

func (r *memTaskRepo) FinalizeSuccess(_ context.Context, taskID, videoURL, thumbnailURL string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[taskID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if row.State.IsTerminal() {
		return false, nil
	}
	row.State = domain.TaskStateSucceeded
	row.ResultVideoURL = videoURL
	row.ResultThumbnailURL = thumbnailURL
	return true, nil
}

func (r *memTaskRepo) FinalizeFailure(_ context.Context, taskID, errorMessage string, gaveUp bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[taskID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if row.State.IsTerminal() {
		return false, nil
	}
	row.State = domain.TaskStateFailed
	row.ErrorMessage = errorMessage
	row.GaveUp = gaveUp
	return true, nil
}

func (r *memTaskRepo) MarkNotified(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	row.NotifiedAt = &now
	return nil
}

func (r *memTaskRepo) RecordLateResult(_ context.Context, taskID, videoURL, thumbnailURL string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[taskID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if row.State != domain.TaskStateFailed || !row.GaveUp || row.ResultVideoURL != "" {
		return false, nil
	}
	row.ResultVideoURL = videoURL
	row.ResultThumbnailURL = thumbnailURL
	return true, nil
}

func (r *memTaskRepo) ListRecheckable(_ context.Context, ownerID string, cutoff time.Time, limit int) ([]domain.GenerationTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.GenerationTask
	for _, row := range r.rows {
		if row.OwnerID != ownerID {
			continue
		}
		stale := !row.State.IsTerminal() && row.UpdatedAt.Before(cutoff)
		lateCandidate := row.State == domain.TaskStateFailed && row.GaveUp && row.ResultVideoURL == ""
		if stale || lateCandidate {
			out = append(out, *row)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memTaskRepo) ListRecheckableOwners(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, row := range r.rows {
		stale := !row.State.IsTerminal() && row.UpdatedAt.Before(cutoff)
		lateCandidate := row.State == domain.TaskStateFailed && row.GaveUp && row.ResultVideoURL == ""
		if (stale || lateCandidate) && !seen[row.OwnerID] {
			seen[row.OwnerID] = true
			out = append(out, row.OwnerID)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memQuota struct {
	mu         sync.Mutex
	limit      int
	used       map[string]int
	reserves   int
	refunds    int
	reserveErr error
	refundErr  error
}

func newMemQuota(limit int) *memQuota {
	return &memQuota{limit: limit, used: map[string]int{}}
}

func (q *memQuota) Reserve(_ context.Context, ownerID string, amount int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reserves++
	if q.reserveErr != nil {
		return 0, q.reserveErr
	}
	if q.used[ownerID]+amount > q.limit {
		return 0, domain.ErrQuotaExceeded
	}
	q.used[ownerID] += amount
	return q.limit - q.used[ownerID], nil
}

func (q *memQuota) Refund(_ context.Context, ownerID string, amount int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refunds++
	if q.refundErr != nil {
		return q.refundErr
	}
	if q.used[ownerID] < amount {
		q.used[ownerID] = 0
		return nil
	}
	q.used[ownerID] -= amount
	return nil
}

func (q *memQuota) Get(_ context.Context, ownerID string) (*domain.QuotaEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &domain.QuotaEntry{OwnerID: ownerID, Used: q.used[ownerID], Limit: q.limit}, nil
}

// statusStep scripts one Status call.
type statusStep struct {
	status domain.ProviderStatus
	err    error
}

type stubProvider struct {
	submitID    string
	submitErr   error
	submitErrs  []error // consumed before submitErr, one per call
	submitCalls int

	statusSteps []statusStep
	statusCalls int
}

func (p *stubProvider) Submit(context.Context, runway.SubmitRequest) (string, error) {
	p.submitCalls++
	if len(p.submitErrs) > 0 {
		err := p.submitErrs[0]
		p.submitErrs = p.submitErrs[1:]
		if err != nil {
			return "", err
		}
		return p.submitID, nil
	}
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return p.submitID, nil
}

func (p *stubProvider) Status(context.Context, string) (domain.ProviderStatus, error) {
	p.statusCalls++
	if len(p.statusSteps) == 0 {
		return domain.ProviderStatus{State: domain.ProviderStateRunning}, nil
	}
	step := p.statusSteps[0]
	if len(p.statusSteps) > 1 {
		p.statusSteps = p.statusSteps[1:]
	}
	return step.status, step.err
}

type scheduled struct {
	msg   pollqueue.Message
	delay time.Duration
}

type stubScheduler struct {
	entries []scheduled
	err     error
}

func (s *stubScheduler) Enqueue(_ context.Context, msg pollqueue.Message, delay time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, scheduled{msg: msg, delay: delay})
	return nil
}

type stubNotifier struct {
	notifications   []domain.Notification
	progresses      int
	progressLocales []string
	summaries       int
	failNext        int
}

func (n *stubNotifier) Notify(_ context.Context, msg domain.Notification) error {
	if n.failNext > 0 {
		n.failNext--
		return errors.New("push channel unavailable")
	}
	n.notifications = append(n.notifications, msg)
	return nil
}

func (n *stubNotifier) Progress(_ context.Context, _, _, locale string, _ domain.ProviderState, _, _ int) error {
	n.progresses++
	n.progressLocales = append(n.progressLocales, locale)
	return nil
}

func (n *stubNotifier) RecheckSummary(context.Context, string, string, int, int) error {
	n.summaries++
	return nil
}

type usageEvent struct {
	eventType string
	success   bool
}

type stubUsage struct {
	events []usageEvent
}

func (u *stubUsage) Record(_ context.Context, _, _, eventType string, success bool, _ time.Duration, _ map[string]any) error {
	u.events = append(u.events, usageEvent{eventType: eventType, success: success})
	return nil
}

type fixture struct {
	tasks    *memTaskRepo
	quota    *memQuota
	provider *stubProvider
	queue    *stubScheduler
	notifier *stubNotifier
	usage    *stubUsage
	orch     *Orchestrator
	slept    []time.Duration
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		tasks:    newMemTaskRepo(),
		quota:    newMemQuota(8),
		provider: &stubProvider{submitID: "prov-task-1"},
		queue:    &stubScheduler{},
		notifier: &stubNotifier{},
		usage:    &stubUsage{},
	}
	f.orch = New(f.tasks, f.quota, f.provider, f.queue, f.notifier, f.usage, zerolog.Nop(), cfg)
	f.orch.sleep = func(_ context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}
	return f
}

func (f *fixture) seedTask(id, owner string, state domain.TaskState) *domain.GenerationTask {
	task := &domain.GenerationTask{
		ID:        id,
		OwnerID:   owner,
		ImageRef:  "https://cdn.example.com/photo.jpg",
		State:     state,
		Locale:    "zh",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if state != domain.TaskStatePending {
		task.ProviderTaskID = "prov-task-1"
	}
	_ = f.tasks.Create(context.Background(), task)
	return task
}
