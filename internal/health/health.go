// Package health собирает проверки готовности сервиса расчёта доставки
// и отдаёт их через /healthz, /readyz и /livez.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status: состояние отдельной проверки или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const defaultCheckTimeout = 2 * time.Second

// Result: итог одной проверки.
type Result struct {
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	Critical   bool           `json:"critical"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// Checker проверяет одну зависимость. Name и Critical проставляет Registry.
type Checker interface {
	Check(ctx context.Context) Result
}

// CheckFunc превращает функцию в Checker: ошибка означает unhealthy.
type CheckFunc func(ctx context.Context) error

// Check вызывает f.
func (f CheckFunc) Check(ctx context.Context) Result {
	if err := f(ctx); err != nil {
		return Result{Status: StatusUnhealthy, Message: err.Error()}
	}
	return Result{Status: StatusHealthy}
}

// Report: сводка по всем проверкам.
type Report struct {
	Status        Status    `json:"status"`
	Ready         bool      `json:"ready"`
	Version       string    `json:"version"`
	CheckedAt     time.Time `json:"checked_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Checks        []Result  `json:"checks"`
}

// Failing возвращает имена проверок, которые не прошли.
func (r Report) Failing() []string {
	var names []string
	for _, check := range r.Checks {
		if check.Status == StatusUnhealthy {
			names = append(names, check.Name)
		}
	}
	return names
}

type entry struct {
	name     string
	checker  Checker
	critical bool
}

// Registry хранит проверки и агрегирует их результат.
// Критичная проверка в состоянии unhealthy снимает готовность сервиса,
// некритичная только понижает статус до degraded.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]entry
	version   string
	startedAt time.Time
	timeout   time.Duration
	now       func() time.Time
}

// Option настраивает Registry.
type Option func(*Registry)

// WithCheckTimeout ограничивает время одной проверки.
func WithCheckTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry создаёт пустой набор проверок.
func NewRegistry(version string, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		version: version,
		timeout: defaultCheckTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startedAt = r.now()
	return r
}

// Register добавляет или заменяет проверку name.
func (r *Registry) Register(name string, checker Checker, critical bool) {
	if checker == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{name: name, checker: checker, critical: critical}
}

// Run параллельно выполняет все проверки и собирает Report.
func (r *Registry) Run(ctx context.Context) Report {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	results := make([]Result, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e entry) {
			defer wg.Done()
			results[i] = r.runOne(ctx, e)
		}(i, e)
	}
	wg.Wait()

	report := Report{
		Status:        StatusHealthy,
		Ready:         true,
		Version:       r.version,
		CheckedAt:     r.now(),
		UptimeSeconds: int64(r.now().Sub(r.startedAt).Seconds()),
		Checks:        results,
	}
	for _, res := range results {
		switch {
		case res.Status == StatusUnhealthy && res.Critical:
			report.Status = StatusUnhealthy
			report.Ready = false
		case res.Status != StatusHealthy && report.Status == StatusHealthy:
			report.Status = StatusDegraded
		}
	}
	return report
}

func (r *Registry) runOne(ctx context.Context, e entry) Result {
	checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res := e.checker.Check(checkCtx)
	if res.Status == "" {
		res.Status = StatusHealthy
	}
	if checkCtx.Err() != nil && res.Status == StatusHealthy {
		res.Status = StatusUnhealthy
		res.Message = checkCtx.Err().Error()
	}
	res.Name = e.name
	res.Critical = e.critical
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

// HealthHandler отдаёт полный Report; 503, если сервис не готов.
func (r *Registry) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		report := r.Run(req.Context())
		writeJSON(w, statusCode(report.Ready), report)
	})
}

type readiness struct {
	Ready   bool     `json:"ready"`
	Status  Status   `json:"status"`
	Failing []string `json:"failing,omitempty"`
}

// ReadinessHandler отдаёт краткий ответ для балансировщика.
func (r *Registry) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		report := r.Run(req.Context())
		writeJSON(w, statusCode(report.Ready), readiness{
			Ready:   report.Ready,
			Status:  report.Status,
			Failing: report.Failing(),
		})
	})
}

// LivenessHandler отвечает "ok", пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func statusCode(ready bool) int {
	if ready {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
