package usecases

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"verifyflow.backend/pkg/logger"
)

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"

	defaultProbeTimeout = 500 * time.Millisecond
)

// Probe checks one dependency
type Probe func(ctx context.Context) error

// HealthReport is the body served by /health and /ready
type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	CheckedAt  time.Time         `json:"checkedAt"`
}

// HealthUsecase runs dependency probes with a short timeout each
type HealthUsecase struct {
	probes   map[string]Probe
	critical map[string]bool
	timeout  time.Duration
}

// NewHealthUsecase creates a health usecase without probes
func NewHealthUsecase(timeout time.Duration) *HealthUsecase {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HealthUsecase{
		probes:   make(map[string]Probe),
		critical: make(map[string]bool),
		timeout:  timeout,
	}
}

// Register adds a probe. Critical probes decide readiness.
func (u *HealthUsecase) Register(name string, probe Probe, critical bool) {
	u.probes[name] = probe
	u.critical[name] = critical
}

// Check runs every probe concurrently and reports ok or degraded. The
// second return value is false when a critical dependency is down.
func (u *HealthUsecase) Check(ctx context.Context) (*HealthReport, bool) {
	names := make([]string, 0, len(u.probes))
	for name := range u.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	// probes report through errs and always return nil so one failure
	// never cancels the others
	errs := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		probe := u.probes[name]
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, u.timeout)
			defer cancel()
			errs[i] = runProbe(probeCtx, probe)
			return nil
		})
	}
	_ = g.Wait()

	report := &HealthReport{
		Status:     HealthStatusOK,
		Components: make(map[string]string, len(names)),
		CheckedAt:  time.Now().UTC(),
	}
	ready := true
	var failed []string
	for i, name := range names {
		if errs[i] == nil {
			report.Components[name] = HealthStatusOK
			continue
		}
		report.Components[name] = HealthStatusDegraded
		report.Status = HealthStatusDegraded
		failed = append(failed, name)
		if u.critical[name] {
			ready = false
		}
	}
	if len(failed) > 0 {
		logger.Warn(ctx, "Health check degraded", zap.Strings("components", failed))
	}
	return report, ready
}

// runProbe returns when the probe finishes or its deadline passes, whichever
// comes first, so a stuck dependency cannot hold up the response.
func runProbe(ctx context.Context, probe Probe) error {
	done := make(chan error, 1)
	go func() { done <- probe(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
