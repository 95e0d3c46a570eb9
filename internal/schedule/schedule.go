// Package schedule runs periodic task submissions on standard 5-field
// cron expressions and exposes itself as a native tool, covering the
// "periodic task submission" capability that the tool manager's four tool
// kinds don't otherwise provide.
package schedule

import (
	"context"
	"fmt"
	"sync"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/araci/internal/tools"
)

// SubmitFunc is called each time a scheduled job fires. A typical
// implementation pushes a task.request message onto the bus or appends
// to a coordinator plan.
type SubmitFunc func(ctx context.Context, jobName string, payload map[string]any)

// Scheduler wraps a running cron.Cron, tracking job names to entry ids so
// jobs can be listed and cancelled by name.
type Scheduler struct {
	cron   *cronlib.Cron
	submit SubmitFunc

	mu      sync.Mutex
	jobs    map[string]cronlib.EntryID
	payload map[string]map[string]any
	expr    map[string]string
}

// New builds a Scheduler. submit is called (from the cron library's own
// goroutine) whenever a registered job's schedule fires.
func New(submit SubmitFunc) *Scheduler {
	return &Scheduler{
		cron:    cronlib.New(cronlib.WithParser(cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow))),
		submit:  submit,
		jobs:    make(map[string]cronlib.EntryID),
		payload: make(map[string]map[string]any),
		expr:    make(map[string]string),
	}
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

// AddJob registers a named job on cronExpr. Re-registering an existing
// name replaces its schedule.
func (s *Scheduler) AddJob(name, cronExpr string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[name]; ok {
		s.cron.Remove(existing)
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		s.submit(context.Background(), name, payload)
	})
	if err != nil {
		return fmt.Errorf("schedule: add job %q: %w", name, err)
	}
	s.jobs[name] = id
	s.payload[name] = payload
	s.expr[name] = cronExpr
	return nil
}

// RemoveJob cancels a named job. Returns false if no such job exists.
func (s *Scheduler) RemoveJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.jobs[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.jobs, name)
	delete(s.payload, name)
	delete(s.expr, name)
	return true
}

// JobInfo describes one registered job for listing.
type JobInfo struct {
	Name     string
	CronExpr string
	Payload  map[string]any
}

// ListJobs returns every registered job, order unspecified.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, JobInfo{Name: name, CronExpr: s.expr[name], Payload: s.payload[name]})
	}
	return out
}

// NewTool exposes the scheduler as a native tool with add_job/remove_job/
// list_jobs capabilities, for registration with the tool manager.
func NewTool(s *Scheduler) tools.Adapter {
	funcs := map[string]tools.NativeFunc{
		"add_job": func(ctx context.Context, input map[string]any) (any, error) {
			name, _ := input["name"].(string)
			expr, _ := input["cron"].(string)
			payload, _ := input["payload"].(map[string]any)
			if err := s.AddJob(name, expr, payload); err != nil {
				return nil, err
			}
			return map[string]any{"status": "scheduled", "name": name}, nil
		},
		"remove_job": func(ctx context.Context, input map[string]any) (any, error) {
			name, _ := input["name"].(string)
			if !s.RemoveJob(name) {
				return nil, fmt.Errorf("schedule: no such job %q", name)
			}
			return map[string]any{"status": "removed", "name": name}, nil
		},
		"list_jobs": func(ctx context.Context, input map[string]any) (any, error) {
			jobs := s.ListJobs()
			out := make([]map[string]any, 0, len(jobs))
			for _, j := range jobs {
				out = append(out, map[string]any{"name": j.Name, "cron": j.CronExpr, "payload": j.Payload})
			}
			return map[string]any{"jobs": out}, nil
		},
	}
	required := map[string][]string{
		"add_job":    {"name", "cron"},
		"remove_job": {"name"},
	}
	return tools.NewNative("scheduler", funcs, required, nil)
}
