package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"mrsim/logger"
)

// Phases is the state shared between the coordinator and the workers of a
// single run: one queue and one barrier per phase.
type Phases struct {
	MapQueue      *TaskQueue[MapTask]
	ReduceQueue   *TaskQueue[ReduceTask]
	MapBarrier    *PhaseBarrier
	ReduceBarrier *PhaseBarrier
}

func NewPhases() *Phases {
	return &Phases{
		MapQueue:      NewTaskQueue[MapTask](),
		ReduceQueue:   NewTaskQueue[ReduceTask](),
		MapBarrier:    NewPhaseBarrier(MapPhase),
		ReduceBarrier: NewPhaseBarrier(ReducePhase),
	}
}

// Report summarizes a finished or aborted run.
type Report struct {
	RunID       string
	MapTasks    int
	ReduceTasks int
	Outputs     []string // output artifact names of successful reduce tasks
	Failures    []TaskResult
}

// RunError lists the tasks that failed in a phase.
type RunError struct {
	Phase    Phase
	Failures []TaskResult
}

func (e *RunError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.String())
	}
	return fmt.Sprintf("%v phase: %v tasks failed: %v", e.Phase, len(e.Failures), strings.Join(msgs, "; "))
}

func (e *RunError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Coordinator builds the tasks of each phase from storage listings and
// sequences the phases.
type Coordinator struct {
	runID       string
	nReduce     int
	policy      FailurePolicy
	storage     Storage
	phases      *Phases
	logger      *logger.Logger
	taskCounter int

	mu          sync.Mutex
	mapTasks    int
	reduceTasks []ReduceTask
	results     map[Phase][]TaskResult
}

func NewCoordinator(cfg Config, phases *Phases, storage Storage, lg *logger.Logger) *Coordinator {
	return &Coordinator{
		runID:   uuid.NewString(),
		nReduce: cfg.NumReduce,
		policy:  cfg.FailurePolicy,
		storage: storage,
		phases:  phases,
		logger:  lg,
		results: make(map[Phase][]TaskResult),
	}
}

// Report records a task outcome. Workers call it before signaling the
// barrier, so every result of a phase is present once the phase completes.
func (c *Coordinator) Report(result TaskResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[result.Phase] = append(c.results[result.Phase], result)
}

// Run drives the map phase and then the reduce phase to completion.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return c.snapshot(), err
	}
	c.logger.Infof("coordinator starts run %v", c.runID)

	c.logger.Infof("coordinator started map phase")
	if err := c.dispatchMap(); err != nil {
		return c.snapshot(), err
	}
	if err := c.phases.MapBarrier.AwaitPhaseComplete(ctx); err != nil {
		return c.snapshot(), err
	}
	c.logger.Infof("coordinator map phase end")
	if err := c.checkPhase(MapPhase); err != nil {
		return c.snapshot(), err
	}

	c.logger.Infof("coordinator started reduce phase")
	if err := c.dispatchReduce(); err != nil {
		return c.snapshot(), err
	}
	if err := c.phases.ReduceBarrier.AwaitPhaseComplete(ctx); err != nil {
		return c.snapshot(), err
	}
	c.logger.Infof("coordinator reduce phase end")
	if err := c.checkPhase(ReducePhase); err != nil {
		return c.snapshot(), err
	}

	c.logger.Infof("coordinator ends run %v", c.runID)
	return c.snapshot(), nil
}

func (c *Coordinator) dispatchMap() error {
	inputs, err := c.storage.ListInputs()
	if err != nil {
		return fmt.Errorf("cannot list inputs: %w", err)
	}
	for _, input := range inputs {
		task := MapTask{ID: c.nextTaskID(), InputPath: input}
		c.logger.Debugf("add map task %v (%v)", task.ID, task.InputPath)
		c.phases.MapQueue.Push(task)
	}
	c.mu.Lock()
	c.mapTasks = len(inputs)
	c.mu.Unlock()
	if err := c.phases.MapBarrier.Initialize(len(inputs)); err != nil {
		return err
	}
	c.logger.Infof("coordinator dispatched %v map tasks", len(inputs))
	c.phases.MapBarrier.SignalStart()
	return nil
}

func (c *Coordinator) dispatchReduce() error {
	paths, err := c.storage.ListIntermediates()
	if err != nil {
		return fmt.Errorf("cannot list intermediates: %w", err)
	}
	groups, skipped := GroupByBucket(paths, c.nReduce)
	for _, path := range skipped {
		c.logger.Warnf("skip intermediate file %v: bucket outside [0, %v)", path, c.nReduce)
	}
	tasks := make([]ReduceTask, 0, c.nReduce)
	for bucket, group := range groups {
		task := ReduceTask{ID: c.nextTaskID(), Bucket: bucket, InputPaths: group}
		c.logger.Debugf("add reduce task %v (bucket %v, %v files)", task.ID, task.Bucket, len(task.InputPaths))
		c.phases.ReduceQueue.Push(task)
		tasks = append(tasks, task)
	}
	c.mu.Lock()
	c.reduceTasks = tasks
	c.mu.Unlock()
	if err := c.phases.ReduceBarrier.Initialize(len(tasks)); err != nil {
		return err
	}
	c.logger.Infof("coordinator dispatched %v reduce tasks from %v intermediate files", len(tasks), len(paths)-len(skipped))
	c.phases.ReduceBarrier.SignalStart()
	return nil
}

// checkPhase applies the failure policy to the finished phase.
func (c *Coordinator) checkPhase(phase Phase) error {
	failures := c.failures(phase)
	if len(failures) == 0 {
		return nil
	}
	runErr := &RunError{Phase: phase, Failures: failures}
	if c.policy == Abort {
		c.logger.Errorf("coordinator aborts run %v: %v", c.runID, runErr)
		return runErr
	}
	c.logger.Warnf("coordinator continues run %v: %v", c.runID, runErr)
	return nil
}

func (c *Coordinator) failures(phase Phase) []TaskResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	var failures []TaskResult
	for _, result := range c.results[phase] {
		if result.Failed() {
			failures = append(failures, result)
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].TaskID < failures[j].TaskID })
	return failures
}

func (c *Coordinator) nextTaskID() int {
	id := c.taskCounter
	c.taskCounter++
	return id
}

func (c *Coordinator) snapshot() *Report {
	failures := append(c.failures(MapPhase), c.failures(ReducePhase)...)
	c.mu.Lock()
	defer c.mu.Unlock()
	failed := make(map[int]bool)
	for _, f := range failures {
		failed[f.TaskID] = true
	}
	report := &Report{
		RunID:       c.runID,
		MapTasks:    c.mapTasks,
		ReduceTasks: len(c.reduceTasks),
		Failures:    failures,
	}
	completed := make(map[int]bool)
	for _, result := range c.results[ReducePhase] {
		completed[result.TaskID] = true
	}
	for _, task := range c.reduceTasks {
		if completed[task.ID] && !failed[task.ID] {
			report.Outputs = append(report.Outputs, OutputName(task.ID))
		}
	}
	return report
}

// IsRunError reports whether err carries per-task failures.
func IsRunError(err error) bool {
	var runErr *RunError
	return errors.As(err, &runErr)
}
