package mapreduce

import (
	"context"
	"fmt"
	"sort"

	"mrsim/logger"
)

type KeyValue struct {
	Key   string
	Value string
}

type MapFunc func(string, string) []KeyValue

type ReduceFunc func(string, []string) string

// KeyValuesByKey defines a collection type that implements sort.Interface.
type KeyValuesByKey []KeyValue

func (kva KeyValuesByKey) Len() int {
	return len(kva)
}

func (kva KeyValuesByKey) Swap(i, j int) {
	kva[i], kva[j] = kva[j], kva[i]
}

func (kva KeyValuesByKey) Less(i, j int) bool {
	return kva[i].Key < kva[j].Key
}

// Reporter receives the outcome of every task a worker executes.
type Reporter interface {
	Report(TaskResult)
}

// Worker pulls tasks for the current phase until the phase barrier reports
// completion, then moves on to the next phase.
type Worker struct {
	id          int
	nReduce     int
	maxAttempts int
	mapFunc     MapFunc
	reduceFunc  ReduceFunc
	storage     Storage
	phases      *Phases
	reporter    Reporter
	logger      *logger.Logger
}

func NewWorker(id int, cfg Config, phases *Phases, storage Storage, mapFunc MapFunc, reduceFunc ReduceFunc, reporter Reporter, lg *logger.Logger) *Worker {
	return &Worker{
		id:          id,
		nReduce:     cfg.NumReduce,
		maxAttempts: cfg.MaxAttempts,
		mapFunc:     mapFunc,
		reduceFunc:  reduceFunc,
		storage:     storage,
		phases:      phases,
		reporter:    reporter,
		logger:      lg,
	}
}

// Run executes the map phase and then the reduce phase. It returns early
// only when ctx is canceled or a barrier is misused.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infof("worker %v starts", w.id)
	if err := w.phases.MapBarrier.AwaitStart(ctx); err != nil {
		return err
	}
	w.logger.Infof("worker %v started map phase", w.id)
	err := drain(ctx, w.phases.MapQueue, w.phases.MapBarrier, func(task MapTask) TaskResult {
		w.logger.Debugf("worker %v polled map task %v (%v)", w.id, task.ID, task.InputPath)
		return w.execute(MapPhase, task.ID, func() error { return w.doMap(task) })
	}, w.reporter)
	if err != nil {
		return err
	}

	if err := w.phases.ReduceBarrier.AwaitStart(ctx); err != nil {
		return err
	}
	w.logger.Infof("worker %v started reduce phase", w.id)
	err = drain(ctx, w.phases.ReduceQueue, w.phases.ReduceBarrier, func(task ReduceTask) TaskResult {
		w.logger.Debugf("worker %v polled reduce task %v (%v files)", w.id, task.ID, len(task.InputPaths))
		return w.execute(ReducePhase, task.ID, func() error { return w.doReduce(task) })
	}, w.reporter)
	if err != nil {
		return err
	}
	w.logger.Infof("worker %v ends", w.id)
	return nil
}

// drain executes tasks from queue until barrier completes. An empty queue
// parks the caller until a push, phase completion or cancellation.
func drain[T any](ctx context.Context, queue *TaskQueue[T], barrier *PhaseBarrier, exec func(T) TaskResult, reporter Reporter) error {
	for !barrier.IsPhaseComplete() {
		task, ok := queue.TryPop()
		if !ok {
			select {
			case <-queue.Ready():
			case <-barrier.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		reporter.Report(exec(task))
		if err := barrier.SignalTaskDone(); err != nil {
			return err
		}
	}
	return nil
}

// execute runs fn up to maxAttempts times and describes the outcome.
func (w *Worker) execute(phase Phase, taskID int, fn func() error) TaskResult {
	result := TaskResult{TaskID: taskID, Phase: phase, WorkerID: w.id}
	for result.Attempts < w.maxAttempts {
		result.Attempts++
		result.Err = fn()
		if result.Err == nil {
			break
		}
		w.logger.Warnf("worker %v: %v task %v attempt %v failed: %v", w.id, phase, taskID, result.Attempts, result.Err)
	}
	if result.Err != nil {
		w.logger.Errorf("worker %v: %v", w.id, result)
	} else {
		w.logger.Debugf("worker %v: %v", w.id, result)
	}
	return result
}

func (w *Worker) doMap(task MapTask) error {
	content, err := w.storage.Read(task.InputPath)
	if err != nil {
		return err
	}
	kva := w.mapFunc(task.InputPath, content)
	buckets := Partition(kva, w.nReduce)
	ids := make([]int, 0, len(buckets))
	for bucket := range buckets {
		ids = append(ids, bucket)
	}
	sort.Ints(ids)
	artifacts := make([]Artifact, 0, len(ids))
	for _, bucket := range ids {
		artifacts = append(artifacts, Artifact{
			Name:  IntermediateName(task.ID, bucket),
			Lines: EncodeKeyValues(buckets[bucket]),
		})
	}
	// a failed task must not leave some of its buckets behind for reduce.
	paths, err := w.storage.WriteAll(Intermediate, artifacts)
	if err != nil {
		return fmt.Errorf("cannot write intermediates of map task %v: %w", task.ID, err)
	}
	for _, path := range paths {
		w.logger.Debugf("worker %v wrote intermediate file %v", w.id, path)
	}
	return nil
}

func (w *Worker) doReduce(task ReduceTask) error {
	var kva []KeyValue
	for _, path := range task.InputPaths {
		content, err := w.storage.Read(path)
		if err != nil {
			return err
		}
		kva = append(kva, DecodeKeyValues(content)...)
	}
	sort.Sort(KeyValuesByKey(kva))
	var lines []string
	i := 0
	for i < len(kva) {
		j := i + 1
		for j < len(kva) && kva[j].Key == kva[i].Key {
			j++
		}
		values := make([]string, 0, j-i)
		for k := i; k < j; k++ {
			values = append(values, kva[k].Value)
		}
		output := w.reduceFunc(kva[i].Key, values)
		lines = append(lines, fmt.Sprintf("%v %v", kva[i].Key, output))
		i = j
	}
	name := OutputName(task.ID)
	path, err := w.storage.Write(Output, name, lines)
	if err != nil {
		return fmt.Errorf("cannot write output %v: %w", name, err)
	}
	w.logger.Infof("worker %v wrote output file %v", w.id, path)
	return nil
}
