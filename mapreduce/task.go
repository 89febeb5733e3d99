package mapreduce

import "fmt"

type Phase int

const (
	MapPhase Phase = iota
	ReducePhase
)

func (p Phase) String() string {
	switch p {
	case MapPhase:
		return "map"
	case ReducePhase:
		return "reduce"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type MapTask struct {
	ID        int
	InputPath string
}

type ReduceTask struct {
	ID         int
	Bucket     int
	InputPaths []string
}

// TaskResult is what a worker reports for every task it pulled off a queue.
type TaskResult struct {
	TaskID   int
	Phase    Phase
	WorkerID int
	Attempts int
	Err      error
}

func (r TaskResult) Failed() bool {
	return r.Err != nil
}

func (r TaskResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%v task %v failed on worker %v after %v attempts: %v", r.Phase, r.TaskID, r.WorkerID, r.Attempts, r.Err)
	}
	return fmt.Sprintf("%v task %v done on worker %v", r.Phase, r.TaskID, r.WorkerID)
}
