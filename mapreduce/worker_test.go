package mapreduce

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"mrsim/logger"
)

func fieldsMap(filename string, content string) []KeyValue {
	var kva []KeyValue
	for _, word := range strings.Fields(content) {
		kva = append(kva, KeyValue{Key: word, Value: "1"})
	}
	return kva
}

func countReduce(key string, values []string) string {
	return strconv.Itoa(len(values))
}

type collector struct {
	mu      sync.Mutex
	results []TaskResult
}

func (c *collector) Report(r TaskResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

// flakyStorage fails the first failures reads of any path containing match.
type flakyStorage struct {
	Storage
	match    string
	mu       sync.Mutex
	failures int
}

func (s *flakyStorage) Read(ref string) (string, error) {
	s.mu.Lock()
	fail := strings.Contains(filepath.Base(ref), s.match) && s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return "", errors.New("injected read failure")
	}
	return s.Storage.Read(ref)
}

func newTestWorker(t *testing.T, storage Storage, nReduce, attempts int) (*Worker, *Phases, *collector) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.NumReduce = nReduce
	cfg.MaxAttempts = attempts
	phases := NewPhases()
	rep := &collector{}
	w := NewWorker(1, cfg, phases, storage, fieldsMap, countReduce, rep, logger.Discard())
	return w, phases, rep
}

func TestDoMapWritesNonEmptyBuckets(t *testing.T) {
	s := NewDirStorage(t.TempDir(), logger.Discard())
	input := filepath.Join(s.InputDir(), "in.txt")
	writeFile(t, input, "the cat the dog")
	w, _, _ := newTestWorker(t, s, 7, 1)

	if err := w.doMap(MapTask{ID: 4, InputPath: input}); err != nil {
		t.Fatal(err)
	}
	paths, _ := s.ListIntermediates()
	want := map[int]bool{}
	for _, key := range []string{"the", "cat", "dog"} {
		want[Bucket(key, 7)] = true
	}
	if len(paths) != len(want) {
		t.Fatalf("%v intermediate files, want %v: %v", len(paths), len(want), paths)
	}
	total := 0
	for _, path := range paths {
		mapID, bucket, ok := ParseIntermediateName(path)
		if !ok || mapID != 4 || !want[bucket] {
			t.Fatalf("unexpected intermediate %v", path)
		}
		content, _ := s.Read(path)
		for _, kv := range DecodeKeyValues(content) {
			if Bucket(kv.Key, 7) != bucket || kv.Value != "1" {
				t.Fatalf("%v holds %+v", path, kv)
			}
			total++
		}
	}
	if total != 4 {
		t.Fatalf("%v pairs written, want 4", total)
	}
}

func TestDoReduceSortsAndCounts(t *testing.T) {
	s := NewDirStorage(t.TempDir(), logger.Discard())
	a, _ := s.Write(Intermediate, "mr-0-1", []string{"the 1", "dog 1", "the 1"})
	b, _ := s.Write(Intermediate, "mr-1-1", []string{"ant 1", "the 1"})
	w, _, _ := newTestWorker(t, s, 2, 1)

	if err := w.doReduce(ReduceTask{ID: 9, Bucket: 1, InputPaths: []string{a, b}}); err != nil {
		t.Fatal(err)
	}
	content, err := s.Read(filepath.Join(s.OutputDir(), "output-9.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if content != "ant 1\ndog 1\nthe 3\n" {
		t.Fatalf("output = %q", content)
	}
}

func TestDoReduceEmptyTaskWritesEmptyOutput(t *testing.T) {
	s := NewDirStorage(t.TempDir(), logger.Discard())
	w, _, _ := newTestWorker(t, s, 2, 1)
	if err := w.doReduce(ReduceTask{ID: 3}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(s.OutputDir(), "output-3.txt"))
	if err != nil || info.Size() != 0 {
		t.Fatalf("empty output: %v, %v", info, err)
	}
}

func TestWorkerRetriesAndReportsFailure(t *testing.T) {
	base := NewDirStorage(t.TempDir(), logger.Discard())
	good := filepath.Join(base.InputDir(), "good.txt")
	flaky := filepath.Join(base.InputDir(), "flaky.txt")
	bad := filepath.Join(base.InputDir(), "bad.txt")
	writeFile(t, good, "a b")
	writeFile(t, flaky, "c")
	writeFile(t, bad, "d")
	s := &flakyStorage{Storage: base, match: "flaky", failures: 1}
	storage := &flakyStorage{Storage: s, match: "bad", failures: 100}

	w, phases, rep := newTestWorker(t, storage, 1, 2)
	for i, path := range []string{good, flaky, bad} {
		phases.MapQueue.Push(MapTask{ID: i, InputPath: path})
	}
	if err := phases.MapBarrier.Initialize(3); err != nil {
		t.Fatal(err)
	}
	phases.MapBarrier.SignalStart()
	if err := phases.ReduceBarrier.Initialize(0); err != nil {
		t.Fatal(err)
	}
	phases.ReduceBarrier.SignalStart()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if len(rep.results) != 3 {
		t.Fatalf("%v results, want 3", len(rep.results))
	}
	byID := map[int]TaskResult{}
	for _, r := range rep.results {
		byID[r.TaskID] = r
	}
	if r := byID[0]; r.Failed() || r.Attempts != 1 {
		t.Errorf("good task: %v (attempts %v)", r, r.Attempts)
	}
	if r := byID[1]; r.Failed() || r.Attempts != 2 {
		t.Errorf("flaky task: %v (attempts %v)", r, r.Attempts)
	}
	if r := byID[2]; !r.Failed() || r.Attempts != 2 || r.Phase != MapPhase {
		t.Errorf("bad task: %v (attempts %v)", r, r.Attempts)
	}
}

func TestWorkerCanceledBeforeStart(t *testing.T) {
	s := NewDirStorage(t.TempDir(), logger.Discard())
	w, _, _ := newTestWorker(t, s, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
}
