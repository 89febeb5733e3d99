package mapreduce

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"mrsim/logger"
)

type ArtifactKind int

const (
	Intermediate ArtifactKind = iota
	Output
)

// Artifact is a named list of lines to store.
type Artifact struct {
	Name  string
	Lines []string
}

// Storage is everything the coordinator and workers need from the
// filesystem. Artifacts are referenced by path.
type Storage interface {
	// ListInputs enumerates map inputs. A missing or empty input location
	// yields no artifacts and no error.
	ListInputs() ([]string, error)
	// ListIntermediates enumerates committed intermediate artifacts named
	// mr-<mapTaskId>-<bucket>.
	ListIntermediates() ([]string, error)
	Read(ref string) (string, error)
	// Write stores lines under name and returns the committed path.
	Write(kind ArtifactKind, name string, lines []string) (string, error)
	// WriteAll commits every artifact or none of them.
	WriteAll(kind ArtifactKind, artifacts []Artifact) ([]string, error)
	// Reset removes intermediate and output artifacts of earlier runs.
	Reset() error
}

const (
	inputDir        = "input"
	intermediateDir = "intermediate"
	outputDir       = "output"
)

// DirStorage keeps artifacts under root/input, root/intermediate and
// root/output.
type DirStorage struct {
	root   string
	logger *logger.Logger
}

func NewDirStorage(root string, lg *logger.Logger) *DirStorage {
	return &DirStorage{root: root, logger: lg}
}

func (s *DirStorage) InputDir() string {
	return filepath.Join(s.root, inputDir)
}

func (s *DirStorage) IntermediateDir() string {
	return filepath.Join(s.root, intermediateDir)
}

func (s *DirStorage) OutputDir() string {
	return filepath.Join(s.root, outputDir)
}

func (s *DirStorage) ListInputs() ([]string, error) {
	return s.listFiles(s.InputDir(), nil), nil
}

func (s *DirStorage) ListIntermediates() ([]string, error) {
	return s.listFiles(s.IntermediateDir(), func(name string) bool {
		_, _, ok := ParseIntermediateName(name)
		return ok
	}), nil
}

// listFiles returns the sorted paths of regular files in dir accepted by
// keep. Problems with the directory are logged and yield nothing.
func (s *DirStorage) listFiles(dir string, keep func(string) bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warnf("cannot list directory %v: %v", dir, err)
		return nil
	}
	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if keep != nil && !keep(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	if len(paths) == 0 {
		s.logger.Warnf("no files found in directory %v", dir)
	}
	sort.Strings(paths)
	return paths
}

func (s *DirStorage) Read(ref string) (string, error) {
	content, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("cannot read %v: %w", ref, err)
	}
	return string(content), nil
}

func (s *DirStorage) Write(kind ArtifactKind, name string, lines []string) (string, error) {
	paths, err := s.WriteAll(kind, []Artifact{{Name: name, Lines: lines}})
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// WriteAll writes every artifact to a partial file first and renames them
// only once all of them are on disk. On failure nothing stays committed.
func (s *DirStorage) WriteAll(kind ArtifactKind, artifacts []Artifact) ([]string, error) {
	dir, err := s.kindDir(kind)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create directory %v: %w", dir, err)
	}
	partials := make([]string, 0, len(artifacts))
	removeAll := func(paths []string) {
		for _, path := range paths {
			os.Remove(path)
		}
	}
	for _, artifact := range artifacts {
		partial, err := writePartial(dir, artifact)
		if err != nil {
			removeAll(partials)
			return nil, err
		}
		partials = append(partials, partial)
	}
	// rename partial files to commit.
	paths := make([]string, 0, len(artifacts))
	for i, artifact := range artifacts {
		path := filepath.Join(dir, artifact.Name)
		if err := os.Rename(partials[i], path); err != nil {
			removeAll(paths)
			removeAll(partials[i:])
			return nil, fmt.Errorf("cannot rename: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (s *DirStorage) kindDir(kind ArtifactKind) (string, error) {
	switch kind {
	case Intermediate:
		return s.IntermediateDir(), nil
	case Output:
		return s.OutputDir(), nil
	}
	return "", fmt.Errorf("unknown artifact kind %v", kind)
}

// writePartial stores artifact under a partial file path in dir, tagged so
// concurrent or crashed writers never collide.
func writePartial(dir string, artifact Artifact) (string, error) {
	partial := filepath.Join(dir, fmt.Sprintf("%v.%v.partial", artifact.Name, uuid.NewString()))
	file, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("cannot create file: %w", err)
	}
	writer := bufio.NewWriter(file)
	for _, line := range artifact.Lines {
		if _, err := writer.WriteString(line + "\n"); err != nil {
			file.Close()
			os.Remove(partial)
			return "", fmt.Errorf("cannot write %v: %w", partial, err)
		}
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(partial)
		return "", fmt.Errorf("cannot flush %v: %w", partial, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("cannot close %v: %w", partial, err)
	}
	return partial, nil
}

func (s *DirStorage) Reset() error {
	for _, dir := range []string{s.IntermediateDir(), s.OutputDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("cannot remove directory %v: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create directory %v: %w", dir, err)
		}
		s.logger.Warnf("directory %v was cleared", dir)
	}
	return nil
}

// Import copies files into the input directory so they become map inputs.
// Inputs sharing a base name are rejected before anything is copied.
func (s *DirStorage) Import(files []string) error {
	seen := make(map[string]string, len(files))
	for _, file := range files {
		base := filepath.Base(file)
		if other, dup := seen[base]; dup {
			return fmt.Errorf("inputs %v and %v share the name %v", other, file, base)
		}
		seen[base] = file
	}
	dir := s.InputDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create directory %v: %w", dir, err)
	}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("cannot read input %v: %w", file, err)
		}
		dst := filepath.Join(dir, filepath.Base(file))
		if err := os.WriteFile(dst, content, 0644); err != nil {
			return fmt.Errorf("cannot write input %v: %w", dst, err)
		}
	}
	return nil
}
