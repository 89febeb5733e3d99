package mapreduce

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	intermediatePrefix = "mr-"
	outputPrefix       = "output-"
	outputSuffix       = ".txt"
)

var intermediateName = regexp.MustCompile(`^mr-(\d+)-(\d+)$`)

// generate hash code of a key.
func hash(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() & 0x7fffffff)
}

// Bucket returns the reduce bucket in [0, nReduce) that owns key. An
// nReduce below 1 is treated as a single bucket.
func Bucket(key string, nReduce int) int {
	if nReduce < 1 {
		return 0
	}
	return hash(key) % nReduce
}

func IntermediateName(mapTaskID, bucket int) string {
	return fmt.Sprintf("%v%v-%v", intermediatePrefix, mapTaskID, bucket)
}

// ParseIntermediateName extracts the ids from a name produced by
// IntermediateName. Any directory part of name is ignored.
func ParseIntermediateName(name string) (mapTaskID, bucket int, ok bool) {
	m := intermediateName.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, 0, false
	}
	mapTaskID, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	bucket, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return mapTaskID, bucket, true
}

func OutputName(reduceTaskID int) string {
	return fmt.Sprintf("%v%v%v", outputPrefix, reduceTaskID, outputSuffix)
}

// Partition splits kva by bucket. Buckets without pairs are absent.
func Partition(kva []KeyValue, nReduce int) map[int][]KeyValue {
	buckets := make(map[int][]KeyValue)
	for _, kv := range kva {
		idx := Bucket(kv.Key, nReduce)
		buckets[idx] = append(buckets[idx], kv)
	}
	return buckets
}

// GroupByBucket files intermediate paths under the bucket embedded in their
// name. The result always has nReduce entries. Paths that do not parse or
// name a bucket outside the range are returned in skipped.
func GroupByBucket(paths []string, nReduce int) (groups [][]string, skipped []string) {
	groups = make([][]string, nReduce)
	for _, path := range paths {
		_, bucket, ok := ParseIntermediateName(path)
		if !ok || bucket >= nReduce {
			skipped = append(skipped, path)
			continue
		}
		groups[bucket] = append(groups[bucket], path)
	}
	return groups, skipped
}

// EncodeKeyValues renders pairs as "<key> <value>" lines.
func EncodeKeyValues(kva []KeyValue) []string {
	lines := make([]string, 0, len(kva))
	for _, kv := range kva {
		lines = append(lines, kv.Key+" "+kv.Value)
	}
	return lines
}

// DecodeKeyValues parses "<key> <value>" lines. Lines without a separator
// are dropped.
func DecodeKeyValues(content string) []KeyValue {
	var kva []KeyValue
	for _, line := range strings.Split(content, "\n") {
		key, value, found := strings.Cut(strings.TrimSuffix(line, "\r"), " ")
		if !found {
			continue
		}
		kva = append(kva, KeyValue{Key: key, Value: value})
	}
	return kva
}
