// Package wordcount provides the map and reduce functions of a word
// frequency job.
package wordcount

import (
	"strconv"
	"strings"
	"unicode"

	"mrsim/mapreduce"
)

// Map emits (word, "1") for every word in content. Words are lower-cased
// and anything other than a letter or digit separates them.
func Map(filename string, content string) []mapreduce.KeyValue {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	kva := make([]mapreduce.KeyValue, 0, len(words))
	for _, word := range words {
		kv := mapreduce.KeyValue{Key: word, Value: "1"}
		kva = append(kva, kv)
	}
	return kva
}

// Reduce counts the occurrences of key.
func Reduce(key string, values []string) string {
	return strconv.Itoa(len(values))
}
