// Plugin exposing the word count functions, build with
// go build -buildmode=plugin.
package main

import (
	"mrsim/mapreduce"
	"mrsim/wordcount"
)

func Map(filename string, content string) []mapreduce.KeyValue {
	return wordcount.Map(filename, content)
}

func Reduce(key string, values []string) string {
	return wordcount.Reduce(key, values)
}

func main() {}
