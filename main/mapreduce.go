package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"plugin"

	"mrsim/logger"
	"mrsim/mapreduce"
	"mrsim/wordcount"
)

func main() {
	cfg := mapreduce.DefaultConfig()
	flag.StringVar(&cfg.WorkDir, "dir", cfg.WorkDir, "work directory holding input/, intermediate/ and output/")
	flag.IntVar(&cfg.NumWorkers, "workers", cfg.NumWorkers, "number of workers")
	flag.IntVar(&cfg.NumReduce, "reduce", cfg.NumReduce, "number of reduce tasks")
	flag.IntVar(&cfg.MaxAttempts, "attempts", cfg.MaxAttempts, "attempts per task before it is reported failed")
	policy := flag.String("on-failure", string(cfg.FailurePolicy), "'abort' or 'continue' when tasks fail")
	flag.BoolVar(&cfg.ResetOnStart, "reset", cfg.ResetOnStart, "clear intermediate and output files before the run")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "DEBUG, INFO, WARN or ERROR")
	pluginPath := flag.String("plugin", "", "map/reduce plugin (.so); built-in word count when empty")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %v [flags] [filename]...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	cfg.FailurePolicy = mapreduce.FailurePolicy(*policy)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	lg := logger.New(cfg.LogLevel)

	mapFunc, reduceFunc := mapreduce.MapFunc(wordcount.Map), mapreduce.ReduceFunc(wordcount.Reduce)
	if *pluginPath != "" {
		mapFunc, reduceFunc = load(*pluginPath)
	}

	storage := mapreduce.NewDirStorage(cfg.WorkDir, lg)
	if files := flag.Args(); len(files) > 0 {
		if err := storage.Import(files); err != nil {
			log.Fatalf("cannot import inputs: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	report, err := mapreduce.Run(ctx, cfg, storage, mapFunc, reduceFunc, lg)
	if err != nil {
		lg.Errorf("run failed: %v", err)
		os.Exit(1)
	}
	lg.Infof("run %v: %v map tasks, %v reduce tasks, %v outputs in %v, %v failed tasks",
		report.RunID, report.MapTasks, report.ReduceTasks, len(report.Outputs), storage.OutputDir(), len(report.Failures))
}

func load(filename string) (mapreduce.MapFunc, mapreduce.ReduceFunc) {
	p, err := plugin.Open(filename)
	if err != nil {
		log.Fatalf("cannot load plugin: %v", err)
	}
	mapFunc, err := p.Lookup("Map")
	if err != nil {
		log.Fatalf("cannot find Map: %v", err)
	}
	reduceFunc, err := p.Lookup("Reduce")
	if err != nil {
		log.Fatalf("cannot find Reduce: %v", err)
	}
	return mapFunc.(func(string, string) []mapreduce.KeyValue), reduceFunc.(func(string, []string) string)
}
