package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"quizHelper/config"
	"quizHelper/core"
	"quizHelper/processors"
	"quizHelper/server"
	"quizHelper/utils"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  quizHelper [serve] <audio-or-transcript>   build the index and serve HTTP
  quizHelper transcribe <audio>              write <audio>.txt and exit
  quizHelper ask <audio-or-transcript>       answer the query read from stdin
  quizHelper config                          print configuration help`)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	mode := "serve"
	switch args[0] {
	case "serve", "transcribe", "ask":
		mode, args = args[0], args[1:]
	case "config":
		config.PrintInstructions()
		return
	case "-h", "--help", "help":
		usage()
		return
	}
	if len(args) != 1 || args[0] == "" {
		usage()
		os.Exit(2)
	}
	path := args[0]
	if !utils.FileExists(path) {
		log.Fatalf("Input file not found: %s", path)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		config.PrintInstructions()
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, cleanup, err := processors.NewPipelineFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer cleanup()

	if err := run(ctx, mode, path, cfg, pipeline); err != nil {
		log.Printf("Error: %v", err)
		stop()
		cleanup()
		os.Exit(1)
	}
}

func run(ctx context.Context, mode, path string, cfg *config.Config, pipeline *processors.Pipeline) error {
	if mode == "transcribe" {
		if processors.IsTranscript(path) {
			return fmt.Errorf("%s is already a transcript", path)
		}
		out, err := pipeline.ProcessAudio(ctx, path)
		if err != nil {
			return err
		}
		if info, err := os.Stat(out); err == nil {
			log.Printf("Transcript size: %s", utils.FormatBytes(info.Size()))
		}
		return nil
	}

	ix, err := pipeline.Prepare(ctx, path)
	if err != nil {
		return err
	}
	defer ix.Close(context.Background())
	log.Printf("Index ready: %d chunks (%s)", ix.Len(), ix.Backend())

	if mode == "ask" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read query: %w", err)
		}
		q, err := core.ParseQuery(string(data))
		if err != nil {
			return err
		}
		answer, err := pipeline.AnswerQuery(ctx, string(data), ix)
		if err != nil {
			return err
		}
		fmt.Printf("%s\nANSWER: %s\n", q.Question, answer)
		return nil
	}

	return server.New(pipeline, ix, cfg.TopK, nil).Run(ctx, ":"+cfg.Port)
}
