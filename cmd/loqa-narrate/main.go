package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/loqalabs/loqa-narrate/internal/chunker"
	"github.com/loqalabs/loqa-narrate/internal/config"
	"github.com/loqalabs/loqa-narrate/internal/narrate"
	"github.com/loqalabs/loqa-narrate/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'render', 'chunk' or 'version'")
		os.Exit(2)
	}

	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "render":
		err = runRender(os.Args[2:])
	case "chunk":
		err = runChunk(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type inputFlags struct {
	configPath string
	text       string
	file       string
}

func (f *inputFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file (defaults and LOQA_* env when empty)")
	fs.StringVar(&f.text, "text", "", "Text to narrate")
	fs.StringVar(&f.file, "file", "", "Read text from file, '-' for stdin")
}

func (f *inputFlags) load() (config.Config, string, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, "", err
	}
	text, err := readText(f.text, f.file)
	return cfg, text, err
}

func readText(text, file string) (string, error) {
	switch {
	case text != "" && file != "":
		return "", errors.New("use either -text or -file, not both")
	case text != "":
		return text, nil
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return string(data), nil
	default:
		return "", errors.New("no input: pass -text or -file")
	}
}

func runRender(args []string) error {
	var (
		in     inputFlags
		output string
		mode   string
		maxLen int
		fade   bool
	)
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	in.register(fs)
	fs.StringVar(&output, "output", "narration.mp4", "Output video path")
	fs.StringVar(&mode, "mode", "", "Chunking mode override: sentence or word")
	fs.IntVar(&maxLen, "max-chunk-length", 0, "Chunk length override")
	fs.BoolVar(&fade, "fade", false, "Fade each segment in and out")
	_ = fs.Parse(args)

	cfg, text, err := in.load()
	if err != nil {
		return err
	}
	if fade {
		cfg.Render.Fade = true
	}
	if mode != "" {
		cfg.Chunking.Mode = mode
	}
	if maxLen > 0 {
		cfg.Chunking.MaxChunkLength = maxLen
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: runtime.ParseLogLevel(cfg.Telemetry.LogLevel)}))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := runtime.NewPipeline(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	res, err := pipeline.Narrator.Run(ctx, narrate.Job{Text: text, Output: output})
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d chunks, %.2fs)\n", res.Output, res.Chunks, res.Duration.Seconds())
	if res.Location != "" {
		fmt.Printf("uploaded to %s\n", res.Location)
	}
	return nil
}

func runChunk(args []string) error {
	var in inputFlags
	fs := flag.NewFlagSet("chunk", flag.ExitOnError)
	in.register(fs)
	_ = fs.Parse(args)

	cfg, text, err := in.load()
	if err != nil {
		return err
	}
	chunks, err := chunker.Split(text, chunker.FromConfig(cfg.Chunking))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(chunks)
}
