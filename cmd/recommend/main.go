package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"journez/backend/internal/app"
	"journez/backend/internal/config"
	"journez/backend/internal/export"
	"journez/backend/internal/recommend"
)

func main() {
	var (
		envFile    = flag.String("env", ".env", "Dotenv file to load before reading the environment")
		location   = flag.String("location", "", "Destination to ask about")
		categories = flag.String("categories", "eat,do", "Comma separated categories (do, eat, stay, shop)")
		count      = flag.Int("count", recommend.DefaultCount, "Recommendations per category")
		rawPath    = flag.String("raw", "", "Enrich a saved model answer from this file instead of generating one (- for stdin)")
		format     = flag.String("format", "csv", "Output format: csv or json")
		outputPath = flag.String("output", "", "Write the export here instead of stdout")
		bom        = flag.Bool("bom", true, "Prefix CSV output with a UTF-8 byte order mark")
		title      = flag.Bool("title", true, "Write a title row above the CSV header")
	)
	flag.Parse()

	if strings.TrimSpace(*location) == "" {
		logrus.Fatal("-location is required")
	}
	switch *format {
	case "csv", "json":
	default:
		logrus.Fatalf("unknown -format %q", *format)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg)
	if err != nil {
		logrus.Fatalf("build pipeline: %v", err)
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close pipeline resources")
		}
	}()

	req := recommend.Request{
		Location:   *location,
		Categories: splitList(*categories),
		Count:      *count,
	}
	hooks := recommend.Hooks{
		Progress: func(done, total int) {
			logrus.WithFields(logrus.Fields{"done": done, "total": total}).Debug("lookup progress")
		},
	}

	var result recommend.Result
	if *rawPath != "" {
		raw, rerr := readRaw(*rawPath)
		if rerr != nil {
			logrus.Fatalf("read model answer: %v", rerr)
		}
		result, err = application.Pipeline.FromText(ctx, req, raw, hooks)
	} else {
		result, err = application.Pipeline.Run(ctx, req, hooks)
	}
	if err != nil {
		logrus.Fatalf("recommend: %v", err)
	}

	rows := export.Flatten(result.Results)
	if err := writeOutput(*outputPath, func(w io.Writer) error {
		if *format == "json" {
			return export.WriteJSON(w, rows)
		}
		opts := export.CSVOptions{BOM: *bom}
		if *title {
			opts.Title = export.DefaultTitle
		}
		return export.WriteCSV(w, rows, opts)
	}); err != nil {
		logrus.Fatalf("write export: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"request_id": result.RequestID,
		"rows":       len(rows),
		"format":     *format,
	}).Info("recommendations exported")
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func readRaw(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
