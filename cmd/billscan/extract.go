package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/billscan/internal/extraction"
	"github.com/zombor/billscan/internal/intake"
	"github.com/zombor/billscan/internal/pipeline"
	"github.com/zombor/billscan/internal/scanning"
)

// extractOutput is one line of --extract output
type extractOutput struct {
	File   string             `json:"file"`
	Result *extraction.Result `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// runExtract extracts every file with its own pipeline, at most concurrency
// at a time, and writes one JSON object per file in argument order. A failed
// file does not stop the others.
func runExtract(ctx context.Context, files []string, processing intake.ProcessingConfig, factory scanning.EngineFactory, timeout time.Duration, concurrency int, out io.Writer) error {
	if len(files) == 0 {
		return fmt.Errorf("no files given")
	}

	outputs := make([]extractOutput, len(files))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, file := range files {
		g.Go(func() error {
			outputs[i] = extractFile(ctx, file, processing, factory, timeout)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	failed := 0
	for _, o := range outputs {
		if o.Error != "" {
			failed++
		}
		if err := enc.Encode(o); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func extractFile(ctx context.Context, file string, processing intake.ProcessingConfig, factory scanning.EngineFactory, timeout time.Duration) extractOutput {
	output := extractOutput{File: file}

	data, err := os.ReadFile(file)
	if err != nil {
		output.Error = err.Error()
		return output
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pipe := pipeline.New(processing, factory)
	defer pipe.Close()

	result, err := pipe.Process(ctx, intake.RawDocument{
		Data:        data,
		ContentType: contentTypeFor(file, data),
		Size:        int64(len(data)),
	})
	if err != nil {
		log.Warn().Err(err).Str("file", file).Msg("Could not extract bill")
		output.Error = err.Error()
		return output
	}

	output.Result = result
	return output
}

// contentTypeFor trusts the extension first and falls back to sniffing
func contentTypeFor(file string, data []byte) string {
	if ext := filepath.Ext(file); ext != "" {
		if ct := intake.NormalizeContentType(mime.TypeByExtension(ext)); ct != "" {
			return ct
		}
	}
	if intake.IsHEIC(data, "") {
		return "image/heic"
	}
	return intake.NormalizeContentType(http.DetectContentType(data))
}
