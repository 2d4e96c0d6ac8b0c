// Command imagepipe downloads, processes and saves a batch of images through a three stage
// pipeline. Latencies are simulated; nothing touches the network or the disk.
//
// The stages are configured by the file named in STAGES_CONFIG_FILE, or by the defaults below.
// STAGES_ variables, read from the environment or a .env file, override both; see config.EnvPrefix.
package main

import (
	"context"
	"fmt"
	"iter"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/askiada/go-stages/pkg/pipeline"
	"github.com/askiada/go-stages/pkg/pipeline/config"
	"github.com/askiada/go-stages/pkg/pipeline/drawer"
	"github.com/askiada/go-stages/pkg/pipeline/measure"
)

const defaultConfig = `
name: imagepipe
source_buffer: 100
log:
  level: debug
  format: console
stages:
  - name: download
    concurrency: 1
    backpressure: 100
  - name: process
    concurrency: 4
    backpressure: 100
  - name: save
    concurrency: 1
    backpressure: 100
`

type image struct {
	url  string
	data []byte
}

func download(ctx context.Context, url string) (image, error) {
	select {
	case <-ctx.Done():
		return image{}, ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}

	return image{url: url, data: []byte{0}}, nil
}

func process(ctx context.Context, img image) (image, error) {
	select {
	case <-ctx.Done():
		return image{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}

	return image{url: img.url, data: []byte{1}}, nil
}

func save(ctx context.Context, img image) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}

	return img.url, nil
}

func loadConfig() (*config.Config, error) {
	err := config.LoadEnvFile(".env")
	if err != nil {
		return nil, err
	}
	if path := os.Getenv("STAGES_CONFIG_FILE"); path != "" {
		return config.LoadFile(path)
	}

	return config.LoadReader(strings.NewReader(defaultConfig), "yaml")
}

func run(ctx context.Context, logger zerolog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := cfg.Options(os.Stderr)
	if err != nil {
		return err
	}

	downloadCfg, err := cfg.Stage("download")
	if err != nil {
		return err
	}
	processCfg, err := cfg.Stage("process")
	if err != nil {
		return err
	}
	saveCfg, err := cfg.Stage("save")
	if err != nil {
		return err
	}

	msr := measure.NewDefaultMeasure()
	opts = append(opts, pipeline.WithHooks(
		measure.PipelineMeasure(msr),
		drawer.PipelineDrawer(drawer.NewDOTDrawer(os.Stdout), msr),
	))

	urls := iter.Seq[string](func(yield func(string) bool) {
		for i := range 32 {
			if !yield(fmt.Sprintf("https://example.com/image/%d", i)) {
				return
			}
		}
	})

	src := pipeline.FromSeq(urls, opts...)
	downloaded := pipeline.AddStage(src, downloadCfg.Name, download, downloadCfg.Policy(), downloadCfg.Options()...)
	processed := pipeline.AddStage(downloaded, processCfg.Name, process, processCfg.Policy(), processCfg.Options()...)
	saved := pipeline.AddStage(processed, saveCfg.Name, save, saveCfg.Policy(), saveCfg.Options()...)

	return pipeline.Drain(ctx, saved, func(_ context.Context, url string) error {
		logger.Info().Str("url", url).Msg("done")

		return nil
	})
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, logger)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline failed")
		stop()
		os.Exit(1)
	}
}
