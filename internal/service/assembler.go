package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/bsvdl/internal/config"
	"github.com/iconidentify/bsvdl/internal/domain"
	"github.com/iconidentify/bsvdl/internal/downloader"
	"github.com/iconidentify/bsvdl/internal/metrics"
	"github.com/iconidentify/bsvdl/pkg/ffmpeg"
)

const (
	concatListName = "segments.txt"
	outputName     = "output.mp4"
)

// Assembler downloads segments into a private scratch directory and joins
// them into a single MP4.
type Assembler struct {
	fetcher     Fetcher
	concat      Concatenator
	scratchDir  string
	maxOutput   int64
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewAssembler creates a new assembler.
func NewAssembler(
	fetcher Fetcher,
	concat Concatenator,
	storageCfg config.StorageConfig,
	downloadCfg config.DownloadConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Assembler {
	concurrency := downloadCfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	// ffmpeg resolves relative concat entries against the list file's
	// directory, so segment paths must be absolute.
	scratchDir := storageCfg.ScratchDir
	if abs, err := filepath.Abs(scratchDir); err == nil {
		scratchDir = abs
	}
	return &Assembler{
		fetcher:     fetcher,
		concat:      concat,
		scratchDir:  scratchDir,
		maxOutput:   storageCfg.MaxOutputSize,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger,
	}
}

// Assemble fetches every segment and returns the concatenated video. The
// scratch directory is removed before Assemble returns, whatever the outcome.
func (a *Assembler) Assemble(ctx context.Context, segments domain.SegmentList) (*domain.AssembledVideo, error) {
	if len(segments) == 0 {
		return nil, domain.NewManifestError("", errors.New("no segments to assemble"))
	}

	dir := filepath.Join(a.scratchDir, uuid.New().String())
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, domain.NewAssemblyError(dir, fmt.Errorf("create scratch directory: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			a.logger.Warn("failed to remove scratch directory", "dir", dir, "error", err)
		}
	}()

	paths := make([]string, len(segments))
	for i := range segments {
		paths[i] = filepath.Join(dir, fmt.Sprintf("segment_%d.ts", i))
	}

	if err := a.downloadAll(ctx, segments, paths); err != nil {
		return nil, err
	}

	listPath := filepath.Join(dir, concatListName)
	if err := ffmpeg.WriteConcatList(listPath, paths); err != nil {
		return nil, domain.NewAssemblyError(listPath, err)
	}

	outPath := filepath.Join(dir, outputName)
	if err := a.concat.ConcatCopy(ctx, listPath, outPath); err != nil {
		return nil, domain.NewAssemblyError("", err)
	}

	data, err := a.readOutput(outPath)
	if err != nil {
		return nil, err
	}
	a.metrics.ObserveOutput(len(data))

	return &domain.AssembledVideo{
		Data:         data,
		SegmentCount: len(segments),
	}, nil
}

// downloadAll fetches segments[i] into paths[i] with at most a.concurrency
// transfers in flight. The first failure cancels the rest.
func (a *Assembler) downloadAll(ctx context.Context, segments domain.SegmentList, paths []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, url := range segments {
		if gctx.Err() != nil {
			break
		}
		path := paths[i]
		g.Go(func() error {
			return a.downloadSegment(gctx, url, path)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// Parent cancellation can stop the loop before any transfer fails.
	if err := ctx.Err(); err != nil {
		return domain.NewDownloadError("", err)
	}
	return nil
}

func (a *Assembler) downloadSegment(ctx context.Context, url, path string) error {
	n, err := a.fetchSegment(ctx, url, path)
	if err != nil {
		a.metrics.SegmentFailed(downloader.FailureReason(err))
		return domain.NewDownloadError(url, err)
	}
	a.metrics.SegmentDownloaded(n)
	return nil
}

func (a *Assembler) fetchSegment(ctx context.Context, url, path string) (int64, error) {
	content, _, err := a.fetcher.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	defer content.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	n, err := io.Copy(f, content)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close file: %w", err)
	}
	return n, nil
}

func (a *Assembler) readOutput(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.NewAssemblyError(path, fmt.Errorf("stat output: %w", err))
	}
	if a.maxOutput > 0 && info.Size() > a.maxOutput {
		return nil, domain.NewAssemblyError("", fmt.Errorf("output is %d bytes, limit is %d", info.Size(), a.maxOutput))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewAssemblyError(path, fmt.Errorf("read output: %w", err))
	}
	return data, nil
}
