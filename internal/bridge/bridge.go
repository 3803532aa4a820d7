// Package bridge implements the single serialized worker that owns
// the BLE client and turns raster pipeline output into printed pages.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cyra/thermal-ipp-bridge/internal/ble"
	"github.com/cyra/thermal-ipp-bridge/internal/raster"
)

// bleClient is the subset of *ble.Client the bridge depends on,
// narrowed to an interface so tests can substitute a fake printer.
type bleClient interface {
	Connect(ctx context.Context, cfg ble.Config) error
	Initialize(ctx context.Context, blackLevel int) error
	StartJob(ctx context.Context) error
	PrintLines(ctx context.Context, lines [][]byte, pacing ble.Pacing) error
	Disconnect() error
}

// printJob is one unit of work handed from the IPP handler to the
// worker goroutine.
type printJob struct {
	jobID    uint16
	document []byte
	done     chan error
}

// Bridge serializes every print job onto one BLE connection. On first
// use it performs discovery and the init handshake; subsequent jobs
// reuse the established connection.
type Bridge struct {
	pipeline *raster.Pipeline
	client   bleClient
	bleCfg   ble.Config
	pacing   ble.Pacing
	log      zerolog.Logger

	jobs chan printJob

	mu          sync.Mutex
	initialized bool
}

// New builds a Bridge and starts its worker goroutine. Call Close to
// stop it and tear down any open BLE connection.
func New(pipeline *raster.Pipeline, client bleClient, bleCfg ble.Config, pacing ble.Pacing, log zerolog.Logger) *Bridge {
	b := &Bridge{
		pipeline: pipeline,
		client:   client,
		bleCfg:   bleCfg,
		pacing:   pacing,
		log:      log.With().Str("component", "bridge").Logger(),
		jobs:     make(chan printJob, 8),
	}
	go b.run()
	return b
}

// SubmitPrintJob implements ipp.JobSink: it enqueues the job on the
// worker and blocks until the worker has rasterized and transmitted
// it. Concurrent callers are serialized at the queue; the printer can
// only do one thing at a time.
func (b *Bridge) SubmitPrintJob(jobID uint16, document []byte) error {
	done := make(chan error, 1)
	b.jobs <- printJob{jobID: jobID, document: document, done: done}
	return <-done
}

// Close stops accepting jobs and disconnects the BLE client.
func (b *Bridge) Close() {
	close(b.jobs)
}

func (b *Bridge) run() {
	for job := range b.jobs {
		err := b.process(job)
		if err != nil {
			b.log.Error().Uint16("job_id", job.jobID).Err(err).Msg("print job failed")
		}
		job.done <- err
	}
	if err := b.client.Disconnect(); err != nil {
		b.log.Warn().Err(err).Msg("failed to disconnect BLE client on shutdown")
	}
}

func (b *Bridge) process(job printJob) error {
	log := b.log.With().Uint16("job_id", job.jobID).Logger()

	pages, err := b.pipeline.Process(job.document)
	if err != nil {
		return fmt.Errorf("bridge: raster pipeline: %w", err)
	}
	if len(pages) == 0 {
		log.Info().Msg("zero-page job, nothing to print")
		return nil
	}

	ctx := context.Background()
	if err := b.ensureConnected(ctx); err != nil {
		// A failed connect forces re-discovery on the next job.
		b.mu.Lock()
		b.initialized = false
		b.mu.Unlock()
		return fmt.Errorf("bridge: connect: %w", err)
	}

	for i, page := range pages {
		log.Info().Int("page", i).Int("lines", len(page.Lines)).Str("kind", kindName(page.Kind)).Msg("printing page")
		if err := b.client.StartJob(ctx); err != nil {
			b.markDisconnected()
			return fmt.Errorf("bridge: job-start handshake: %w", err)
		}
		if err := b.client.PrintLines(ctx, page.Lines, b.pacing); err != nil {
			b.markDisconnected()
			return fmt.Errorf("bridge: print page %d: %w", i, err)
		}
	}
	return nil
}

func (b *Bridge) ensureConnected(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}

	if err := b.client.Connect(ctx, b.bleCfg); err != nil {
		return err
	}
	if err := b.client.Initialize(ctx, b.bleCfg.BlackLevel); err != nil {
		return err
	}
	b.initialized = true
	return nil
}

func (b *Bridge) markDisconnected() {
	b.mu.Lock()
	b.initialized = false
	b.mu.Unlock()
	_ = b.client.Disconnect()
}

func kindName(k raster.Kind) string {
	if k == raster.KindDocument {
		return "document"
	}
	return "photograph"
}
