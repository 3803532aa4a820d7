package bridge

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cyra/thermal-ipp-bridge/internal/ble"
	"github.com/cyra/thermal-ipp-bridge/internal/raster"
)

func solidDocumentImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

type fakeBLEClient struct {
	mu          sync.Mutex
	connects    int
	startJobs   int
	printed     [][][]byte
	connectErr  error
	startJobErr error
	printErr    error
}

func (f *fakeBLEClient) Connect(ctx context.Context, cfg ble.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeBLEClient) Initialize(ctx context.Context, blackLevel int) error { return nil }

func (f *fakeBLEClient) StartJob(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startJobs++
	return f.startJobErr
}

func (f *fakeBLEClient) PrintLines(ctx context.Context, lines [][]byte, pacing ble.Pacing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.printed = append(f.printed, lines)
	return f.printErr
}

func (f *fakeBLEClient) Disconnect() error { return nil }

func TestBridgeZeroPageJobReturnsWithoutError(t *testing.T) {
	pipeline := raster.NewPipeline(&raster.FakePageRenderer{Pages: nil}, raster.DefaultTuning(), zerolog.Nop())
	fake := &fakeBLEClient{}
	b := New(pipeline, fake, ble.Config{}, ble.Pacing{}, zerolog.Nop())
	defer b.Close()

	if err := b.SubmitPrintJob(1, nil); err != nil {
		t.Fatalf("zero-page job: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.connects != 0 {
		t.Fatalf("expected no BLE connection for a zero-page job, got %d connects", fake.connects)
	}
}

func TestBridgeConnectsOnceAndReusesConnection(t *testing.T) {
	img := solidDocumentImage()
	pipeline := raster.NewPipeline(&raster.FakePageRenderer{Pages: []image.Image{img}}, raster.DefaultTuning(), zerolog.Nop())
	fake := &fakeBLEClient{}
	b := New(pipeline, fake, ble.Config{}, ble.Pacing{}, zerolog.Nop())
	defer b.Close()

	if err := b.SubmitPrintJob(1, []byte("doc")); err != nil {
		t.Fatalf("job 1: %v", err)
	}
	if err := b.SubmitPrintJob(2, []byte("doc")); err != nil {
		t.Fatalf("job 2: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.connects != 1 {
		t.Fatalf("connects = %d, want 1 (connection reused)", fake.connects)
	}
	if fake.startJobs != 2 {
		t.Fatalf("startJobs = %d, want 2 (once per job)", fake.startJobs)
	}
	if len(fake.printed) != 2 {
		t.Fatalf("printed pages = %d, want 2", len(fake.printed))
	}
}

func TestBridgeReconnectsAfterPrintError(t *testing.T) {
	img := solidDocumentImage()
	pipeline := raster.NewPipeline(&raster.FakePageRenderer{Pages: []image.Image{img}}, raster.DefaultTuning(), zerolog.Nop())
	fake := &fakeBLEClient{printErr: errors.New("write failed")}
	b := New(pipeline, fake, ble.Config{}, ble.Pacing{}, zerolog.Nop())
	defer b.Close()

	if err := b.SubmitPrintJob(1, []byte("doc")); err == nil {
		t.Fatalf("expected error from failing print")
	}

	fake.mu.Lock()
	fake.printErr = nil
	fake.mu.Unlock()

	if err := b.SubmitPrintJob(2, []byte("doc")); err != nil {
		t.Fatalf("job after recovery: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.connects != 2 {
		t.Fatalf("connects = %d, want 2 (re-discovery after failure)", fake.connects)
	}
}
