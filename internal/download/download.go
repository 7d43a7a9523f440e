package download

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cavaliergopher/grab/v3"
)

var client = newClient()

func newClient() *grab.Client {
	c := grab.NewClient()
	c.UserAgent = "firecraft-launcher"
	return c
}

// ProgressCallback is called during download with progress info.
// fraction is in [0,1], or -1 when the server didn't send a size.
type ProgressCallback func(bytesComplete, totalBytes int64, fraction float64)

// tick is how often progress is sampled
var tick = 100 * time.Millisecond

// File downloads a file from URL to the target path
func File(ctx context.Context, url, targetPath string) error {
	return FileWithProgress(ctx, url, targetPath, nil)
}

// FileWithProgress downloads a file with progress callback. The target is
// always overwritten, never resumed.
func FileWithProgress(ctx context.Context, url, targetPath string, callback ProgressCallback) error {
	req, err := grab.NewRequest(targetPath, url)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.NoResume = true
	req = req.WithContext(ctx)

	resp := client.Do(req)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	lastBytes := int64(-1)
	report := func() {
		if callback == nil {
			return
		}
		done := resp.BytesComplete()
		if done == lastBytes {
			return
		}
		lastBytes = done
		fraction := -1.0
		if resp.Size() > 0 {
			fraction = resp.Progress()
		}
		callback(done, resp.Size(), fraction)
	}

loop:
	for {
		select {
		case <-ticker.C:
			report()
		case <-resp.Done:
			break loop
		}
	}

	if err := resp.Err(); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	report()
	return nil
}

// ToTemp downloads url into a new file in dir named after pattern, as
// os.CreateTemp names it, and returns the path. An empty dir is the system
// temp directory. Nothing is left behind on failure.
func ToTemp(ctx context.Context, url, dir, pattern string, callback ProgressCallback) (string, error) {
	tempFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := FileWithProgress(ctx, url, tempPath, callback); err != nil {
		_ = os.Remove(tempPath)
		return "", err
	}

	return tempPath, nil
}
