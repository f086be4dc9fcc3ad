package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jo-hoe/imagestore/internal/backend/blobstore"
)

// maxSweepBatch bounds the number of keys handled per sweep so one tick can
// never spin on a queue that is being refilled.
const maxSweepBatch = 64

// startCleanupSweeper launches the background reconciliation loop that
// retries deletes of orphaned blobs. Returns a stop function that blocks
// until the loop is down.
func (service *CoreService) startCleanupSweeper(interval time.Duration) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				service.sweepOrphanedBlobs()
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

// sweepOrphanedBlobs drains queued blob keys and retries their deletion.
// A key whose delete still fails goes back on the queue for the next sweep.
func (service *CoreService) sweepOrphanedBlobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := 0; i < maxSweepBatch; i++ {
		key, ok, err := service.cleanupQueue.Dequeue(ctx)
		if err != nil {
			slog.Error("cleanup sweep failed to dequeue", "error", err)
			return
		}
		if !ok {
			return
		}

		err = service.blobStore.Delete(ctx, key)
		if err == nil || errors.Is(err, blobstore.ErrBlobNotFound) {
			slog.Info("removed orphaned blob", "key", key)
			continue
		}

		slog.Warn("orphaned blob delete failed again, requeueing", "key", key, "error", err)
		if err := service.cleanupQueue.Enqueue(ctx, key); err != nil {
			slog.Error("failed to requeue orphaned blob key", "key", key, "error", err)
		}
		return
	}
}
