package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jo-hoe/imagestore/internal/backend/blobstore"
	"github.com/jo-hoe/imagestore/internal/backend/cleanup"
	"github.com/jo-hoe/imagestore/internal/backend/database"
)

// ResolvedImage is an image record together with its retrieval URL. The URL
// is derived from the blob store on every read; it is nil when the blob
// cannot currently be resolved.
type ResolvedImage struct {
	Image *database.Image
	URL   *string
}

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	blobStore       blobstore.BlobStore
	cleanupQueue    cleanup.Queue
	stopSweeper     func()
}

func NewCoreService(config *ServiceConfig) *CoreService {
	databaseService, err := getDatabaseService(config)
	if err != nil {
		slog.Error("failed to initialize database service", "error", err)
		panic(err)
	}

	blobStore, err := blobstore.NewBlobStore(
		config.BlobStore.Type, config.BlobStore.Directory, config.BlobStore.BaseURL)
	if err != nil {
		slog.Error("failed to initialize blob store", "error", err)
		panic(err)
	}
	slog.Info("blob store initialized successfully", "type", config.BlobStore.Type)

	cleanupQueue, err := cleanup.NewQueue(config.Cleanup.QueueType, config.Cleanup.RedisAddress)
	if err != nil {
		slog.Error("failed to initialize cleanup queue", "error", err)
		panic(err)
	}

	service := &CoreService{
		config:          config,
		databaseService: databaseService,
		blobStore:       blobStore,
		cleanupQueue:    cleanupQueue,
	}
	service.stopSweeper = service.startCleanupSweeper(config.Cleanup.SweepInterval())
	return service
}

// Upload ingests a new image: the blob is written first, then the metadata
// row and tag associations are committed in one transaction. A metadata
// failure triggers a compensating blob delete, so no half-created image is
// ever observable.
func (service *CoreService) Upload(ctx context.Context, filename string, payload []byte, tagNames []string) (*ResolvedImage, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename must not be empty", ErrInvalidInput)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: image payload must not be empty", ErrInvalidInput)
	}
	if err := validateTagNames(tagNames); err != nil {
		return nil, err
	}

	id := database.NewImageID()
	key := blobstore.ObjectKey(id, filename)

	if err := service.blobStore.Put(ctx, key, payload); err != nil {
		return nil, fmt.Errorf("%w: failed to write blob: %v", ErrStorageUnavailable, err)
	}

	image := &database.Image{
		ID:        id,
		Filename:  filename,
		BlobKey:   key,
		CreatedAt: time.Now().UTC(),
	}
	if err := service.databaseService.CreateImage(ctx, image, tagNames); err != nil {
		service.compensateBlobWrite(key)
		return nil, fmt.Errorf("%w: %v", ErrMetadataWriteFailed, err)
	}

	slog.Info("image ingested", "id", image.ID, "filename", image.Filename, "tags", len(image.Tags))
	return service.resolve(ctx, image), nil
}

// GetImageByID returns the image with its current retrieval URL, or
// ErrNotFound for an unknown id.
func (service *CoreService) GetImageByID(ctx context.Context, id string) (*ResolvedImage, error) {
	image, err := service.databaseService.GetImageByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrImageNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return service.resolve(ctx, image), nil
}

// GetAllImages lists every image. URL resolution is per entry: a blob that
// cannot be resolved yields a nil URL for that entry, never a failed list.
func (service *CoreService) GetAllImages(ctx context.Context) ([]*ResolvedImage, error) {
	images, err := service.databaseService.GetAllImages(ctx)
	if err != nil {
		return nil, err
	}

	resolved := make([]*ResolvedImage, 0, len(images))
	for _, image := range images {
		resolved = append(resolved, service.resolve(ctx, image))
	}
	return resolved, nil
}

// UpdateImage applies a field-scoped update: only the provided fields
// change. Tag updates replace the full tag set rather than merging into it.
func (service *CoreService) UpdateImage(ctx context.Context, id string, filename *string, tagNames []string) (*ResolvedImage, error) {
	if _, err := service.databaseService.GetImageByID(ctx, id); err != nil {
		if errors.Is(err, database.ErrImageNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	if filename != nil {
		if *filename == "" {
			return nil, fmt.Errorf("%w: filename must not be empty", ErrInvalidInput)
		}
		if err := service.databaseService.UpdateFilename(ctx, id, *filename); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMetadataWriteFailed, err)
		}
	}

	if tagNames != nil {
		if err := validateTagNames(tagNames); err != nil {
			return nil, err
		}
		if _, err := service.databaseService.ReplaceTags(ctx, id, tagNames); err != nil {
			if errors.Is(err, database.ErrImageNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return nil, fmt.Errorf("%w: %v", ErrTagResolutionFailed, err)
		}
	}

	image, err := service.databaseService.GetImageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return service.resolve(ctx, image), nil
}

// GetBlob returns the binary payload for a stored image, addressed the same
// way the derived retrieval URLs are.
func (service *CoreService) GetBlob(ctx context.Context, imageID, filename string) ([]byte, error) {
	data, err := service.blobStore.Get(ctx, blobstore.ObjectKey(imageID, filename))
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: no blob for image %s", ErrNotFound, imageID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return data, nil
}

func (service *CoreService) Close() error {
	if service.stopSweeper != nil {
		service.stopSweeper()
	}
	var errs []error
	if service.cleanupQueue != nil {
		if err := service.cleanupQueue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cleanup queue: %w", err))
		}
	}
	if service.databaseService != nil {
		if err := service.databaseService.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (service *CoreService) resolve(ctx context.Context, image *database.Image) *ResolvedImage {
	url, err := service.blobStore.URL(ctx, image.BlobKey)
	if err != nil {
		slog.Warn("failed to resolve blob URL", "id", image.ID, "key", image.BlobKey, "error", err)
		return &ResolvedImage{Image: image}
	}
	return &ResolvedImage{Image: image, URL: &url}
}

// compensateBlobWrite undoes a blob write whose metadata transaction failed.
// Runs on a fresh context: the client may have gone away, the cleanup still
// has to happen. An unremovable blob is queued for the background sweep.
func (service *CoreService) compensateBlobWrite(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := service.blobStore.Delete(ctx, key)
	if err == nil || errors.Is(err, blobstore.ErrBlobNotFound) {
		return
	}
	slog.Error("compensating blob delete failed, queueing for cleanup", "key", key, "error", err)
	if err := service.cleanupQueue.Enqueue(ctx, key); err != nil {
		slog.Error("failed to enqueue orphaned blob key", "key", key, "error", err)
	}
}

func validateTagNames(tagNames []string) error {
	for _, name := range tagNames {
		if name == "" {
			return fmt.Errorf("%w: tag name must not be empty", ErrTagResolutionFailed)
		}
	}
	return nil
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}
