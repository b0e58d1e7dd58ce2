package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/username/tradeclean/src/exporter"
	"github.com/username/tradeclean/src/logger"
	"github.com/username/tradeclean/src/metrics"
	"github.com/username/tradeclean/src/models"
	"github.com/username/tradeclean/src/parsers"
	"github.com/username/tradeclean/src/processors"
	"github.com/username/tradeclean/src/storage"
)

const (
	ckUploadResult = "upload_result_%s"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type uploadServiceImpl struct {
	store       *storage.Store
	normalizer  parsers.Normalizer
	plProcessor processors.PLProcessor
	resultCache *cache.Cache
	metrics     *metrics.Metrics

	// rebuilds collapses concurrent cache-miss rebuilds of one upload.
	rebuilds singleflight.Group
}

func NewUploadService(
	store *storage.Store,
	normalizer parsers.Normalizer,
	plProcessor processors.PLProcessor,
	resultCache *cache.Cache,
	m *metrics.Metrics,
) UploadService {
	return &uploadServiceImpl{
		store:       store,
		normalizer:  normalizer,
		plProcessor: plProcessor,
		resultCache: resultCache,
		metrics:     m,
	}
}

// ProcessUpload stores the raw file, cleans it and summarizes it. A table
// that lacks the columns needed for the summary is still returned, with
// SummaryError set and no summary artifacts.
func (s *uploadServiceImpl) ProcessUpload(ctx context.Context, file io.Reader, fileName string) (*UploadResult, error) {
	startTime := time.Now()
	result, err := s.processUpload(ctx, file, fileName, startTime)

	outcome, rows, warnings := metrics.OutcomeSuccess, 0, 0
	switch {
	case errors.Is(err, ErrParsingFailed):
		outcome = metrics.OutcomeParseFailed
	case err != nil:
		outcome = metrics.OutcomeFailed
	case result.SummaryError != "":
		outcome = metrics.OutcomeSummarySkipped
	}
	if result != nil {
		rows, warnings = len(result.Transactions), len(result.Warnings)
	}
	s.metrics.ObserveUpload(outcome, rows, warnings, time.Since(startTime))
	return result, err
}

func (s *uploadServiceImpl) processUpload(ctx context.Context, file io.Reader, fileName string, startTime time.Time) (result *UploadResult, err error) {
	log := logger.FromContext(ctx)

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	session := s.store.NewSession()
	log = log.With("uploadID", session.ID)
	log.Info("ProcessUpload START", "fileName", fileName, "bytes", len(raw))
	defer func() {
		if err == nil {
			return
		}
		if rmErr := session.Remove(); rmErr != nil {
			log.Error("Failed to remove session of failed upload", "error", rmErr)
		}
	}()

	if err := session.Write(storage.ArtifactOriginal, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	normalized, err := s.normalizer.Normalize(raw)
	if err != nil {
		log.Warn("Normalization failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}

	result = &UploadResult{
		ID:        session.ID,
		FileName:  fileName,
		CreatedAt: startTime.UTC(),
		Warnings:  normalized.Warnings,
		Artifacts: []storage.ArtifactKind{storage.ArtifactOriginal},
	}
	result.setTable(normalized.Table)
	for _, w := range normalized.Warnings {
		log.Warn("Unparsable amount replaced with missing value", "row", w.Row, "raw", w.Raw)
	}

	cleaned, err := parsers.EncodeTable(normalized.Table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	if err := session.Write(storage.ArtifactCleaned, cleaned); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	result.Artifacts = append(result.Artifacts, storage.ArtifactCleaned)

	if err := s.summarize(session, result); err != nil {
		return nil, err
	}

	s.resultCache.Set(fmt.Sprintf(ckUploadResult, session.ID), result, cache.DefaultExpiration)
	log.Info("ProcessUpload END", "rows", normalized.Table.Len(), "groups", len(result.Summary), "duration", time.Since(startTime))
	return result, nil
}

// summarize aggregates result.Table and writes the summary and workbook
// artifacts. A missing-columns failure is recorded on result, not returned.
func (s *uploadServiceImpl) summarize(session *storage.Session, result *UploadResult) error {
	summary, err := s.plProcessor.Aggregate(result.Table)
	if err != nil {
		if !errors.Is(err, processors.ErrMissingColumns) {
			return fmt.Errorf("%w: %v", ErrProcessingFailed, err)
		}
		result.SummaryError = err.Error()
		summary = nil
	} else {
		result.Summary = summary
		data, err := parsers.EncodeSummary(summary)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProcessingFailed, err)
		}
		if err := session.Write(storage.ArtifactSummary, data); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailed, err)
		}
		result.Artifacts = append(result.Artifacts, storage.ArtifactSummary)
	}

	workbook, err := exporter.WorkbookBytes(result.Table, summary)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}
	if err := session.Write(storage.ArtifactReport, workbook); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	result.Artifacts = append(result.Artifacts, storage.ArtifactReport)
	return nil
}

// GetUploadResult serves from the cache and falls back to rebuilding the
// result from the stored cleaned.csv. Warnings are not recoverable from disk.
func (s *uploadServiceImpl) GetUploadResult(ctx context.Context, uploadID string) (*UploadResult, error) {
	log := logger.FromContext(ctx).With("uploadID", uploadID)
	cacheKey := fmt.Sprintf(ckUploadResult, uploadID)

	if cached, found := s.resultCache.Get(cacheKey); found {
		if result, ok := cached.(*UploadResult); ok {
			log.Debug("Cache hit for upload result")
			s.metrics.ObserveCacheLookup(true)
			return result, nil
		}
	}
	s.metrics.ObserveCacheLookup(false)

	v, err, shared := s.rebuilds.Do(uploadID, func() (interface{}, error) {
		return s.rebuildResult(ctx, uploadID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("Shared upload result rebuild")
	}
	return v.(*UploadResult), nil
}

func (s *uploadServiceImpl) rebuildResult(ctx context.Context, uploadID string) (*UploadResult, error) {
	log := logger.FromContext(ctx).With("uploadID", uploadID)

	session, err := s.store.Session(uploadID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadNotFound, err)
	}
	cleaned, err := session.ReadFile(storage.ArtifactCleaned)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	log.Info("Cache miss, rebuilding upload result from disk")
	normalized, err := s.normalizer.Normalize(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}

	result := &UploadResult{ID: uploadID}
	if info, err := os.Stat(session.Path(storage.ArtifactCleaned)); err == nil {
		result.CreatedAt = info.ModTime().UTC()
	}
	result.setTable(normalized.Table)

	summary, err := s.plProcessor.Aggregate(normalized.Table)
	switch {
	case err == nil:
		result.Summary = summary
	case errors.Is(err, processors.ErrMissingColumns):
		result.SummaryError = err.Error()
	default:
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	for _, kind := range storage.ArtifactKinds {
		if _, err := os.Stat(session.Path(kind)); err == nil {
			result.Artifacts = append(result.Artifacts, kind)
		}
	}

	s.resultCache.Set(fmt.Sprintf(ckUploadResult, uploadID), result, cache.DefaultExpiration)
	return result, nil
}

func (s *uploadServiceImpl) OpenArtifact(ctx context.Context, uploadID string, kind storage.ArtifactKind) (io.ReadCloser, error) {
	session, err := s.store.Session(uploadID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadNotFound, err)
	}
	f, err := session.Open(kind)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrArtifactNotFound, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	logger.FromContext(ctx).Debug("Serving artifact", "uploadID", uploadID, "kind", kind)
	return f, nil
}

// DeleteAllUploads removes every stored session and empties the cache.
func (s *uploadServiceImpl) DeleteAllUploads(ctx context.Context) (int, error) {
	s.resultCache.Flush()
	removed, err := s.store.DeleteAll()
	if err != nil {
		return removed, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	logger.FromContext(ctx).Info("Deleted all uploads", "removed", removed)
	return removed, nil
}

func (r *UploadResult) setTable(t *models.Table) {
	r.Table = t
	r.Columns = t.Schema.Names()
	r.Transactions = t.Records()
}
