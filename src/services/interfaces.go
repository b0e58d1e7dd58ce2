package services

import (
	"context"
	"io"
	"time"

	"github.com/username/tradeclean/src/models"
	"github.com/username/tradeclean/src/parsers"
	"github.com/username/tradeclean/src/storage"
)

// UploadResult holds everything produced for one upload.
type UploadResult struct {
	ID           string                  `json:"id"`
	FileName     string                  `json:"file_name,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	Columns      []string                `json:"columns"`
	Transactions [][]string              `json:"transactions"`
	Summary      []models.PLSummaryRow   `json:"summary,omitempty"`
	SummaryError string                  `json:"summary_error,omitempty"`
	Warnings     []parsers.AmountWarning `json:"warnings,omitempty"`
	Artifacts    []storage.ArtifactKind  `json:"artifacts"`

	// Table is the canonical table behind Columns/Transactions.
	Table *models.Table `json:"-"`
}

// UploadService defines the interface for the core upload processing logic.
type UploadService interface {
	ProcessUpload(ctx context.Context, file io.Reader, fileName string) (*UploadResult, error)
	GetUploadResult(ctx context.Context, uploadID string) (*UploadResult, error)
	OpenArtifact(ctx context.Context, uploadID string, kind storage.ArtifactKind) (io.ReadCloser, error)
	DeleteAllUploads(ctx context.Context) (int, error)
}
