package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/himastat/siorma-api/internal/models"
	"github.com/himastat/siorma-api/pkg/export"
	"github.com/himastat/siorma-api/pkg/storage"
)

type decidedLister interface {
	ListDecided(ctx context.Context, period string, division *string) ([]models.Report, []models.LPJ, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// RecapExportConfig tunes export behaviour.
type RecapExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// RecapResult captures successful generation metadata.
type RecapResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.RecapFormat
	ExpiresAt    time.Time
}

// RecapExportService builds decision recap datasets and persists rendered files.
type RecapExportService struct {
	decisions decidedLister
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       RecapExportConfig
}

// NewRecapExportService constructs a RecapExportService.
func NewRecapExportService(decisions decidedLister, store fileStorage, signer *storage.SignedURLSigner, cfg RecapExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *RecapExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &RecapExportService{
		decisions: decisions,
		storage:   store,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate builds the recap dataset and stores the rendered export.
func (s *RecapExportService) Generate(ctx context.Context, job *models.RecapJob) (*RecapResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job.Params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.RecapFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.RecapFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	signedURL := fmt.Sprintf("%s/recaps/download/%s", prefix, token)

	return &RecapResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *RecapExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *RecapExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *RecapExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *RecapExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *RecapExportService) buildFilename(job *models.RecapJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	periodPart := sanitizeFilename(job.Params.Period)
	return fmt.Sprintf("recap_%s_%s.%s", periodPart, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *RecapExportService) buildDataset(ctx context.Context, params models.RecapJobParams) (export.Dataset, string, error) {
	reports, lpjs, err := s.decisions.ListDecided(ctx, params.Period, params.Division)
	if err != nil {
		return export.Dataset{}, "", err
	}

	submissions := make([]models.Submission, 0, len(reports)+len(lpjs))
	for _, r := range reports {
		submissions = append(submissions, models.FromReport(r))
	}
	for _, l := range lpjs {
		submissions = append(submissions, models.FromLPJ(l))
	}

	dataRows := make([]map[string]string, 0, len(submissions))
	for _, sub := range submissions {
		dataRows = append(dataRows, map[string]string{
			"ID":           sub.ID,
			"Kind":         string(sub.Kind),
			"Title":        sub.Title,
			"Status":       string(sub.Status),
			"Submitted By": sub.SubmittedBy,
			"Note":         derefString(sub.Note),
			"Reviewed By":  derefString(sub.ReviewedBy),
			"Reviewed At":  formatRecapTime(sub.ReviewedAt),
		})
	}

	dataset := export.Dataset{
		Headers: []string{"ID", "Kind", "Title", "Status", "Submitted By", "Note", "Reviewed By", "Reviewed At"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Rekap Keputusan %s", params.Period)
	if params.Division != nil && *params.Division != "" {
		title = fmt.Sprintf("%s (%s)", title, *params.Division)
	}
	return dataset, title, nil
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatRecapTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
