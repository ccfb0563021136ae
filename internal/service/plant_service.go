package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"plantcare/internal/classifier"
	"plantcare/internal/config"
	"plantcare/internal/domain"
	"plantcare/internal/remedy"
	"plantcare/internal/staging"
	"plantcare/internal/upstream"
	"plantcare/pkg/imaging"
)

type PlantService interface {
	UploadImage(ctx context.Context, fileBytes []byte, filename string) (*domain.StagedImage, error)
	AnalyzeDisease(ctx context.Context, token string) (*domain.DiseaseResult, error)
	GetRemedy(ctx context.Context, label string) (*domain.Remedy, error)
}

type Classifier interface {
	Classify(ctx context.Context, img *domain.StagedImage) (*domain.RawClassification, error)
}

type RemedyRetriever interface {
	Retrieve(ctx context.Context, label string) (string, error)
}

type plantService struct {
	store      *staging.Store
	classifier Classifier
	remedies   RemedyRetriever
	proc       *imaging.Processor
	cfg        *config.Config
	log        *zap.Logger
}

func NewPlantService(store *staging.Store, cls Classifier, remedies RemedyRetriever, cfg *config.Config, log *zap.Logger) PlantService {
	return &plantService{
		store:      store,
		classifier: cls,
		remedies:   remedies,
		proc:       imaging.NewProcessor(log),
		cfg:        cfg,
		log:        log,
	}
}

// UploadImage stages any image. Only the extensions in APP_ANALYZE_FORMATS
// are later picked up by AnalyzeDisease.
func (s *plantService) UploadImage(ctx context.Context, fileBytes []byte, filename string) (*domain.StagedImage, error) {
	img, err := s.store.Put(ctx, fileBytes, filepath.Ext(filename))
	if err != nil {
		return nil, err
	}

	s.log.Info("Image uploaded successfully",
		zap.String("key", img.Filename),
		zap.String("original_name", filename),
		zap.Int64("size", img.Size))

	return img, nil
}

// AnalyzeDisease takes the image named by token, or the oldest analyzable
// image when token is empty, and classifies it. The staged image is
// removed on every path once taken.
func (s *plantService) AnalyzeDisease(ctx context.Context, token string) (*domain.DiseaseResult, error) {
	lease, err := s.take(ctx, token)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.log.Warn("Staged image not released", zap.String("key", lease.Image.Filename), zap.Error(err))
		}
	}()

	img := s.prepare(lease.Image)

	raw, err := s.classifier.Classify(ctx, img)
	if err != nil {
		s.log.Error("Failed to analyze disease",
			zap.String("key", img.Filename),
			zap.Error(err))

		var se *upstream.StatusError
		if errors.As(err, &se) {
			return nil, domain.NewUpstreamError("Failed to analyze disease", err)
		}
		return nil, domain.NewUpstreamError("Failed to analyze disease.", err)
	}

	res := classifier.Normalize(raw)

	s.log.Info("Disease analyzed",
		zap.String("key", img.Filename),
		zap.String("result", res.Label),
		zap.Int("confidence", res.Confidence))

	return &res, nil
}

func (s *plantService) take(ctx context.Context, token string) (*staging.Lease, error) {
	formats := s.cfg.App.AnalyzeFormats
	if token == "" {
		return s.store.TakeFirst(ctx, formats)
	}

	ext := filepath.Ext(token)
	for _, f := range formats {
		if strings.EqualFold(ext, f) {
			return s.store.Take(ctx, token)
		}
	}
	return nil, domain.NewValidationError("Only " + strings.Join(formats, " or ") + " images can be analyzed")
}

// prepare optionally re-compresses the image before it is forwarded.
func (s *plantService) prepare(img *domain.StagedImage) *domain.StagedImage {
	quality := s.cfg.App.CompressQuality
	if quality <= 0 {
		return img
	}

	data, err := s.proc.CompressJPEG(img.Bytes, quality)
	if err != nil {
		s.log.Warn("Compression failed, forwarding original",
			zap.String("key", img.Filename),
			zap.Error(err))
		return img
	}

	out := *img
	out.Bytes = data
	out.Size = int64(len(data))
	out.ContentType = imaging.ContentType(data, img.Ext)
	return &out
}

func (s *plantService) GetRemedy(ctx context.Context, label string) (*domain.Remedy, error) {
	raw, err := s.remedies.Retrieve(ctx, label)
	if err != nil {
		if domain.KindOf(err) != domain.KindValidation {
			s.log.Error("Failed to retrieve remedy",
				zap.String("label", label),
				zap.Error(err))
		}
		return nil, err
	}

	return &domain.Remedy{
		Raw:     raw,
		Entries: remedy.Structure(raw),
	}, nil
}
