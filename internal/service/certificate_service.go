package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/export"
	"github.com/noah-isme/lms-core-api/pkg/storage"
)

type certificateRepository interface {
	Create(ctx context.Context, cert *models.Certificate) error
	FindByLearnerAndUnit(ctx context.Context, learnerID, unitID string) (*models.Certificate, error)
	ListByLearner(ctx context.Context, learnerID string) ([]models.Certificate, error)
}

type certificateUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type certificateUnitReader interface {
	FindByID(ctx context.Context, id string) (*models.Unit, error)
}

// CertificateService renders, stores and serves completion certificates.
type CertificateService struct {
	repo   certificateRepository
	users  certificateUserReader
	units  certificateUnitReader
	pdf    *export.PDFExporter
	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
	logger *zap.Logger
}

// NewCertificateService constructs CertificateService.
func NewCertificateService(repo certificateRepository, users certificateUserReader, units certificateUnitReader, pdf *export.PDFExporter, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{repo: repo, users: users, units: units, pdf: pdf, store: store, signer: signer, logger: logger}
}

// Issue renders and stores a certificate for the completed unit. Re-issuing
// for the same (learner, unit) pair is a no-op.
func (s *CertificateService) Issue(ctx context.Context, learnerID, unitID string) error {
	if existing, err := s.repo.FindByLearnerAndUnit(ctx, learnerID, unitID); err == nil && existing != nil {
		return nil
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check certificate")
	}

	learner, err := s.users.FindByID(ctx, learnerID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learner")
	}
	unit, err := s.units.FindByID(ctx, unitID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}

	cert := &models.Certificate{LearnerID: learnerID, UnitID: unitID, IssuedAt: time.Now().UTC()}
	cert.FilePath = fmt.Sprintf("%s/%s.pdf", learnerID, unit.Slug)

	payload, err := s.pdf.RenderCertificate(export.Certificate{
		LearnerName: learner.FullName,
		UnitTitle:   unit.Title,
		Division:    string(unit.Division),
		CompletedAt: cert.IssuedAt,
		SerialID:    cert.FilePath,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	if _, err := s.store.Save(cert.FilePath, payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}
	if err := s.repo.Create(ctx, cert); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record certificate")
	}

	s.logger.Info("certificate issued",
		zap.String("learner_id", learnerID),
		zap.String("unit_id", unitID))
	return nil
}

// List returns the learner's certificates with signed download tokens.
func (s *CertificateService) List(ctx context.Context, learnerID string) ([]models.CertificateDownload, error) {
	certs, err := s.repo.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	out := make([]models.CertificateDownload, 0, len(certs))
	for _, cert := range certs {
		token, expiresAt, err := s.signer.Generate(cert.ID, cert.FilePath)
		if err != nil {
			s.logger.Warn("certificate token generation failed", zap.String("certificate_id", cert.ID), zap.Error(err))
			continue
		}
		out = append(out, models.CertificateDownload{Certificate: cert, DownloadToken: token, ExpiresAt: expiresAt})
	}
	return out, nil
}

// Resolve validates a download token and returns the stored file path.
func (s *CertificateService) Resolve(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	return s.store.Path(relPath), nil
}
