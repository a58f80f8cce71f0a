package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// CertificateRepository handles issued completion certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create records an issued certificate. Re-issuing for the same
// (learner, unit) pair is a no-op.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO certificates (id, learner_id, unit_id, file_path, issued_at)
        VALUES (:id, :learner_id, :unit_id, :file_path, :issued_at)
        ON CONFLICT (learner_id, unit_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// FindByLearnerAndUnit returns the certificate for the pair.
func (r *CertificateRepository) FindByLearnerAndUnit(ctx context.Context, learnerID, unitID string) (*models.Certificate, error) {
	const query = `SELECT id, learner_id, unit_id, file_path, issued_at
        FROM certificates WHERE learner_id = $1 AND unit_id = $2`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, learnerID, unitID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// ListByLearner returns all certificates issued to a learner.
func (r *CertificateRepository) ListByLearner(ctx context.Context, learnerID string) ([]models.Certificate, error) {
	const query = `SELECT id, learner_id, unit_id, file_path, issued_at
        FROM certificates WHERE learner_id = $1 ORDER BY issued_at DESC`
	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, query, learnerID); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}
