package service

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/export"
	"github.com/noah-isme/lms-core-api/pkg/storage"
)

type fakeCertificateRepo struct {
	certs map[string]*models.Certificate
}

func certKey(learnerID, unitID string) string { return learnerID + "/" + unitID }

func (f *fakeCertificateRepo) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = "cert-" + cert.UnitID
	}
	if f.certs == nil {
		f.certs = make(map[string]*models.Certificate)
	}
	f.certs[certKey(cert.LearnerID, cert.UnitID)] = cert
	return nil
}

func (f *fakeCertificateRepo) FindByLearnerAndUnit(ctx context.Context, learnerID, unitID string) (*models.Certificate, error) {
	if c, ok := f.certs[certKey(learnerID, unitID)]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCertificateRepo) ListByLearner(ctx context.Context, learnerID string) ([]models.Certificate, error) {
	var out []models.Certificate
	for _, c := range f.certs {
		if c.LearnerID == learnerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func certificateFixture(t *testing.T) (*CertificateService, *fakeCertificateRepo) {
	t.Helper()
	repo := &fakeCertificateRepo{}
	users := &fakeUserReader{users: map[string]*models.User{
		"learner-1": {ID: "learner-1", FullName: "Dev One", Division: models.DivisionEngineering},
	}}
	units := &fakeUnitReader{units: map[string]*models.Unit{
		"unit-1": publishedUnit("unit-1", "Go Basics", models.DivisionEngineering),
	}}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("cert-secret", time.Hour)
	svc := NewCertificateService(repo, users, units, export.NewPDFExporter(), store, signer, zap.NewNop())
	return svc, repo
}

func TestCertificateIssueRendersAndRecords(t *testing.T) {
	svc, repo := certificateFixture(t)

	require.NoError(t, svc.Issue(context.Background(), "learner-1", "unit-1"))
	cert := repo.certs[certKey("learner-1", "unit-1")]
	require.NotNil(t, cert)
	assert.Equal(t, "learner-1/unit-1.pdf", cert.FilePath)

	payload, err := os.ReadFile(svc.store.Path(cert.FilePath))
	require.NoError(t, err)
	assert.True(t, len(payload) > 0)
	assert.Equal(t, "%PDF", string(payload[:4]))
}

func TestCertificateIssueIsIdempotent(t *testing.T) {
	svc, repo := certificateFixture(t)

	require.NoError(t, svc.Issue(context.Background(), "learner-1", "unit-1"))
	first := repo.certs[certKey("learner-1", "unit-1")]

	require.NoError(t, svc.Issue(context.Background(), "learner-1", "unit-1"))
	assert.Same(t, first, repo.certs[certKey("learner-1", "unit-1")])
}

func TestCertificateListCarriesDownloadTokens(t *testing.T) {
	svc, _ := certificateFixture(t)
	require.NoError(t, svc.Issue(context.Background(), "learner-1", "unit-1"))

	downloads, err := svc.List(context.Background(), "learner-1")
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.NotEmpty(t, downloads[0].DownloadToken)
	assert.True(t, downloads[0].ExpiresAt.After(time.Now()))

	path, err := svc.Resolve(downloads[0].DownloadToken)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestCertificateResolveRejectsTamperedToken(t *testing.T) {
	svc, _ := certificateFixture(t)
	require.NoError(t, svc.Issue(context.Background(), "learner-1", "unit-1"))

	downloads, err := svc.List(context.Background(), "learner-1")
	require.NoError(t, err)

	_, err = svc.Resolve(downloads[0].DownloadToken + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
