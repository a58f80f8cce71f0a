package models

import "time"

// Certificate records an issued completion certificate for (learner, unit).
type Certificate struct {
	ID        string    `db:"id" json:"id"`
	LearnerID string    `db:"learner_id" json:"learner_id"`
	UnitID    string    `db:"unit_id" json:"unit_id"`
	FilePath  string    `db:"file_path" json:"-"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
}

// CertificateDownload is returned to clients with a signed URL token.
type CertificateDownload struct {
	Certificate
	DownloadToken string    `json:"download_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}
