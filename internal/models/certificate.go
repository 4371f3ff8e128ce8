package models

import "time"

// CertificateStatus represents the certificate state machine.
type CertificateStatus string

// Certificate states. Transitions: PENDING -> APPROVED -> REVOKED. A pending
// certificate cannot be revoked directly and nothing leaves REVOKED.
const (
	CertificateStatusPending  CertificateStatus = "PENDING"
	CertificateStatusApproved CertificateStatus = "APPROVED"
	CertificateStatusRevoked  CertificateStatus = "REVOKED"
)

// Certificate is the single certificate issued against an enrollment.
type Certificate struct {
	ID                string            `db:"id" json:"id"`
	EnrollmentID      string            `db:"enrollment_id" json:"enrollment_id"`
	CertificateNumber string            `db:"certificate_number" json:"certificate_number"`
	VerificationHash  string            `db:"verification_hash" json:"-"`
	Status            CertificateStatus `db:"status" json:"status"`
	IssuedAt          *time.Time        `db:"issued_at" json:"issued_at,omitempty"`
	IssuedBy          *string           `db:"issued_by" json:"issued_by,omitempty"`
	RevokedAt         *time.Time        `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy         *string           `db:"revoked_by" json:"revoked_by,omitempty"`
	RevocationReason  *string           `db:"revocation_reason" json:"revocation_reason,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
}

// CertificateDetail enriches a certificate with course, holder and issuer info
// for the public verification endpoint.
type CertificateDetail struct {
	Certificate
	CourseTitle string  `db:"course_title" json:"course_title"`
	HolderName  string  `db:"holder_name" json:"holder_name"`
	IssuerName  *string `db:"issuer_name" json:"issuer_name,omitempty"`
}

// CertificateVerification is the uniform verification response. Found and
// not-found lookups share this shape so callers cannot distinguish them by
// response structure.
type CertificateVerification struct {
	Found       bool               `json:"found"`
	Certificate *CertificateDetail `json:"certificate,omitempty"`
}
