package model

import "time"

type AuditAction string

const (
	AuditRecordUploaded   AuditAction = "record.uploaded"
	AuditRecordDownloaded AuditAction = "record.downloaded"
	AuditRecordDeleted    AuditAction = "record.deleted"
	AuditShareCreated     AuditAction = "share.created"
	AuditShareAccessed    AuditAction = "share.accessed"
	AuditShareRevoked     AuditAction = "share.revoked"
	AuditShareSwept       AuditAction = "share.swept"
)

// AuditEvent records who did what to which record. Share tokens are never
// included, only the file they point at.
type AuditEvent struct {
	ID         string      `json:"id"`
	Action     AuditAction `json:"action"`
	UserID     string      `json:"user_id,omitempty"`
	FileID     FileID      `json:"file_id,omitempty"`
	Count      int         `json:"count,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
