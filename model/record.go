package model

import "github.com/google/uuid"

// FileID is the generated storage key of an uploaded record. It is both the
// blob name and the entry kept in the ownership ledger.
type FileID string

func (f FileID) String() string {
	return string(f)
}

// NewFileID returns a collision-resistant name independent of the uploaded name.
func NewFileID() FileID {
	return FileID(uuid.NewString())
}

// UploadResult is returned to the uploader.
type UploadResult struct {
	Filename     FileID `json:"filename"`
	OriginalName string `json:"originalname"`
}
