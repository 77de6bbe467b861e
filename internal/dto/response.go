package dto

import "CareVault/model"

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Filename     model.FileID `json:"filename"`
	OriginalName string       `json:"originalname"`
}

// ShareResponse carries the public link for a record.
type ShareResponse struct {
	ShareURL    string `json:"shareUrl"`
	ExpiresAt   int64  `json:"expiresAt"`
	EmailQueued bool   `json:"emailQueued,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
