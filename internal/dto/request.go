package dto

// CreateShareRequest is the optional body of a share request.
type CreateShareRequest struct {
	Recipient string `json:"recipient" binding:"omitempty,email"`
}
