package service

import "errors"

var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrNoFileProvided        = errors.New("no file uploaded")
	ErrAccessDenied          = errors.New("access denied")
	ErrNotFound              = errors.New("file not found")
	ErrInvalidOrExpiredShare = errors.New("invalid or expired share link")
)
