package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"CareVault/internal/ledger"
	"CareVault/internal/metrics"
	"CareVault/internal/storage"
	"CareVault/model"
	"CareVault/utils"
)

const (
	defaultPublicBaseURL = "http://localhost:5000"
	maxPendingMails      = 8
)

// AuditSink receives one event per successful operation.
type AuditSink interface {
	Publish(ctx context.Context, event model.AuditEvent) error
}

// ShareMailer delivers a share link to a recipient.
type ShareMailer interface {
	SendShareLink(to, link string, expiresAt time.Time) error
}

type RecordsConfig struct {
	// PublicBaseURL prefixes share links; empty means use the request's origin.
	PublicBaseURL        string
	RevokeSharesOnDelete bool
}

type Deps struct {
	Owners  *ledger.OwnershipLedger
	Shares  *ledger.ShareLedger
	Blobs   storage.Store
	Audit   AuditSink
	Mailer  ShareMailer
	Metrics *metrics.Collector
	Log     *zap.Logger
	Config  RecordsConfig
	Now     func() time.Time
}

// RecordsService implements upload, listing, download, deletion and share
// links on top of the two ledgers and the blob store. It holds no state of
// its own.
type RecordsService struct {
	owners  *ledger.OwnershipLedger
	shares  *ledger.ShareLedger
	blobs   storage.Store
	audit   AuditSink
	mailer  ShareMailer
	metrics *metrics.Collector
	log     *zap.Logger
	cfg     RecordsConfig
	now     func() time.Time

	mailSlots chan struct{}
	mailWG    sync.WaitGroup
}

func NewRecordsService(d Deps) *RecordsService {
	s := &RecordsService{
		owners:  d.Owners,
		shares:  d.Shares,
		blobs:   d.Blobs,
		audit:   d.Audit,
		mailer:  d.Mailer,
		metrics: d.Metrics,
		log:     d.Log,
		cfg:     d.Config,
		now:     d.Now,

		mailSlots: make(chan struct{}, maxPendingMails),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Blob is an open download. Callers must close Body.
type Blob struct {
	Name        model.FileID
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

type ShareOptions struct {
	// RequestBaseURL is used when no public base URL is configured.
	RequestBaseURL string
	Recipient      string
}

type ShareResult struct {
	URL       string
	Token     string
	ExpiresAt time.Time

	// EmailQueued reports that the link was handed to the mailer; delivery
	// happens in the background.
	EmailQueued bool
}

// Upload stores the bytes under a generated name and records the caller as
// owner. A nil reader means the request carried no file.
func (s *RecordsService) Upload(ctx context.Context, userID string, r io.Reader, size int64, originalName string) (model.UploadResult, error) {
	if r == nil {
		return model.UploadResult{}, ErrNoFileProvided
	}
	id := model.NewFileID()
	if err := s.blobs.PutObject(ctx, id.String(), r, size, storage.PutOptions{
		ContentType: GetContentType(originalName),
	}); err != nil {
		return model.UploadResult{}, fmt.Errorf("store blob: %w", err)
	}

	if err := s.owners.RecordUpload(ctx, userID, id); err != nil {
		if rmErr := s.blobs.RemoveObject(context.WithoutCancel(ctx), id.String()); rmErr != nil {
			s.log.Error("orphaned blob after failed ownership write",
				zap.String("file", id.String()), zap.Error(rmErr))
		}
		return model.UploadResult{}, fmt.Errorf("record ownership: %w", err)
	}

	if s.metrics != nil {
		s.metrics.UploadsTotal.Inc()
		if size > 0 {
			s.metrics.UploadBytes.Add(float64(size))
		}
	}
	s.emit(ctx, model.AuditRecordUploaded, userID, id, 0)
	return model.UploadResult{Filename: id, OriginalName: originalName}, nil
}

func (s *RecordsService) List(ctx context.Context, userID string) []model.FileID {
	return s.owners.ListFiles(userID)
}

func (s *RecordsService) Fetch(ctx context.Context, userID string, file model.FileID) (*Blob, error) {
	if !s.owners.IsOwner(userID, file) {
		return nil, ErrAccessDenied
	}
	blob, err := s.openBlob(ctx, file)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DownloadsTotal.WithLabelValues("owner").Inc()
	}
	s.emit(ctx, model.AuditRecordDownloaded, userID, file, 0)
	return blob, nil
}

// Delete removes the blob and then the ownership entry. A blob that is
// already gone does not block removing the entry; any other storage error
// leaves the ledger untouched.
func (s *RecordsService) Delete(ctx context.Context, userID string, file model.FileID) error {
	if !s.owners.IsOwner(userID, file) {
		return ErrAccessDenied
	}
	if err := s.blobs.RemoveObject(ctx, file.String()); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("remove blob: %w", err)
	}
	if _, err := s.owners.RemoveFile(ctx, userID, file); err != nil {
		return fmt.Errorf("remove ownership: %w", err)
	}

	if s.cfg.RevokeSharesOnDelete {
		if n, err := s.shares.RevokeAllForFile(ctx, userID, file); err != nil {
			s.log.Warn("revoke shares of deleted record failed", zap.String("file", file.String()), zap.Error(err))
		} else if n > 0 {
			s.emit(ctx, model.AuditShareRevoked, userID, file, n)
		}
	}

	if s.metrics != nil {
		s.metrics.DeletesTotal.Inc()
	}
	s.emit(ctx, model.AuditRecordDeleted, userID, file, 0)
	return nil
}

func (s *RecordsService) CreateShare(ctx context.Context, userID string, file model.FileID, opts ShareOptions) (ShareResult, error) {
	if !s.owners.IsOwner(userID, file) {
		return ShareResult{}, ErrAccessDenied
	}
	token, grant, err := s.shares.CreateToken(ctx, userID, file)
	if err != nil {
		return ShareResult{}, fmt.Errorf("create share: %w", err)
	}
	res := ShareResult{
		URL:       utils.ShareURL(s.baseURL(opts.RequestBaseURL), token),
		Token:     token,
		ExpiresAt: grant.ExpiresAt,
	}

	if opts.Recipient != "" && s.mailer != nil {
		res.EmailQueued = s.queueShareMail(opts.Recipient, res.URL, grant.ExpiresAt, file)
	}

	if s.metrics != nil {
		s.metrics.SharesCreatedTotal.Inc()
	}
	s.emit(ctx, model.AuditShareCreated, userID, file, 0)
	return res, nil
}

// FetchByShare opens the file a token points at. Unknown and expired tokens
// are indistinguishable to the caller.
func (s *RecordsService) FetchByShare(ctx context.Context, token string) (*Blob, error) {
	grant, err := s.shares.ResolveToken(token)
	if err != nil {
		s.countShareAccess("denied")
		return nil, ErrInvalidOrExpiredShare
	}
	blob, err := s.openBlob(ctx, grant.FileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.countShareAccess("missing")
		}
		return nil, err
	}
	s.countShareAccess("granted")
	if s.metrics != nil {
		s.metrics.DownloadsTotal.WithLabelValues("share").Inc()
	}
	s.emit(ctx, model.AuditShareAccessed, grant.OwnerID, grant.FileID, 0)
	return blob, nil
}

// RevokeShare invalidates every link to file. Revoking when none exist succeeds.
func (s *RecordsService) RevokeShare(ctx context.Context, userID string, file model.FileID) error {
	n, err := s.shares.RevokeAllForFile(ctx, userID, file)
	if err != nil {
		return fmt.Errorf("revoke shares: %w", err)
	}
	if n > 0 {
		if s.metrics != nil {
			s.metrics.SharesRevokedTotal.Inc()
		}
		s.emit(ctx, model.AuditShareRevoked, userID, file, n)
	}
	return nil
}

// SweepExpiredShares is the sweeper callback: it records what was removed.
func (s *RecordsService) SweepExpiredShares(removed int) {
	if s.metrics != nil {
		s.metrics.SharesSweptTotal.Add(float64(removed))
	}
	s.emit(context.Background(), model.AuditShareSwept, "", "", removed)
}

// queueShareMail sends the link without holding up the request. At most
// maxPendingMails sends run at once; beyond that the mail is skipped.
func (s *RecordsService) queueShareMail(to, link string, expiresAt time.Time, file model.FileID) bool {
	select {
	case s.mailSlots <- struct{}{}:
	default:
		s.log.Warn("share link email skipped: mailer busy", zap.String("file", file.String()))
		return false
	}
	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		defer func() { <-s.mailSlots }()
		if err := s.mailer.SendShareLink(to, link, expiresAt); err != nil {
			s.log.Warn("share link email failed", zap.String("file", file.String()), zap.Error(err))
		}
	}()
	return true
}

// Wait blocks until queued share emails have been attempted.
func (s *RecordsService) Wait() {
	s.mailWG.Wait()
}

func (s *RecordsService) openBlob(ctx context.Context, file model.FileID) (*Blob, error) {
	body, info, err := s.blobs.GetObject(ctx, file.String())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidObjectName) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Blob{Name: file, Body: body, Size: info.Size, ContentType: contentType}, nil
}

func (s *RecordsService) baseURL(requestBase string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return s.cfg.PublicBaseURL
	case requestBase != "":
		return requestBase
	default:
		return defaultPublicBaseURL
	}
}

func (s *RecordsService) countShareAccess(result string) {
	if s.metrics != nil {
		s.metrics.ShareAccessTotal.WithLabelValues(result).Inc()
	}
}

func (s *RecordsService) emit(ctx context.Context, action model.AuditAction, userID string, file model.FileID, count int) {
	if s.audit == nil {
		return
	}
	event := model.AuditEvent{
		ID:         uuid.NewString(),
		Action:     action,
		UserID:     userID,
		FileID:     file,
		Count:      count,
		OccurredAt: s.now().UTC(),
	}
	if err := s.audit.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.log.Warn("audit publish failed", zap.String("action", string(action)), zap.Error(err))
	}
}
