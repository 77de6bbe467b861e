package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CareVault/internal/ledger"
	"CareVault/internal/metrics"
	"CareVault/internal/repo"
	"CareVault/internal/service"
	"CareVault/internal/storage"
	"CareVault/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingDocs struct {
	repo.DocumentStore
	fail atomic.Bool
}

func (d *failingDocs) Save(ctx context.Context, name string, data []byte) error {
	if d.fail.Load() {
		return errors.New("ledger unavailable")
	}
	return d.DocumentStore.Save(ctx, name, data)
}

// brokenRemoveStore fails deletes with a non-NotFound error.
type brokenRemoveStore struct {
	storage.Store
	removeErr error
}

func (b *brokenRemoveStore) RemoveObject(ctx context.Context, name string) error {
	if b.removeErr != nil {
		return b.removeErr
	}
	return b.Store.RemoveObject(ctx, name)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (a *recordingAudit) Publish(_ context.Context, e model.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *recordingAudit) actions() []model.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.AuditAction, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

type fakeMailer struct {
	mu       sync.Mutex
	to, link string
	sent     int
	err      error
	block    chan struct{}
}

func (m *fakeMailer) SendShareLink(to, link string, _ time.Time) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to, m.link = to, link
	m.sent++
	return m.err
}

func (m *fakeMailer) last() (string, string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.to, m.link, m.sent
}

type fixture struct {
	svc     *service.RecordsService
	clock   *clock
	docs    *failingDocs
	blobs   *brokenRemoveStore
	blobFs  afero.Fs
	owners  *ledger.OwnershipLedger
	shares  *ledger.ShareLedger
	audit   *recordingAudit
	mailer  *fakeMailer
	metrics *metrics.Collector
}

func newFixture(t *testing.T, cfg service.RecordsConfig) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)}
	docs := &failingDocs{DocumentStore: repo.NewFileDocumentStoreFs(afero.NewMemMapFs())}
	blobFs := afero.NewMemMapFs()
	local, err := storage.NewLocalStoreFs(blobFs)
	require.NoError(t, err)
	blobs := &brokenRemoveStore{Store: local}

	owners := ledger.NewOwnershipLedger(docs)
	shares := ledger.NewShareLedger(docs, ledger.WithClock(c.Now))
	f := &fixture{
		clock:   c,
		docs:    docs,
		blobs:   blobs,
		blobFs:  blobFs,
		owners:  owners,
		shares:  shares,
		audit:   &recordingAudit{},
		mailer:  &fakeMailer{},
		metrics: metrics.NewCollector("test"),
	}
	f.svc = service.NewRecordsService(service.Deps{
		Owners:  owners,
		Shares:  shares,
		Blobs:   blobs,
		Audit:   f.audit,
		Mailer:  f.mailer,
		Metrics: f.metrics,
		Config:  cfg,
		Now:     c.Now,
	})
	return f
}

func (f *fixture) upload(t *testing.T, userID, name, body string) model.FileID {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), userID, strings.NewReader(body), int64(len(body)), name)
	require.NoError(t, err)
	return res.Filename
}

func readBlob(t *testing.T, b *service.Blob) string {
	t.Helper()
	defer b.Body.Close()
	data, err := io.ReadAll(b.Body)
	require.NoError(t, err)
	return string(data)
}

func TestUpload_ListAndOwnership(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, "alice", strings.NewReader("blood panel"), 11, "labs.pdf")
	require.NoError(t, err)

	assert.Equal(t, "labs.pdf", res.OriginalName)
	assert.NotEqual(t, model.FileID("labs.pdf"), res.Filename)
	assert.Contains(t, f.svc.List(ctx, "alice"), res.Filename)
	assert.True(t, f.owners.IsOwner("alice", res.Filename))
	assert.Empty(t, f.svc.List(ctx, "bob"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UploadsTotal))
}

func TestUpload_KeepsUploadOrder(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	a := f.upload(t, "alice", "a.txt", "a")
	b := f.upload(t, "alice", "b.txt", "b")
	c := f.upload(t, "alice", "c.txt", "c")

	assert.Equal(t, []model.FileID{a, b, c}, f.svc.List(context.Background(), "alice"))
}

func TestUpload_NoFile(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	_, err := f.svc.Upload(context.Background(), "alice", nil, 0, "")
	assert.ErrorIs(t, err, service.ErrNoFileProvided)
}

func TestUpload_OwnershipFailureRemovesBlob(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	f.docs.fail.Store(true)

	_, err := f.svc.Upload(context.Background(), "alice", strings.NewReader("x"), 1, "x.txt")
	require.Error(t, err)

	assert.Empty(t, f.svc.List(context.Background(), "alice"))
	assert.Empty(t, f.audit.actions())

	entries, err := afero.ReadDir(f.blobFs, ".")
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsDir(), "unexpected blob %s", e.Name())
	}
	meta, err := afero.ReadDir(f.blobFs, ".meta")
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestFetch_RoundTripAndContentType(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	id := f.upload(t, "alice", "scan.png", "\x89PNG...")

	blob, err := f.svc.Fetch(context.Background(), "alice", id)
	require.NoError(t, err)
	assert.Equal(t, "image/png", blob.ContentType)
	assert.Equal(t, int64(7), blob.Size)
	assert.Equal(t, "\x89PNG...", readBlob(t, blob))
}

func TestFetch_OtherUserDenied(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	id := f.upload(t, "alice", "a.txt", "secret")

	_, err := f.svc.Fetch(context.Background(), "mallory", id)
	assert.ErrorIs(t, err, service.ErrAccessDenied)
}

func TestFetch_MissingBlobIsNotFound(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	id := f.upload(t, "alice", "a.txt", "x")
	require.NoError(t, f.blobs.Store.RemoveObject(context.Background(), id.String()))

	_, err := f.svc.Fetch(context.Background(), "alice", id)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	ctx := context.Background()
	id := f.upload(t, "alice", "a.txt", "x")

	require.ErrorIs(t, f.svc.Delete(ctx, "mallory", id), service.ErrAccessDenied)
	require.NoError(t, f.svc.Delete(ctx, "alice", id))

	assert.False(t, f.owners.IsOwner("alice", id))
	ok, err := f.blobs.ObjectExists(ctx, id.String())
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, f.svc.Delete(ctx, "alice", id), service.ErrAccessDenied)
}

func TestDelete_BlobAlreadyGone(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	ctx := context.Background()
	id := f.upload(t, "alice", "a.txt", "x")
	require.NoError(t, f.blobs.Store.RemoveObject(ctx, id.String()))

	require.NoError(t, f.svc.Delete(ctx, "alice", id))
	assert.False(t, f.owners.IsOwner("alice", id))
}

func TestDelete_StorageFailureKeepsOwnership(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	ctx := context.Background()
	id := f.upload(t, "alice", "a.txt", "x")
	f.blobs.removeErr = errors.New("bucket offline")

	err := f.svc.Delete(ctx, "alice", id)
	require.Error(t, err)
	assert.True(t, f.owners.IsOwner("alice", id))
}

func TestDelete_NotFoundErrorFromStoreStillRemovesEntry(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	ctx := context.Background()
	id := f.upload(t, "alice", "a.txt", "x")
	f.blobs.removeErr = storage.ErrObjectNotFound

	require.NoError(t, f.svc.Delete(ctx, "alice", id))
	assert.False(t, f.owners.IsOwner("alice", id))
}

func TestCreateShare(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	ctx := context.Background()
	id := f.upload(t, "alice", "a.txt", "hello")

	_, err := f.svc.CreateShare(ctx, "mallory", id, service.ShareOptions{})
	require.ErrorIs(t, err, service.ErrAccessDenied)

	res, err := f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{})
	require.NoError(t, err)
	assert.Regexp(t, `^http://localhost:5000/api/share/[0-9a-f]{48}$`, res.URL)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), res.ExpiresAt)
	assert.False(t, res.EmailQueued)

	blob, err := f.svc.FetchByShare(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, "hello", readBlob(t, blob))
}

func TestCreateShare_BaseURL(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, service.RecordsConfig{})
	id := f.upload(t, "alice", "a.txt", "x")
	res, err := f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{RequestBaseURL: "https://vault.test"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.URL, "https://vault.test/api/share/"))

	f = newFixture(t, service.RecordsConfig{PublicBaseURL: "https://records.example.org/"})
	id = f.upload(t, "alice", "a.txt", "x")
	res, err = f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{RequestBaseURL: "https://vault.test"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.URL, "https://records.example.org/api/share/"))
}

func TestCreateShare_Email(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	ctx := context.Background()
	id := f.upload(t, "alice", "a.txt", "x")

	res, err := f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{Recipient: "dr.lee@clinic.test"})
	require.NoError(t, err)
	assert.True(t, res.EmailQueued)
	f.svc.Wait()
	to, link, sent := f.mailer.last()
	assert.Equal(t, "dr.lee@clinic.test", to)
	assert.Equal(t, res.URL, link)
	assert.Equal(t, 1, sent)

	f.mailer.mu.Lock()
	f.mailer.err = errors.New("smtp down")
	f.mailer.mu.Unlock()
	res, err = f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{Recipient: "dr.lee@clinic.test"})
	require.NoError(t, err, "mail failure must not fail the share")
	f.svc.Wait()
	_, link, sent = f.mailer.last()
	assert.Equal(t, res.URL, link)
	assert.Equal(t, 2, sent)
}

func TestCreateShare_SlowMailerDoesNotBlock(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	f.mailer.block = make(chan struct{})
	ctx := context.Background()
	id := f.upload(t, "alice", "a.txt", "x")

	start := time.Now()
	queued := 0
	for i := 0; i < 10; i++ {
		res, err := f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{Recipient: "dr.lee@clinic.test"})
		require.NoError(t, err)
		if res.EmailQueued {
			queued++
		}
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 8, queued, "sends beyond the in-flight cap are skipped")
	assert.Equal(t, 10, f.shares.Len())

	close(f.mailer.block)
	f.svc.Wait()
	_, _, sent := f.mailer.last()
	assert.Equal(t, 8, sent)
}

func TestFetchByShare_ExpiryWindow(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	ctx := context.Background()
	id := f.upload(t, "alice", "a.txt", "x")
	res, err := f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{})
	require.NoError(t, err)

	f.clock.Advance(23*time.Hour + 59*time.Minute)
	blob, err := f.svc.FetchByShare(ctx, res.Token)
	require.NoError(t, err)
	blob.Body.Close()

	f.clock.Advance(2 * time.Minute)
	_, err = f.svc.FetchByShare(ctx, res.Token)
	assert.ErrorIs(t, err, service.ErrInvalidOrExpiredShare)
}

func TestFetchByShare_UnknownToken(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	_, err := f.svc.FetchByShare(context.Background(), strings.Repeat("ab", 24))
	assert.ErrorIs(t, err, service.ErrInvalidOrExpiredShare)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ShareAccessTotal.WithLabelValues("denied")))
}

func TestRevokeShare_InvalidatesAllLinks(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	ctx := context.Background()
	id := f.upload(t, "alice", "a.txt", "x")
	first, err := f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{})
	require.NoError(t, err)
	second, err := f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{})
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeShare(ctx, "alice", id))

	for _, tok := range []string{first.Token, second.Token} {
		_, err := f.svc.FetchByShare(ctx, tok)
		assert.ErrorIs(t, err, service.ErrInvalidOrExpiredShare)
	}
	assert.NoError(t, f.svc.RevokeShare(ctx, "alice", id), "revoking again succeeds")
}

func TestFetchByShare_AfterDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("links outlive the record", func(t *testing.T) {
		f := newFixture(t, service.RecordsConfig{})
		id := f.upload(t, "alice", "a.txt", "x")
		res, err := f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{})
		require.NoError(t, err)
		require.NoError(t, f.svc.Delete(ctx, "alice", id))

		_, err = f.svc.FetchByShare(ctx, res.Token)
		assert.ErrorIs(t, err, service.ErrNotFound)
		assert.Equal(t, 1, f.shares.Len())
	})

	t.Run("cascade revoke", func(t *testing.T) {
		f := newFixture(t, service.RecordsConfig{RevokeSharesOnDelete: true})
		id := f.upload(t, "alice", "a.txt", "x")
		res, err := f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{})
		require.NoError(t, err)
		require.NoError(t, f.svc.Delete(ctx, "alice", id))

		_, err = f.svc.FetchByShare(ctx, res.Token)
		assert.ErrorIs(t, err, service.ErrInvalidOrExpiredShare)
		assert.Zero(t, f.shares.Len())
	})
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	ctx := context.Background()
	id := f.upload(t, "alice", "a.txt", "x")

	blob, err := f.svc.Fetch(ctx, "alice", id)
	require.NoError(t, err)
	blob.Body.Close()
	res, err := f.svc.CreateShare(ctx, "alice", id, service.ShareOptions{})
	require.NoError(t, err)
	blob, err = f.svc.FetchByShare(ctx, res.Token)
	require.NoError(t, err)
	blob.Body.Close()
	require.NoError(t, f.svc.RevokeShare(ctx, "alice", id))
	require.NoError(t, f.svc.Delete(ctx, "alice", id))
	f.svc.SweepExpiredShares(3)

	assert.Equal(t, []model.AuditAction{
		model.AuditRecordUploaded,
		model.AuditRecordDownloaded,
		model.AuditShareCreated,
		model.AuditShareAccessed,
		model.AuditShareRevoked,
		model.AuditRecordDeleted,
		model.AuditShareSwept,
	}, f.audit.actions())

	for _, e := range f.audit.events {
		assert.NotEmpty(t, e.ID)
	}
}

func TestConcurrentUploads(t *testing.T) {
	f := newFixture(t, service.RecordsConfig{})
	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Upload(context.Background(), "alice", bytes.NewReader([]byte("x")), 1, "x.txt")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.svc.List(context.Background(), "alice"), n)
}
