package evidence

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"evidencevault/internal/blobstore"
	"evidencevault/internal/integrity"
	"evidencevault/internal/models"
	"evidencevault/internal/notify"
	"evidencevault/internal/policy"
	"evidencevault/internal/store"
)

type testEnv struct {
	svc      *Service
	store    *store.Store
	blobs    *flakyBlobStore
	blobRoot string
	notices  *recordingPublisher
}

// flakyBlobStore wraps LocalStore and fails on demand.
type flakyBlobStore struct {
	*blobstore.LocalStore
	mu         sync.Mutex
	failPut    error
	failDelete error
	failOpen   error
	// breakRead makes opened streams fail after breakAfter bytes.
	breakRead  error
	breakAfter int
}

func (f *flakyBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	openErr, readErr, after := f.failOpen, f.breakRead, f.breakAfter
	f.mu.Unlock()
	if openErr != nil {
		return nil, openErr
	}
	rc, err := f.LocalStore.Open(ctx, key)
	if err != nil || readErr == nil {
		return rc, err
	}
	return &brokenReader{rc: rc, remaining: after, err: readErr}, nil
}

type brokenReader struct {
	rc        io.ReadCloser
	remaining int
	err       error
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, b.err
	}
	if len(p) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= n
	return n, err
}

func (b *brokenReader) Close() error { return b.rc.Close() }

func (f *flakyBlobStore) Put(ctx context.Context, r io.Reader) (blobstore.BlobPutResult, error) {
	f.mu.Lock()
	err := f.failPut
	f.mu.Unlock()
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
		return blobstore.BlobPutResult{}, err
	}
	return f.LocalStore.Put(ctx, r)
}

func (f *flakyBlobStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	err := f.failDelete
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.LocalStore.Delete(ctx, key)
}

type recordingPublisher struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (p *recordingPublisher) Publish(_ context.Context, n notify.Notice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, n)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) actions() []models.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Action, 0, len(p.notices))
	for _, n := range p.notices {
		out = append(out, n.Action)
	}
	return out
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "evidence.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	root := t.TempDir()
	local, err := blobstore.NewLocalStore(root)
	require.NoError(t, err)
	blobs := &flakyBlobStore{LocalStore: local}

	hasher, err := integrity.NewHasher(integrity.SHA256)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	opts = append([]Option{WithPublisher(pub)}, opts...)
	return &testEnv{
		svc:      NewService(st, blobs, hasher, opts...),
		store:    st,
		blobs:    blobs,
		blobRoot: root,
		notices:  pub,
	}
}

var (
	uploader = Actor{ID: "u1", Role: "UPLOADER", Origin: "10.0.0.1"}
	viewer   = Actor{ID: "v1", Role: "VIEWER", Origin: "10.0.0.2"}
	admin    = Actor{ID: "a1", Role: "ADMIN", Origin: "10.0.0.3"}
	service  = Actor{ID: "svc", Role: "SERVICE"}
)

func (e *testEnv) upload(t *testing.T, content []byte) string {
	t.Helper()
	id, err := e.svc.Store(context.Background(), StoreInput{
		CaseID:   "C1",
		Filename: "scene.bin",
		Content:  bytes.NewReader(content),
	}, uploader)
	require.NoError(t, err)
	return id
}

func (e *testEnv) trail(t *testing.T, id string) []models.CustodyEvent {
	t.Helper()
	item, err := e.svc.GetWithCustody(context.Background(), id)
	require.NoError(t, err)
	return item.CustodyTrail
}

func (e *testEnv) countActions(t *testing.T, id string, action models.Action) int {
	t.Helper()
	n := 0
	for _, ev := range e.trail(t, id) {
		if ev.Action == action {
			n++
		}
	}
	return n
}

func readAll(t *testing.T, d *Download) ([]byte, error) {
	t.Helper()
	defer d.Reader.Close()
	return io.ReadAll(d.Reader)
}

func TestCustodyScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	content := []byte("0123456789")

	id := env.upload(t, content)
	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, item.LifecycleStatus)
	assert.Equal(t, int64(10), item.FileSizeBytes)
	assert.Equal(t, "C1", item.CaseID)
	trail := env.trail(t, id)
	require.Len(t, trail, 1)
	assert.Equal(t, models.ActionUpload, trail[0].Action)
	assert.Equal(t, "u1", trail[0].ActorID)
	assert.Equal(t, "10.0.0.1", trail[0].ClientOrigin)

	dl, err := env.svc.Retrieve(ctx, id, "review", viewer)
	require.NoError(t, err)
	got, err := readAll(t, dl)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Len(t, env.trail(t, id), 2)

	_, err = env.svc.Delete(ctx, id, "test", viewer)
	require.ErrorIs(t, err, ErrForbidden)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, policy.CodeRoleNotPermitted, denied.Code)
	trail = env.trail(t, id)
	require.Len(t, trail, 3)
	assert.Equal(t, models.ActionDeleteDenied, trail[2].Action)
	assert.Equal(t, models.OutcomeDenied, trail[2].Outcome)

	item, err = env.svc.Get(ctx, id)
	require.NoError(t, err)
	rc, err := env.blobs.Open(ctx, item.StorageKey)
	require.NoError(t, err, "blob must survive a denied delete")
	rc.Close()

	ok, err := env.svc.Delete(ctx, id, "chain of custody error", admin)
	require.NoError(t, err)
	assert.True(t, ok)
	item, err = env.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, item.LifecycleStatus)
	assert.True(t, item.IsPurged())
	trail = env.trail(t, id)
	require.Len(t, trail, 4)
	assert.Equal(t, models.ActionDelete, trail[3].Action)
	assert.Equal(t, "chain of custody error", trail[3].Reason)

	_, err = env.svc.Retrieve(ctx, id, "", admin)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.svc.Retrieve(ctx, id, "", viewer)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, env.trail(t, id), 4)

	report, err := env.svc.VerifyCustody(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 4, report.Events)

	assert.Equal(t,
		[]models.Action{models.ActionUpload, models.ActionDownload, models.ActionDeleteDenied, models.ActionDelete},
		env.notices.actions())
}

func TestRetrieveReturnsStoredDigest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	content := bytes.Repeat([]byte("evidence-"), 20000)

	id := env.upload(t, content)
	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)

	hasher, _ := integrity.NewHasher(integrity.SHA256)
	want, _, err := hasher.Digest(bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, want, item.ContentHash)
	assert.Equal(t, string(integrity.SHA256), item.HashAlgorithm)

	dl, err := env.svc.Retrieve(ctx, id, "", viewer)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), dl.Length)
	got, err := readAll(t, dl)
	require.NoError(t, err)
	sum, _, err := hasher.Digest(bytes.NewReader(got))
	require.NoError(t, err)
	assert.Equal(t, want, sum)
}

func TestDeleteTwiceRecordsOneDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))

	ok, err := env.svc.Delete(ctx, id, "duplicate upload", admin)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.Delete(ctx, id, "duplicate upload", admin)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, env.countActions(t, id, models.ActionDelete))
}

func TestConcurrentDeleteHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := env.svc.Delete(ctx, id, "race", admin)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, env.countActions(t, id, models.ActionDelete))
}

func TestDeleteMissingItem(t *testing.T) {
	env := newTestEnv(t)
	ok, err := env.svc.Delete(context.Background(), "nope", "reason", admin)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))

	_, err := env.svc.Delete(ctx, id, "   ", admin)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, policy.CodeReasonRequired, denied.Code)

	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, item.LifecycleStatus)
	assert.False(t, item.IsPurged())
	assert.Equal(t, 1, env.countActions(t, id, models.ActionDeleteDenied))
}

func TestDownloadDeniedForUnknownRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))

	_, err := env.svc.Retrieve(ctx, id, "", Actor{ID: "x", Role: "JANITOR"})
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, policy.CodeUnknownRole, denied.Code)

	trail := env.trail(t, id)
	require.Len(t, trail, 2)
	assert.Equal(t, models.ActionDownloadDenied, trail[1].Action)
	assert.Equal(t, "UNKNOWN_ROLE", trail[1].Reason)
}

func TestDeletedItemDownloadDeniedForViewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))

	// Leave the bytes in place so the tombstone is still pending purge.
	env.blobs.failDelete = errors.New("bucket offline")
	ok, err := env.svc.Delete(ctx, id, "wrong case", admin)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.svc.Retrieve(ctx, id, "", viewer)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, policy.CodeItemDeleted, denied.Code)

	_, err = env.svc.Retrieve(ctx, id, "", admin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIntegrityViolationOnTamperedBlob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))
	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)

	path := filepath.Join(env.blobRoot, filepath.FromSlash(item.StorageKey))
	require.NoError(t, os.WriteFile(path, []byte("0123456780"), 0o600))

	dl, err := env.svc.Retrieve(ctx, id, "", viewer)
	require.NoError(t, err)
	_, err = readAll(t, dl)
	require.ErrorIs(t, err, ErrIntegrityViolation)
	assert.NotErrorIs(t, err, ErrStorageFailure)

	trail := env.trail(t, id)
	require.Len(t, trail, 3)
	assert.Equal(t, models.ActionDownload, trail[1].Action)
	assert.Equal(t, models.ActionIntegrityViolation, trail[2].Action)
	assert.Equal(t, models.OutcomeFailed, trail[2].Outcome)
}

func TestStoreBlobFailureLeavesItemWithoutKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.blobs.failPut = errors.New("disk full")

	id, err := env.svc.Store(ctx, StoreInput{CaseID: "C1", Filename: "a.bin", Content: bytes.NewReader([]byte("data"))}, uploader)
	require.ErrorIs(t, err, ErrStorageFailure)
	require.NotEmpty(t, id)

	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, item.IsPurged())
	assert.Equal(t, models.StatusUploaded, item.LifecycleStatus)

	trail := env.trail(t, id)
	require.Len(t, trail, 1)
	assert.Equal(t, models.ActionUpload, trail[0].Action)
	assert.Equal(t, models.OutcomeFailed, trail[0].Outcome)
	assert.Contains(t, trail[0].Reason, "disk full")

	_, err = env.svc.Retrieve(ctx, id, "", viewer)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Store(ctx, StoreInput{CaseID: "C1", Content: bytes.NewReader(nil)}, uploader)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.Store(ctx, StoreInput{CaseID: " ", Content: bytes.NewReader([]byte("x"))}, uploader)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.Store(ctx, StoreInput{CaseID: "C1", Content: bytes.NewReader([]byte("x"))}, Actor{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	items, err := env.svc.FindByCase(ctx, "C1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStoreUploadPolicy(t *testing.T) {
	env := newTestEnv(t, WithUploadPolicy(true))
	_, err := env.svc.Store(context.Background(), StoreInput{CaseID: "C1", Content: bytes.NewReader([]byte("x"))}, viewer)
	assert.ErrorIs(t, err, ErrForbidden)

	id := env.upload(t, []byte("x"))
	assert.NotEmpty(t, id)
}

func TestStoreDetectsImageMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	img := image.NewRGBA(image.Rect(0, 0, 7, 5))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	id, err := env.svc.Store(ctx, StoreInput{
		CaseID:      "C2",
		Filename:    "../../etc/photo.png",
		ContentType: "application/octet-stream",
		Content:     &buf,
	}, uploader)
	require.NoError(t, err)

	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "image/png", item.ContentType)
	assert.Equal(t, 7, item.Width)
	assert.Equal(t, 5, item.Height)
	assert.Equal(t, "photo.png", item.OriginalFilename)
}

func TestStoreDetectsForensicImageFormats(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 9, 4))
	img.Set(2, 2, color.RGBA{G: 255, A: 255})

	tests := []struct {
		name        string
		encode      func(io.Writer, image.Image) error
		contentType string
	}{
		{name: "tiff", encode: func(w io.Writer, m image.Image) error { return tiff.Encode(w, m, nil) }, contentType: "image/tiff"},
		{name: "bmp", encode: bmp.Encode, contentType: "image/bmp"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			var buf bytes.Buffer
			require.NoError(t, tc.encode(&buf, img))

			id, err := env.svc.Store(ctx, StoreInput{CaseID: "C3", Filename: "frame." + tc.name, Content: &buf}, uploader)
			require.NoError(t, err)

			item, err := env.svc.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 9, item.Width)
			assert.Equal(t, 4, item.Height)
			assert.Equal(t, tc.contentType, item.ContentType)
		})
	}
}

func TestUpdateAnalysisStatusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))

	ok, err := env.svc.UpdateAnalysisStatus(ctx, id, "analysis-complete", service)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.UpdateAnalysisStatus(ctx, id, "ANALYSIS_COMPLETE", service)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = env.svc.UpdateAnalysisStatus(ctx, id, "UPLOADED", service)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.svc.UpdateAnalysisStatus(ctx, id, "ARCHIVED", service)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.svc.UpdateAnalysisStatus(ctx, id, "DELETED", service)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalysisComplete, item.LifecycleStatus)
	assert.Equal(t, 2, env.countActions(t, id, models.ActionStatusUpdate))

	ok, err = env.svc.UpdateAnalysisStatus(ctx, "missing", "ANALYSIS_COMPLETE", service)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateAnalysisStatusOutOfDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))
	_, err := env.svc.Delete(ctx, id, "wrong case", admin)
	require.NoError(t, err)

	for _, status := range []string{"UPLOADED", "ANALYSIS_IN_PROGRESS", "ANALYSIS_COMPLETE"} {
		_, err := env.svc.UpdateAnalysisStatus(ctx, id, status, service)
		assert.ErrorIs(t, err, ErrInvalidTransition, status)
	}

	ok, err := env.svc.UpdateAnalysisStatus(ctx, id, "DELETED", service)
	require.NoError(t, err)
	assert.True(t, ok)

	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, item.LifecycleStatus)
}

func TestUpdateAnalysisStatusRefusesDeletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))

	ok, err := env.svc.UpdateAnalysisStatus(ctx, id, "DELETED", service)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, ok)

	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, item.LifecycleStatus)
	assert.Equal(t, 0, env.countActions(t, id, models.ActionStatusUpdate))
}

func TestUpdateAnalysisStatusDeniedForViewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))

	_, err := env.svc.UpdateAnalysisStatus(ctx, id, "ANALYSIS_IN_PROGRESS", viewer)
	require.ErrorIs(t, err, ErrForbidden)

	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, item.LifecycleStatus)

	trail := env.trail(t, id)
	require.Len(t, trail, 2)
	assert.Equal(t, models.ActionStatusUpdate, trail[1].Action)
	assert.Equal(t, models.OutcomeDenied, trail[1].Outcome)
}

func TestSweepPurgesRetriesFailedBlobDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))

	env.blobs.failDelete = errors.New("bucket offline")
	ok, err := env.svc.Delete(ctx, id, "wrong case", admin)
	require.NoError(t, err)
	require.True(t, ok)

	item, err := env.svc.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, item.IsPurged())

	dry, err := env.svc.SweepPurges(ctx, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, dry.CandidateCount)
	assert.True(t, dry.DryRun)
	assert.Equal(t, int64(10), dry.ReclaimedBytes)

	res, err := env.svc.SweepPurges(ctx, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedCount)

	env.blobs.failDelete = nil
	res, err = env.svc.SweepPurges(ctx, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PurgedCount)

	item, err = env.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, item.IsPurged())

	res, err = env.svc.SweepPurges(ctx, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 0, res.CandidateCount)
	assert.Equal(t, 1, env.countActions(t, id, models.ActionDelete))
}

func TestCustodyTrailPagesAndMissingItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.upload(t, []byte("0123456789"))
	for i := 0; i < 3; i++ {
		dl, err := env.svc.Retrieve(ctx, id, "", viewer)
		require.NoError(t, err)
		_, err = readAll(t, dl)
		require.NoError(t, err)
	}

	page, err := env.svc.CustodyTrail(ctx, id, 0, 3)
	require.NoError(t, err)
	assert.Len(t, page.Events, 3)
	assert.True(t, page.HasMore)

	_, err = env.svc.CustodyTrail(ctx, "missing", 0, 10)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.svc.VerifyCustody(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetrieveOpenFailureIsStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	id := env.upload(t, []byte("0123456789"))

	env.blobs.mu.Lock()
	env.blobs.failOpen = errors.New("disk gone")
	env.blobs.mu.Unlock()

	_, err := env.svc.Retrieve(context.Background(), id, "court review", viewer)
	require.ErrorIs(t, err, ErrStorageFailure)
	assert.NotErrorIs(t, err, ErrNotFound)

	trail := env.trail(t, id)
	require.Len(t, trail, 2)
	last := trail[1]
	assert.Equal(t, models.ActionDownload, last.Action)
	assert.Equal(t, models.OutcomeFailed, last.Outcome)
	assert.Contains(t, last.Reason, "court review")
	assert.Contains(t, last.Reason, "disk gone")
	assert.Equal(t, 0, env.countActions(t, id, models.ActionIntegrityViolation))
}

func TestRetrieveMidStreamErrorIsStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	id := env.upload(t, []byte("0123456789"))

	env.blobs.mu.Lock()
	env.blobs.breakRead = errors.New("connection reset")
	env.blobs.breakAfter = 4
	env.blobs.mu.Unlock()

	dl, err := env.svc.Retrieve(context.Background(), id, "", viewer)
	require.NoError(t, err)

	data, err := readAll(t, dl)
	require.ErrorIs(t, err, ErrStorageFailure)
	assert.NotErrorIs(t, err, ErrIntegrityViolation)
	assert.Equal(t, []byte("0123"), data)
	assert.Equal(t, 0, env.countActions(t, id, models.ActionIntegrityViolation))
	assert.Equal(t, 1, env.countActions(t, id, models.ActionDownload))
}
