package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixtools/internal/config"
	"pixtools/internal/dag"
	"pixtools/internal/idempotency"
	"pixtools/internal/jobstore"
)

type fakeStore struct {
	created []*jobstore.Job
	createErr error
}

func (f *fakeStore) Create(ctx context.Context, job *jobstore.Job) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, job)
	return nil
}
func (f *fakeStore) Get(ctx context.Context, id uuid.UUID) (*jobstore.Job, error) {
	return nil, jobstore.ErrNotFound
}
func (f *fakeStore) Transition(ctx context.Context, id uuid.UUID, status jobstore.Status) error {
	return nil
}
func (f *fakeStore) RecordResult(ctx context.Context, id uuid.UUID, tag jobstore.OperationTag, key string) error {
	return nil
}
func (f *fakeStore) RecordMetadata(ctx context.Context, id uuid.UUID, metadata jobstore.Metadata) error {
	return nil
}
func (f *fakeStore) Finalize(ctx context.Context, id uuid.UUID, status jobstore.Status, jobErr *string) error {
	return nil
}
func (f *fakeStore) MarkWebhookOutcome(ctx context.Context, id uuid.UUID, status jobstore.Status, jobErr *string) error {
	return nil
}
func (f *fakeStore) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error { return nil }
func (f *fakeStore) IncrementRetry(ctx context.Context, id uuid.UUID) error            { return nil }
func (f *fakeStore) PruneBefore(ctx context.Context, cutoff time.Time) ([]jobstore.PrunedJob, error) {
	return nil, nil
}

type fakeGateway struct {
	putRawErr error
	puts      map[string][]byte
}

func (f *fakeGateway) PutRaw(ctx context.Context, key string, data []byte, contentType string) error {
	if f.putRawErr != nil {
		return f.putRawErr
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = data
	return nil
}
func (f *fakeGateway) PutProcessed(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}
func (f *fakeGateway) Get(ctx context.Context, key string) ([]byte, error) { return nil, nil }
func (f *fakeGateway) Sign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}
func (f *fakeGateway) Delete(ctx context.Context, key string) error { return nil }
func (f *fakeGateway) Health(ctx context.Context) error             { return nil }

type fakeDispatcher struct {
	dispatched []dag.Plan
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, plan dag.Plan, sourceKey, correlationID string) error {
	f.dispatched = append(f.dispatched, plan)
	return nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newMultipartRequest(t *testing.T, fields map[string]string, fileBytes []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", "source.png")
	require.NoError(t, err)
	_, err = part.Write(fileBytes)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/process", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func newTestHandler() (*SubmitHandler, *fakeStore, *fakeGateway, *fakeDispatcher) {
	store := &fakeStore{}
	gw := &fakeGateway{}
	dispatcher := &fakeDispatcher{}
	// Points at a closed port: every call fails to dial, exercising the
	// fail-open path rather than a real Redis round trip.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	idemp := idempotency.New(rdb, time.Hour)
	cfg := &config.Config{MaxUploadBytes: 10 * 1024 * 1024}
	return NewSubmitHandler(store, gw, dispatcher, idemp, cfg), store, gw, dispatcher
}

func TestSubmitHandler_AcceptsWellFormedChainJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, store, gw, dispatcher := newTestHandler()
	_ = gw

	ops, _ := json.Marshal(jobstore.OperationList{jobstore.OpJPG})
	req := newMultipartRequest(t, map[string]string{"operations": string(ops)}, testPNG(t))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Handle(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, store.created, 1)
	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, dag.KindChain, dispatcher.dispatched[0].Kind)
}

func TestSubmitHandler_RejectsSameFormatConversion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, store, _, dispatcher := newTestHandler()

	ops, _ := json.Marshal(jobstore.OperationList{jobstore.OpPNG})
	req := newMultipartRequest(t, map[string]string{"operations": string(ops)}, testPNG(t))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Handle(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, store.created)
	assert.Empty(t, dispatcher.dispatched)
}

func TestSubmitHandler_RejectsOversizeFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, _, _ := newTestHandler()
	h.maxUpload = 8

	ops, _ := json.Marshal(jobstore.OperationList{jobstore.OpJPG})
	req := newMultipartRequest(t, map[string]string{"operations": string(ops)}, testPNG(t))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Handle(c)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

// With Redis unreachable, the idempotency cache fails open: an
// Idempotency-Key header must not block submission even when the cache
// itself cannot be reached (spec §7's CacheError → treated as miss).
func TestSubmitHandler_SucceedsWhenIdempotencyCacheUnreachable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, store, _, dispatcher := newTestHandler()

	ops, _ := json.Marshal(jobstore.OperationList{jobstore.OpDenoise, jobstore.OpMetadata})

	req := newMultipartRequest(t, map[string]string{"operations": string(ops)}, testPNG(t))
	req.Header.Set("Idempotency-Key", "dup-key")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	h.Handle(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, store.created, 1)
	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, dag.KindChord, dispatcher.dispatched[0].Kind)
}
