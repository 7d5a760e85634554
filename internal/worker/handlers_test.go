package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixtools/internal/jobstore"
	"pixtools/internal/tasks"
)

var errSourceNotFound = errors.New("source not found")

type handlerGateway struct {
	sources map[string][]byte
	puts    map[string][]byte
	getErr  error
}

func (g *handlerGateway) PutRaw(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}
func (g *handlerGateway) PutProcessed(ctx context.Context, key string, data []byte, contentType string) error {
	if g.puts == nil {
		g.puts = map[string][]byte{}
	}
	g.puts[key] = data
	return nil
}
func (g *handlerGateway) Get(ctx context.Context, key string) ([]byte, error) {
	if g.getErr != nil {
		return nil, g.getErr
	}
	data, ok := g.sources[key]
	if !ok {
		return nil, errSourceNotFound
	}
	return data, nil
}
func (g *handlerGateway) Sign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}
func (g *handlerGateway) Delete(ctx context.Context, key string) error { return nil }
func (g *handlerGateway) Health(ctx context.Context) error             { return nil }

func testSourcePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{10, 20, 30, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newHandlerServer(gw *handlerGateway, dispatcher *fakeTaskDispatcher) *Server {
	return &Server{
		store:      &finalizeStore{},
		objects:    gw,
		dispatcher: dispatcher,
		metrics:    newMetrics(),
		urlExpiry:  time.Hour,
	}
}

func TestHandleProcessOperation_ChainStepEnqueuesFinalizeDirectly(t *testing.T) {
	jobID := uuid.New()
	sourceKey := "raw/" + jobID.String() + "/source.png"
	gw := &handlerGateway{sources: map[string][]byte{sourceKey: testSourcePNG(t)}}
	dispatcher := &fakeTaskDispatcher{}
	s := newHandlerServer(gw, dispatcher)

	payload, err := (tasks.ProcessOperationPayload{
		JobID:     jobID.String(),
		Operation: jobstore.OpJPG,
		SourceKey: sourceKey,
		ChordSize: 1,
	}).Marshal()
	require.NoError(t, err)

	require.NoError(t, s.handleProcessOperation(context.Background(), asynq.NewTask(tasks.TypeProcessOperation, payload)))

	require.Len(t, dispatcher.finalizeResults, 1)
	assert.Equal(t, jobstore.OpJPG, dispatcher.finalizeResults[0].Operation)
	assert.NotEmpty(t, dispatcher.finalizeResults[0].ResultKey)
	assert.Len(t, gw.puts, 1)
}

func TestHandleProcessOperation_ChordStepEnqueuesFanOutResult(t *testing.T) {
	jobID := uuid.New()
	sourceKey := "raw/" + jobID.String() + "/source.png"
	gw := &handlerGateway{sources: map[string][]byte{sourceKey: testSourcePNG(t)}}
	dispatcher := &fakeTaskDispatcher{}
	s := newHandlerServer(gw, dispatcher)

	payload, err := (tasks.ProcessOperationPayload{
		JobID:     jobID.String(),
		Operation: jobstore.OpPNG,
		SourceKey: sourceKey,
		ChordSize: 2,
	}).Marshal()
	require.NoError(t, err)

	require.NoError(t, s.handleProcessOperation(context.Background(), asynq.NewTask(tasks.TypeProcessOperation, payload)))

	require.Len(t, dispatcher.fanOutResults, 1)
	assert.Equal(t, jobstore.OpPNG, dispatcher.fanOutResults[0].Operation)
	assert.Empty(t, dispatcher.finalizeResults)
}

func TestHandleProcessOperation_MetadataProducesNoArtifact(t *testing.T) {
	jobID := uuid.New()
	sourceKey := "raw/" + jobID.String() + "/source.png"
	gw := &handlerGateway{sources: map[string][]byte{sourceKey: testSourcePNG(t)}}
	dispatcher := &fakeTaskDispatcher{}
	s := newHandlerServer(gw, dispatcher)

	payload, err := (tasks.ProcessOperationPayload{
		JobID:     jobID.String(),
		Operation: jobstore.OpMetadata,
		SourceKey: sourceKey,
		ChordSize: 2,
	}).Marshal()
	require.NoError(t, err)

	require.NoError(t, s.handleProcessOperation(context.Background(), asynq.NewTask(tasks.TypeProcessOperation, payload)))

	require.Len(t, dispatcher.fanOutResults, 1)
	result := dispatcher.fanOutResults[0]
	assert.Empty(t, result.ResultKey)
	assert.NotEmpty(t, result.Metadata)
	assert.Empty(t, gw.puts)
}

func TestHandleProcessOperation_SourceFetchFailureReportsErrorKind(t *testing.T) {
	jobID := uuid.New()
	gw := &handlerGateway{getErr: errSourceNotFound}
	dispatcher := &fakeTaskDispatcher{}
	s := newHandlerServer(gw, dispatcher)

	payload, err := (tasks.ProcessOperationPayload{
		JobID:     jobID.String(),
		Operation: jobstore.OpJPG,
		SourceKey: "raw/missing/source.png",
		ChordSize: 1,
	}).Marshal()
	require.NoError(t, err)

	require.NoError(t, s.handleProcessOperation(context.Background(), asynq.NewTask(tasks.TypeProcessOperation, payload)))

	require.Len(t, dispatcher.finalizeResults, 1)
	assert.NotEmpty(t, dispatcher.finalizeResults[0].ErrorKind)
}
