package visuals

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lessonforge-backend/internal/clients/huggingface"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

type fakeImages struct {
	mu         sync.Mutex
	configured bool
	calls      []string
	respond    func(model string) ([]byte, string, error)
}

func (f *fakeImages) Configured() bool { return f.configured }

func (f *fakeImages) Infer(_ context.Context, model, _ string) ([]byte, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, model)
	f.mu.Unlock()
	return f.respond(model)
}

type fakeText struct {
	calls   int
	text    string
	err     error
	timeout time.Duration
}

func (f *fakeText) GenerateOnce(_ context.Context, _ string, timeout time.Duration) (string, error) {
	f.calls++
	f.timeout = timeout
	return f.text, f.err
}

type fakeAssets struct {
	keys []string
	err  error
}

func (f *fakeAssets) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example.com/" + key, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateEvery = time.Millisecond
	cfg.RateBurst = 10
	return cfg
}

func notFound(string) ([]byte, string, error) {
	return nil, "", &huggingface.HTTPError{StatusCode: 404, Body: "not found"}
}

func TestGenerateCodeKindSkipsBackends(t *testing.T) {
	images := &fakeImages{configured: true, respond: notFound}
	text := &fakeText{text: "unused"}
	g := NewGenerator(logger.NewNop(), testConfig(), text, images, nil)

	res := g.Generate(context.Background(), "a snippet", KindCode)
	assert.Equal(t, "", res.Asset)
	assert.Equal(t, SourceNone, res.Source)
	assert.Empty(t, images.calls)
	assert.Equal(t, 0, text.calls)
}

func TestGenerateFallsThroughCandidatesInOrder(t *testing.T) {
	images := &fakeImages{configured: true, respond: func(model string) ([]byte, string, error) {
		if model == ModelSDXL {
			return nil, "", &huggingface.HTTPError{StatusCode: 503}
		}
		return []byte{0xff, 0xd8}, "", nil
	}}
	g := NewGenerator(logger.NewNop(), testConfig(), &fakeText{}, images, nil)

	res := g.Generate(context.Background(), "a volcano", KindImage)
	require.Equal(t, SourceImage, res.Source)
	assert.Equal(t, ModelSD15, res.Model)
	assert.Equal(t, []string{ModelSDXL, ModelSD15}, images.calls)
	assert.True(t, strings.HasPrefix(res.Asset, "data:image/jpeg;base64,"), res.Asset)
}

func TestGenerateDiagramUsesSDXLOnly(t *testing.T) {
	images := &fakeImages{configured: true, respond: notFound}
	text := &fakeText{text: "  A labelled diagram of the water cycle.  "}
	g := NewGenerator(logger.NewNop(), testConfig(), text, images, nil)

	res := g.Generate(context.Background(), "water cycle", KindDiagram)
	assert.Equal(t, []string{ModelSDXL}, images.calls)
	assert.Equal(t, SourceDescription, res.Source)
	assert.Equal(t, "A labelled diagram of the water cycle.", res.Asset)
	assert.Equal(t, 25*time.Second, text.timeout)
}

func TestGenerateAllBackendsFailYieldsEmptyAsset(t *testing.T) {
	images := &fakeImages{configured: true, respond: notFound}
	text := &fakeText{err: errors.New("fallback timed out")}
	g := NewGenerator(logger.NewNop(), testConfig(), text, images, nil)

	res := g.Generate(context.Background(), "a volcano", KindImage)
	assert.Equal(t, "", res.Asset)
	assert.Equal(t, SourceNone, res.Source)
	assert.Len(t, images.calls, 2)
	assert.Equal(t, 1, text.calls)
}

func TestGenerateWithoutImageCredentialUsesFallback(t *testing.T) {
	images := &fakeImages{configured: false, respond: notFound}
	text := &fakeText{text: "A red apple on a desk."}
	g := NewGenerator(logger.NewNop(), testConfig(), text, images, nil)

	res := g.Generate(context.Background(), "apple", KindImage)
	assert.Empty(t, images.calls)
	assert.Equal(t, SourceDescription, res.Source)
}

func TestGenerateCachesNonEmptyResults(t *testing.T) {
	images := &fakeImages{configured: false, respond: notFound}
	text := &fakeText{text: "cached description"}
	g := NewGenerator(logger.NewNop(), testConfig(), text, images, nil)

	first := g.Generate(context.Background(), "apple", KindImage)
	second := g.Generate(context.Background(), "apple", KindImage)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, text.calls)

	// a different kind is a different key
	g.Generate(context.Background(), "apple", KindDiagram)
	assert.Equal(t, 2, text.calls)
}

func TestGenerateDoesNotCacheEmptyResults(t *testing.T) {
	text := &fakeText{err: errors.New("boom")}
	g := NewGenerator(logger.NewNop(), testConfig(), text, nil, nil)

	g.Generate(context.Background(), "apple", KindImage)
	g.Generate(context.Background(), "apple", KindImage)
	assert.Equal(t, 2, text.calls)
}

func TestGenerateForSectionUploadsToAssetStore(t *testing.T) {
	images := &fakeImages{configured: true, respond: func(string) ([]byte, string, error) {
		return []byte("png"), "image/png", nil
	}}
	assets := &fakeAssets{}
	g := NewGenerator(logger.NewNop(), testConfig(), &fakeText{}, images, assets)

	res := g.GenerateForSection(context.Background(), "abc", 2, "a volcano", KindImage)
	assert.Equal(t, []string{"lessons/abc/2.png"}, assets.keys)
	assert.Equal(t, "https://cdn.example.com/lessons/abc/2.png", res.Asset)
}

func TestGenerateForSectionUploadFailureKeepsDataURL(t *testing.T) {
	images := &fakeImages{configured: true, respond: func(string) ([]byte, string, error) {
		return []byte("png"), "image/png", nil
	}}
	assets := &fakeAssets{err: errors.New("bucket missing")}
	g := NewGenerator(logger.NewNop(), testConfig(), &fakeText{}, images, assets)

	res := g.GenerateForSection(context.Background(), "abc", 1, "a volcano", KindImage)
	assert.True(t, strings.HasPrefix(res.Asset, "data:image/png;base64,"), res.Asset)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindDiagram, ParseKind(" Diagram "))
	assert.Equal(t, KindCode, ParseKind("code"))
	assert.Equal(t, KindImage, ParseKind("illustration"))
}
