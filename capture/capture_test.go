package capture

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/internal/waitutil"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/scenario"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/testutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewService(store, logger.NewTestLogger(), opts...), store
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{
			name: "home",
			at:   time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.UTC),
			want: "home_2024-03-09T14-05-07-123Z.png",
		},
		{
			name: "login",
			at:   time.Date(2024, 3, 9, 22, 5, 7, 0, time.FixedZone("SGT", 8*3600)),
			want: "login_2024-03-09T14-05-07-000Z.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.name, tt.at))
		})
	}
}

func TestFilename_DistinctInstantsGiveDistinctNames(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	properties.Property("different milliseconds never collide", prop.ForAll(
		func(name string, a, b int64) bool {
			if a == b {
				return true
			}
			ta := base.Add(time.Duration(a) * time.Millisecond)
			tb := base.Add(time.Duration(b) * time.Millisecond)
			return Filename(name, ta) != Filename(name, tb)
		},
		gen.Identifier(),
		gen.Int64Range(0, 1_000_000_000),
		gen.Int64Range(0, 1_000_000_000),
	))

	properties.TestingRun(t)
}

func TestCapture_WritesArtifact(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.UTC)
	svc, store := newTestService(t, WithClock(func() time.Time { return at }))
	surface := testutil.NewFakeSurface()
	surface.Image = []byte("png-bytes")

	artifact, err := svc.Capture(context.Background(), surface, "home", scenario.CaptureOptions{FullPage: true})
	require.NoError(t, err)

	assert.Equal(t, "home", artifact.Name)
	assert.Equal(t, "home_2024-03-09T14-05-07-123Z.png", artifact.Filename)
	assert.Equal(t, artifact.Filename, artifact.Path)
	assert.Equal(t, at, artifact.Timestamp)
	assert.FileExists(t, artifact.URL)

	data, err := storage.ReadAll(context.Background(), store, artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, []string{"screenshot:true"}, surface.CallLog())
}

func TestCapture_TwoInstantsProduceTwoFiles(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	svc, store := newTestService(t, WithClock(func() time.Time {
		at = at.Add(time.Millisecond)
		return at
	}))
	surface := testutil.NewFakeSurface()
	ctx := context.Background()

	first, err := svc.Capture(ctx, surface, "home", scenario.CaptureOptions{})
	require.NoError(t, err)
	second, err := svc.Capture(ctx, surface, "home", scenario.CaptureOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, first.Filename, second.Filename)
	keys, err := store.List(ctx, "home_")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Regexp(t, regexp.MustCompile(`^home_\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z\.png$`), keys[0])
}

func TestCapture_WaitOptions(t *testing.T) {
	var slept waitutil.Recorder
	svc, _ := newTestService(t, WithSleep(slept.Sleep))
	surface := testutil.NewFakeSurface()

	_, err := svc.Capture(context.Background(), surface, "cart", scenario.CaptureOptions{
		WaitForSelector: ".cart-items",
		WaitForTimeout:  250,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"wait:.cart-items", "screenshot:false"}, surface.CallLog())
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, slept.Slept)
}

func TestCapture_SelectorTimeout(t *testing.T) {
	svc, store := newTestService(t, WithSelectorTimeout(50*time.Millisecond))
	surface := testutil.NewFakeSurface()
	surface.Missing[".never"] = true

	artifact, err := svc.Capture(context.Background(), surface, "cart", scenario.CaptureOptions{WaitForSelector: ".never"})
	assert.Nil(t, artifact)
	assert.ErrorIs(t, err, ErrCaptureTimeout)

	keys, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCapture_ScreenshotFailure(t *testing.T) {
	svc, _ := newTestService(t)
	surface := testutil.NewFakeSurface()
	surface.ScreenshotErr = errors.New("target closed")

	_, err := svc.Capture(context.Background(), surface, "home", scenario.CaptureOptions{})
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.NotErrorIs(t, err, ErrCaptureTimeout)
}

func TestWithSelectorTimeout_IgnoresNonPositive(t *testing.T) {
	svc, _ := newTestService(t, WithSelectorTimeout(0))
	assert.Equal(t, DefaultSelectorTimeout, svc.selectorTimeout)
}
