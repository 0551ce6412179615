package frames

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/flow.report/internal/fsutil"
	"github.com/banshee-data/flow.report/internal/monitoring"
)

func quiet(t *testing.T) {
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = orig })
}

func TestParseFrameTime(t *testing.T) {
	got, err := ParseFrameTime("dir/20190701123045.jpg", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 7, 1, 12, 30, 45, 0, time.UTC), got)

	got, err = ParseFrameTime("20190701123045.corrected.png", nil)
	require.NoError(t, err)
	assert.Equal(t, 45, got.Second())

	_, err = ParseFrameTime("IMG_0001.jpg", time.UTC)
	assert.Error(t, err)
	_, err = ParseFrameTime("20191301000000.jpg", time.UTC)
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	quiet(t)
	mfs := fsutil.NewMemoryFileSystem()
	mfs.AddFile("tl/20190702080000.JPG", []byte("b"))
	mfs.AddFile("tl/20190701080000.jpg", []byte("a"))
	mfs.AddFile("tl/IMG_0001.jpg", []byte("x"))
	mfs.AddFile("tl/20190701090000.txt", []byte("x"))

	frames, err := List(mfs, "tl", nil, time.UTC)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "20190701080000.jpg", frames[0].Name)
	assert.Equal(t, "tl/20190701080000.jpg", frames[0].Path)
	assert.Equal(t, int64(1), frames[0].Size)
	assert.Equal(t, "20190702", frames[1].Day())

	frames, err = List(mfs, "tl", []string{".png"}, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, frames)

	_, err = List(mfs, "missing", nil, time.UTC)
	assert.Error(t, err)
}

func TestSelectLargestPerDay(t *testing.T) {
	in := []Frame{
		{Name: "20190701080000.jpg", Size: 10},
		{Name: "20190701120000.jpg", Size: 30},
		{Name: "20190701160000.jpg", Size: 30},
		{Name: "20190702080000.jpg", Size: 5},
	}
	got := SelectLargestPerDay(in)
	require.Len(t, got, 2)
	assert.Equal(t, "20190701120000.jpg", got[0].Name)
	assert.Equal(t, "20190702080000.jpg", got[1].Name)

	assert.Empty(t, SelectLargestPerDay(nil))
}

func TestCopyFrames(t *testing.T) {
	quiet(t)
	mfs := fsutil.NewMemoryFileSystem()
	mfs.AddFile("tl/20190701080000.jpg", []byte("small"))
	mfs.AddFile("tl/20190701120000.jpg", []byte("the larger frame"))
	mfs.AddFile("tl/20190702080000.jpg", []byte("next day"))

	frames, err := List(mfs, "tl", nil, time.UTC)
	require.NoError(t, err)
	require.NoError(t, CopyFrames(mfs, SelectLargestPerDay(frames), "daily"))

	assert.Equal(t, []string{"daily/20190701120000.jpg", "daily/20190702080000.jpg"}, mfs.Files("daily/"))
	data, err := mfs.ReadFile("daily/20190701120000.jpg")
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("the larger frame"), data))

	err = CopyFrames(mfs, []Frame{{Name: "gone.jpg", Path: "tl/gone.jpg"}}, "daily")
	assert.Error(t, err)
}
