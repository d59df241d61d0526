package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	_, err := Options{}.withDefaults()
	assert.Error(t, err)

	o, err := Options{URL: "http://127.0.0.1:8080/calendar"}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, o.Width)
	assert.Equal(t, DefaultHeight, o.Height)
	assert.Equal(t, DefaultTimeout, o.Timeout)

	o, err = Options{URL: "x", Width: 800, Height: 480, Timeout: time.Second}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, 800, o.Width)
	assert.Equal(t, 480, o.Height)
	assert.Equal(t, time.Second, o.Timeout)
}

func TestCalendarPNGRequiresURL(t *testing.T) {
	_, err := CalendarPNG(context.Background(), Options{})
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "preview.png")
	require.NoError(t, writeFile(path, []byte("png")))
	require.NoError(t, writeFile(path, []byte("png2")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png2", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
