package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCategoryLogsReachBaseLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	require.NoError(t, Initialize(Config{Level: "info"}, zap.New(core)))
	t.Cleanup(CloseAll)

	Flow("step %s finished", "login")
	Get(CategoryDOM).Debug("hidden at info level")

	entries := logs.FilterMessage("step login finished").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "flow", entries[0].LoggerName)
	assert.Equal(t, 0, logs.FilterMessage("hidden at info level").Len())
}

func TestDebugModeWritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(Config{
		Level:      "debug",
		DebugMode:  true,
		Dir:        dir,
		Categories: map[string]bool{"otp": false},
	}, nil)
	require.NoError(t, err)

	Session("snapshot restored for %s", "jane@example.com")
	OTP("should not get a file")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(dir, date+"_session.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "snapshot restored for jane@example.com"))

	_, err = os.Stat(filepath.Join(dir, date+"_otp.log"))
	assert.True(t, os.IsNotExist(err), "disabled category must not create a file")
}

func TestIsCategoryEnabled(t *testing.T) {
	require.NoError(t, Initialize(Config{}, nil))
	assert.False(t, IsCategoryEnabled(CategoryBrowser), "no files outside debug mode")

	require.NoError(t, Initialize(Config{DebugMode: true, Dir: t.TempDir()}, nil))
	t.Cleanup(CloseAll)
	assert.True(t, IsCategoryEnabled(CategoryBrowser), "categories default to enabled")
}

func TestDebugModeRequiresDir(t *testing.T) {
	err := Initialize(Config{DebugMode: true}, nil)
	assert.Error(t, err)
	require.NoError(t, Initialize(Config{}, nil))
}

func TestWithAddsContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	require.NoError(t, Initialize(Config{Level: "debug"}, zap.New(core)))
	t.Cleanup(CloseAll)

	Get(CategoryFlow).With("run", "r-1").Info("started")

	entries := logs.FilterMessage("started").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "r-1", entries[0].ContextMap()["run"])
}
