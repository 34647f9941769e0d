package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAudit(t *testing.T, data []byte) []AuditEvent {
	t.Helper()
	var events []AuditEvent
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var ev AuditEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), "line %q", sc.Text())
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestAuditWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	a := NewAudit(&buf, "run-1")
	a.now = func() time.Time { return time.UnixMilli(1700000000000) }

	a.RunStart("individual", "jane@example.com", "https://portal.example.com", 3)
	a.StepRetry("applicant", 1, 3, errors.New("no transition"))
	a.StepEnd("applicant", "form", 2, 1500*time.Millisecond, nil)
	a.Intervention("documents", "upload passport", "not found", "skip", "")
	a.RunEnd("failed", 4*time.Second, errors.New("boom"))

	events := readAudit(t, buf.Bytes())
	require.Len(t, events, 5)

	for _, ev := range events {
		assert.Equal(t, "run-1", ev.RunID)
		assert.Equal(t, int64(1700000000000), ev.Timestamp)
	}
	assert.Equal(t, AuditRunStart, events[0].EventType)
	assert.Equal(t, "individual", events[0].Action)

	assert.Equal(t, AuditStepRetry, events[1].EventType)
	assert.False(t, events[1].Success)
	assert.Equal(t, "no transition", events[1].Error)

	assert.Equal(t, AuditStepEnd, events[2].EventType)
	assert.True(t, events[2].Success)
	assert.Equal(t, int64(1500), events[2].DurationMs)
	assert.EqualValues(t, 2, events[2].Fields["attempts"])

	assert.Equal(t, AuditIntervention, events[3].EventType)
	assert.True(t, events[3].Success, "skip is not an abort")
	assert.Equal(t, "skip", events[3].Fields["decision"])

	assert.Equal(t, AuditRunEnd, events[4].EventType)
	assert.False(t, events[4].Success)
	assert.Equal(t, "boom", events[4].Error)
}

func TestAuditNilLoggerIsSilent(t *testing.T) {
	var a *AuditLogger
	assert.NotPanics(t, func() {
		a.RunStart("s", "e", "u", 1)
		a.OTP("login", true, 1)
		assert.NoError(t, a.Close())
	})
}

func TestOpenAuditAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-2", "audit.jsonl")

	a, err := OpenAudit(path, "run-2")
	require.NoError(t, err)
	a.SessionEvent(AuditSessionReject, "session.json", "expired")
	require.NoError(t, a.Close())
	a.OTP("login", true, 1) // after Close: discarded

	a, err = OpenAudit(path, "run-2")
	require.NoError(t, err)
	a.Artifact("payment", "/tmp/failure.png")
	require.NoError(t, a.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	events := readAudit(t, data)
	require.Len(t, events, 2)
	assert.Equal(t, AuditSessionReject, events[0].EventType)
	assert.False(t, events[0].Success)
	assert.Equal(t, AuditArtifact, events[1].EventType)
	assert.Equal(t, "/tmp/failure.png", events[1].Target)
}
