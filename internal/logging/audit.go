package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Run lifecycle
	AuditRunStart AuditEventType = "run_start"
	AuditRunEnd   AuditEventType = "run_end"

	// Step execution
	AuditStepEnd   AuditEventType = "step_end"
	AuditStepRetry AuditEventType = "step_retry"
	AuditStepSkip  AuditEventType = "step_skip"

	// Manual intervention
	AuditIntervention AuditEventType = "intervention"

	// Session snapshot
	AuditSessionRestore AuditEventType = "session_restore"
	AuditSessionReject  AuditEventType = "session_reject"
	AuditSessionSave    AuditEventType = "session_save"

	// One-time passwords
	AuditOTPAccepted AuditEventType = "otp_accepted"
	AuditOTPRejected AuditEventType = "otp_rejected"

	// Failure artifacts
	AuditArtifact AuditEventType = "artifact"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent is one line of a run's audit trail.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`  // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	RunID      string                 `json:"run"`
	Step       string                 `json:"step,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

// AuditLogger appends JSON lines describing what one run did. A nil
// *AuditLogger discards everything.
type AuditLogger struct {
	runID string

	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// OpenAudit creates (or appends to) the audit trail at path.
func OpenAudit(path, runID string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}
	a := NewAudit(file, runID)
	a.closer = file
	return a, nil
}

// NewAudit writes the audit trail of runID to w.
func NewAudit(w io.Writer, runID string) *AuditLogger {
	return &AuditLogger{runID: runID, w: w, now: time.Now}
}

// Close closes the underlying file, if any.
func (a *AuditLogger) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.closer.Close()
	a.closer = nil
	a.w = io.Discard
	return err
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if a == nil {
		return
	}

	// Fill in defaults
	if event.Timestamp == 0 {
		event.Timestamp = a.now().UnixMilli()
	}
	if event.RunID == "" {
		event.RunID = a.runID
	}

	data, err := json.Marshal(event)
	if err != nil {
		Get(CategoryFlow).Warn("audit event %s: %v", event.EventType, err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.w.Write(append(data, '\n')); err != nil {
		Get(CategoryFlow).Warn("audit write: %v", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// RunStart logs the start of a scenario run
func (a *AuditLogger) RunStart(scenario, email, baseURL string, steps int) {
	a.Log(AuditEvent{
		EventType: AuditRunStart,
		Target:    baseURL,
		Action:    scenario,
		Success:   true,
		Fields:    map[string]interface{}{"email": email, "steps": steps},
		Message:   fmt.Sprintf("Run started: %s (%d steps) against %s", scenario, steps, baseURL),
	})
}

// RunEnd logs how a run ended
func (a *AuditLogger) RunEnd(status string, elapsed time.Duration, err error) {
	a.Log(AuditEvent{
		EventType:  AuditRunEnd,
		Action:     status,
		Success:    err == nil,
		DurationMs: elapsed.Milliseconds(),
		Error:      errString(err),
		Message:    fmt.Sprintf("Run %s after %dms", status, elapsed.Milliseconds()),
	})
}

// StepEnd logs a finished step
func (a *AuditLogger) StepEnd(step, kind string, attempts int, elapsed time.Duration, err error) {
	a.Log(AuditEvent{
		EventType:  AuditStepEnd,
		Step:       step,
		Action:     kind,
		Success:    err == nil,
		DurationMs: elapsed.Milliseconds(),
		Error:      errString(err),
		Fields:     map[string]interface{}{"attempts": attempts},
		Message:    fmt.Sprintf("Step %s (%s): %d attempt(s), %dms, success=%v", step, kind, attempts, elapsed.Milliseconds(), err == nil),
	})
}

// StepRetry logs a failed attempt that will be retried
func (a *AuditLogger) StepRetry(step string, attempt, of int, err error) {
	a.Log(AuditEvent{
		EventType: AuditStepRetry,
		Step:      step,
		Success:   false,
		Error:     errString(err),
		Fields:    map[string]interface{}{"attempt": attempt, "attempts": of},
		Message:   fmt.Sprintf("Step %s attempt %d/%d failed", step, attempt, of),
	})
}

// StepSkip logs an optional step that failed and was skipped
func (a *AuditLogger) StepSkip(step string, err error) {
	a.Log(AuditEvent{
		EventType: AuditStepSkip,
		Step:      step,
		Success:   false,
		Error:     errString(err),
		Message:   fmt.Sprintf("Optional step %s skipped", step),
	})
}

// Intervention logs what the operator decided for a stuck action
func (a *AuditLogger) Intervention(step, action, reason, decision, screenshot string) {
	fields := map[string]interface{}{"decision": decision}
	if screenshot != "" {
		fields["screenshot"] = screenshot
	}
	a.Log(AuditEvent{
		EventType: AuditIntervention,
		Step:      step,
		Action:    action,
		Success:   decision != "abort",
		Error:     reason,
		Fields:    fields,
		Message:   fmt.Sprintf("Operator chose %s for %q", decision, action),
	})
}

// SessionEvent logs snapshot reuse, rejection or saving
func (a *AuditLogger) SessionEvent(eventType AuditEventType, path, detail string) {
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    path,
		Success:   eventType != AuditSessionReject,
		Message:   fmt.Sprintf("Session %s: %s", eventType, detail),
	})
}

// OTP logs whether the application accepted a one-time code
func (a *AuditLogger) OTP(purpose string, accepted bool, try int) {
	eventType := AuditOTPAccepted
	if !accepted {
		eventType = AuditOTPRejected
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Action:    purpose,
		Success:   accepted,
		Fields:    map[string]interface{}{"try": try},
		Message:   fmt.Sprintf("%s code try %d accepted=%v", purpose, try, accepted),
	})
}

// Artifact logs a file written for later inspection
func (a *AuditLogger) Artifact(step, path string) {
	a.Log(AuditEvent{
		EventType: AuditArtifact,
		Step:      step,
		Target:    path,
		Success:   true,
		Message:   fmt.Sprintf("Artifact written: %s", filepath.Base(path)),
	})
}
