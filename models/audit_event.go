package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventType is the subtype of a security audit event
type AuditEventType string

const (
	AuditEventSignIn     AuditEventType = "SIGN_IN"
	AuditEventFailSignIn AuditEventType = "FAIL_SIGN_IN"
)

// AuditLayer identifies the component that produced an audit event
type AuditLayer string

const (
	AuditLayerGate AuditLayer = "GATE"
)

// AuditStatus is the outcome recorded on an audit event
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "SUCCESS"
	AuditStatusFail    AuditStatus = "FAIL"
)

// AuditEvent represents a security-relevant occurrence sent to the audit collector.
// Once handed to the emitter the gate keeps no reference to it.
type AuditEvent struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	OccurredAt time.Time      `json:"occurred_at" db:"occurred_at"`
	SubType    AuditEventType `json:"event_sub_type" db:"sub_type"`
	Layer      AuditLayer     `json:"layer" db:"layer"`
	Status     AuditStatus    `json:"status" db:"status"`
	Message    string         `json:"message" db:"message"`
	Reason     string         `json:"reason,omitempty" db:"reason"`
	Login      string         `json:"login,omitempty" db:"login"`

	// Request metadata
	RequestID  string `json:"request_id,omitempty" db:"request_id"`
	Method     string `json:"method,omitempty" db:"method"`
	Path       string `json:"path,omitempty" db:"path"`
	RemoteAddr string `json:"remote_addr,omitempty" db:"remote_addr"`
	UserAgent  string `json:"user_agent,omitempty" db:"user_agent"`
}

// TableName returns the table name for the AuditEvent model
func (AuditEvent) TableName() string {
	return "audit_events"
}

// NewAuditEvent creates a new AuditEvent instance
func NewAuditEvent(subType AuditEventType, layer AuditLayer, status AuditStatus, message string) *AuditEvent {
	return &AuditEvent{
		ID:         uuid.New(),
		OccurredAt: time.Now().UTC(),
		SubType:    subType,
		Layer:      layer,
		Status:     status,
		Message:    message,
	}
}

// WithReason sets the failure reason
func (e *AuditEvent) WithReason(reason string) *AuditEvent {
	e.Reason = reason
	return e
}

// WithLogin sets the login of the principal involved
func (e *AuditEvent) WithLogin(login string) *AuditEvent {
	e.Login = login
	return e
}

// WithRequest sets request metadata
func (e *AuditEvent) WithRequest(requestID, method, path, remoteAddr, userAgent string) *AuditEvent {
	e.RequestID = requestID
	e.Method = method
	e.Path = path
	e.RemoteAddr = remoteAddr
	e.UserAgent = userAgent
	return e
}

// IsFailure reports whether the event records a failed outcome
func (e *AuditEvent) IsFailure() bool {
	return e.Status == AuditStatusFail
}
