package audit

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/workbench/pkg/contextkeys"
	"github.com/platinummonkey/workbench/pkg/httputil"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthLogout      EventType = "auth.logout"
	EventTypeAuthRegister    EventType = "auth.register"
	EventTypeAuthTokenIssue  EventType = "auth.token_issue"
	EventTypeAuthRateLimited EventType = "auth.rate_limited"

	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"

	// Admin events
	EventTypeAdminUserCreate    EventType = "admin.user_create"
	EventTypeAdminUserUpdate    EventType = "admin.user_update"
	EventTypeAdminUserDelete    EventType = "admin.user_delete"
	EventTypeAdminPasswordReset EventType = "admin.password_reset"
	EventTypeAdminProjectCreate EventType = "admin.project_create"
	EventTypeAdminProjectUpdate EventType = "admin.project_update"
	EventTypeAdminProjectDelete EventType = "admin.project_delete"
	EventTypeAdminMemberAdd     EventType = "admin.member_add"
	EventTypeAdminMemberRemove  EventType = "admin.member_remove"

	// Data mutation events
	EventTypeDataDocumentUpload EventType = "data.document_upload"
	EventTypeDataDocumentDelete EventType = "data.document_delete"
	EventTypeDataModelUpload    EventType = "data.model_upload"
	EventTypeDataModelDelete    EventType = "data.model_delete"
	EventTypeDataModelAssign    EventType = "data.model_assign"
	EventTypeDataBlobSweep      EventType = "data.blob_sweep"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeUser     ResourceType = "user"
	ResourceTypeProject  ResourceType = "project"
	ResourceTypeDocument ResourceType = "document"
	ResourceTypeModel    ResourceType = "model"
	ResourceTypeBlob     ResourceType = "blob"
)

// Event is a single audit record
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Who
	UserID *int64 `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`

	// What
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Where
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event populated from the request. r may be nil.
func NewEvent(r *http.Request, eventType EventType, status EventStatus) *Event {
	event := &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
	if r != nil {
		event.IPAddress = httputil.ClientIP(r)
		event.UserAgent = r.UserAgent()
		event.RequestID = contextkeys.GetRequestID(r.Context())
		event.Method = r.Method
		event.Path = r.URL.Path
	}
	return event
}

// WithUser records the acting user
func (e *Event) WithUser(id int64, email string) *Event {
	e.UserID = &id
	e.Email = email
	return e
}

// WithResource records the resource the event concerns
func (e *Event) WithResource(resourceType ResourceType, resourceID string) *Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithMessage sets the human readable message
func (e *Event) WithMessage(message string) *Event {
	e.Message = message
	return e
}

// WithError records an error message
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	return e
}

// WithMetadata adds a metadata entry
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
