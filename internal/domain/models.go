package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ObjectID is a HubSpot object identifier. Webhooks deliver it either as a
// JSON number or as a string.
type ObjectID string

func (id *ObjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ObjectID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("object id: %w", err)
	}
	if n.String() == "0" {
		*id = ""
		return nil
	}
	*id = ObjectID(n.String())
	return nil
}

func (id ObjectID) String() string { return string(id) }

type WebhookEvent struct {
	ObjectID         ObjectID `json:"objectId"`
	EventID          int64    `json:"eventId,omitempty"`
	SubscriptionType string   `json:"subscriptionType,omitempty"`
	PortalID         int64    `json:"portalId,omitempty"`
	OccurredAt       int64    `json:"occurredAt,omitempty"`
}

type Note struct {
	ID            string
	AttachmentIDs []string
	// HasAttachmentProperty is false when hs_attachment_ids was missing from
	// the response and true when it was present, even if empty.
	HasAttachmentProperty bool
}

// ParseAttachmentIDs splits the semicolon-delimited hs_attachment_ids value.
// Segments are trimmed and empty segments dropped.
func ParseAttachmentIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

type FileMetadata struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	MimeType  string `json:"mimeType"`
}

type UploadedFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

const (
	JobStatusWaiting    = "waiting"
	JobStatusProcessing = "processing"
	JobStatusFinished   = "finished"
	JobStatusError      = "error"
)

type ConversionJob struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	Tasks  []JobTask `json:"tasks"`
}

// Task returns the job task with the given name.
func (j ConversionJob) Task(name string) (JobTask, bool) {
	for _, task := range j.Tasks {
		if task.Name == name {
			return task, true
		}
	}
	return JobTask{}, false
}

type JobTask struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Operation string     `json:"operation"`
	Status    string     `json:"status"`
	Message   string     `json:"message,omitempty"`
	Code      string     `json:"code,omitempty"`
	Result    TaskResult `json:"result"`
}

type TaskResult struct {
	Files []ResultFile `json:"files,omitempty"`
	Form  *UploadForm  `json:"form,omitempty"`
}

type ResultFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type UploadForm struct {
	URL        string                     `json:"url"`
	Parameters map[string]json.RawMessage `json:"parameters"`
}

type ConversionResult struct {
	Data     []byte
	FileName string
}

type AttachmentOutcome struct {
	NoteID      string `json:"noteId"`
	FileID      string `json:"fileId"`
	SourceName  string `json:"sourceName"`
	UploadedID  string `json:"uploadedId"`
	UploadedURL string `json:"uploadedUrl"`
}

type ProcessReport struct {
	Events    int                 `json:"events"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Converted []AttachmentOutcome `json:"converted"`
}
