package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinwest2000/hubspot-heic-webhook/internal/domain"
)

// CRM is the subset of HubSpot the webhook pipeline needs.
type CRM interface {
	GetNote(ctx context.Context, noteID string) (domain.Note, error)
	GetFileMetadata(ctx context.Context, fileID string) (domain.FileMetadata, error)
	GetDownloadURL(ctx context.Context, fileID string) (string, error)
	UploadFile(ctx context.Context, data []byte, fileName string) (domain.UploadedFile, error)
}

type Converter interface {
	ConvertToJpeg(ctx context.Context, sourceURL, fileName string) (domain.ConversionResult, error)
}

type Processor struct {
	crm       CRM
	converter Converter
	log       logrus.FieldLogger
}

func NewProcessor(crm CRM, converter Converter, log logrus.FieldLogger) *Processor {
	return &Processor{crm: crm, converter: converter, log: log}
}

// ParseEvents decodes a webhook body. An empty body yields no events. A body
// that is not a JSON array yields no events and a *ParseError. Array elements
// that are not event objects are dropped and reported in the *ParseError while
// the remaining events are still returned.
func ParseEvents(body []byte) ([]domain.WebhookEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ParseError{Err: err}
	}

	events := make([]domain.WebhookEvent, 0, len(raw))
	var errs []error
	for i, item := range raw {
		var event domain.WebhookEvent
		if err := json.Unmarshal(item, &event); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		events = append(events, event)
	}

	if len(errs) > 0 {
		return events, &ParseError{Err: errors.Join(errs...)}
	}
	return events, nil
}

// Process handles events in delivery order. A failure inside one note is
// logged and does not stop the remaining events.
func (p *Processor) Process(ctx context.Context, events []domain.WebhookEvent) domain.ProcessReport {
	report := domain.ProcessReport{Events: len(events)}

	for _, event := range events {
		noteID := event.ObjectID.String()
		if noteID == "" {
			report.Skipped++
			continue
		}

		log := p.log.WithFields(logrus.Fields{"note_id": noteID, "event_id": event.EventID})
		log.Info("received webhook for note")

		outcomes, err := p.safeProcessNote(ctx, noteID, log)
		report.Converted = append(report.Converted, outcomes...)
		if err != nil {
			report.Failed++
			fields := logrus.Fields{"error_kind": errorKind(err)}
			var upstream *UpstreamError
			if errors.As(err, &upstream) {
				fields["status_code"] = upstream.StatusCode
				fields["upstream"] = upstream.Service
			}
			log.WithFields(fields).WithError(err).Error("error processing note")
		}
	}

	return report
}

// safeProcessNote turns a panic inside one note into that note's error so the
// rest of the batch still runs.
func (p *Processor) safeProcessNote(ctx context.Context, noteID string, log logrus.FieldLogger) (outcomes []domain.AttachmentOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing note: %v", r)
		}
	}()
	return p.processNote(ctx, noteID, log)
}

func (p *Processor) processNote(ctx context.Context, noteID string, log logrus.FieldLogger) ([]domain.AttachmentOutcome, error) {
	note, err := p.crm.GetNote(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}

	if len(note.AttachmentIDs) == 0 {
		log.WithField("has_property", note.HasAttachmentProperty).Info("no attachments found")
		return nil, nil
	}

	var outcomes []domain.AttachmentOutcome
	for _, fileID := range note.AttachmentIDs {
		outcome, converted, err := p.processAttachment(ctx, noteID, fileID, log.WithField("file_id", fileID))
		if err != nil {
			return outcomes, fmt.Errorf("attachment %s: %w", fileID, err)
		}
		if converted {
			outcomes = append(outcomes, outcome)
		}
	}

	return outcomes, nil
}

func (p *Processor) processAttachment(ctx context.Context, noteID, fileID string, log logrus.FieldLogger) (domain.AttachmentOutcome, bool, error) {
	meta, err := p.crm.GetFileMetadata(ctx, fileID)
	if err != nil {
		return domain.AttachmentOutcome{}, false, fmt.Errorf("get file metadata: %w", err)
	}

	// The lowercased name is what gets converted and uploaded.
	fileName := strings.ToLower(meta.Name)
	if !IsHeic(fileName, meta.MimeType) {
		log.WithFields(logrus.Fields{"file_name": meta.Name, "mime_type": meta.MimeType}).Debug("not heic, skipping")
		return domain.AttachmentOutcome{}, false, nil
	}

	fileURL, err := p.crm.GetDownloadURL(ctx, fileID)
	if err != nil {
		return domain.AttachmentOutcome{}, false, fmt.Errorf("get download url: %w", err)
	}
	if fileURL == "" {
		return domain.AttachmentOutcome{}, false, ErrEmptyDownloadURL
	}

	log.WithField("file_name", fileName).Info("converting attachment")
	result, err := p.converter.ConvertToJpeg(ctx, fileURL, fileName)
	if err != nil {
		return domain.AttachmentOutcome{}, false, fmt.Errorf("convert: %w", err)
	}

	uploaded, err := p.crm.UploadFile(ctx, result.Data, result.FileName)
	if err != nil {
		return domain.AttachmentOutcome{}, false, fmt.Errorf("upload: %w", err)
	}
	log.WithFields(logrus.Fields{"uploaded_id": uploaded.ID, "url": uploaded.URL}).Info("uploaded jpg")

	return domain.AttachmentOutcome{
		NoteID:      noteID,
		FileID:      fileID,
		SourceName:  meta.Name,
		UploadedID:  uploaded.ID,
		UploadedURL: uploaded.URL,
	}, true, nil
}
