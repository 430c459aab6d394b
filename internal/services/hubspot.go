package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinwest2000/hubspot-heic-webhook/internal/config"
	"github.com/clinwest2000/hubspot-heic-webhook/internal/domain"
)

const (
	hubspotService = "hubspot"

	noteAttachmentProperty = "hs_attachment_ids"
	noteAssociations       = "contact,deal,company"

	uploadAccess = "PUBLIC_INDEXABLE"
	uploadTTL    = "P3M"

	// maxErrorBody caps how much of an upstream error body ends up in logs.
	maxErrorBody = 2048
)

type HubSpotService struct {
	apiKey       string
	baseURL      string
	uploadFolder string
	httpClient   *http.Client
	log          logrus.FieldLogger
}

func NewHubSpotService(cfg config.Config, log logrus.FieldLogger) *HubSpotService {
	return &HubSpotService{
		apiKey:       cfg.HubSpotAPIKey,
		baseURL:      strings.TrimSuffix(cfg.HubSpotBaseURL, "/"),
		uploadFolder: cfg.HubSpotUploadFolder,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		log: log.WithField("service", hubspotService),
	}
}

func (s *HubSpotService) GetNote(ctx context.Context, noteID string) (domain.Note, error) {
	query := url.Values{}
	query.Set("properties", noteAttachmentProperty)
	query.Set("associations", noteAssociations)
	endpoint := fmt.Sprintf("%s/crm/v3/objects/notes/%s?%s", s.baseURL, url.PathEscape(noteID), query.Encode())

	var payload struct {
		ID         string             `json:"id"`
		Properties map[string]*string `json:"properties"`
	}
	if err := s.getJSON(ctx, "get note", endpoint, &payload); err != nil {
		return domain.Note{}, err
	}

	note := domain.Note{ID: payload.ID}
	if note.ID == "" {
		note.ID = noteID
	}
	if raw, ok := payload.Properties[noteAttachmentProperty]; ok && raw != nil {
		note.HasAttachmentProperty = true
		note.AttachmentIDs = domain.ParseAttachmentIDs(*raw)
	}

	return note, nil
}

func (s *HubSpotService) GetFileMetadata(ctx context.Context, fileID string) (domain.FileMetadata, error) {
	endpoint := fmt.Sprintf("%s/files/v3/files/%s", s.baseURL, url.PathEscape(fileID))

	var meta domain.FileMetadata
	if err := s.getJSON(ctx, "get file metadata", endpoint, &meta); err != nil {
		return domain.FileMetadata{}, err
	}
	if meta.ID == "" {
		meta.ID = fileID
	}

	return meta, nil
}

// GetDownloadURL asks HubSpot for a signed URL, which also works for private
// note attachments. An empty URL is returned without error; callers check it.
func (s *HubSpotService) GetDownloadURL(ctx context.Context, fileID string) (string, error) {
	endpoint := fmt.Sprintf("%s/files/v3/files/%s/signed-url", s.baseURL, url.PathEscape(fileID))

	var payload struct {
		URL       string `json:"url"`
		ExpiresAt string `json:"expiresAt"`
	}
	if err := s.getJSON(ctx, "get signed url", endpoint, &payload); err != nil {
		return "", err
	}

	return strings.TrimSpace(payload.URL), nil
}

// DownloadSource fetches a signed file URL with the HubSpot credential.
func (s *HubSpotService) DownloadSource(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	s.setAuthHeader(req)

	resp, err := s.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, newUpstreamError(hubspotService, "download file", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read downloaded file: %w", err)
	}
	return data, nil
}

func (s *HubSpotService) UploadFile(ctx context.Context, data []byte, fileName string) (domain.UploadedFile, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fileDisposition("file", fileName))
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return domain.UploadedFile{}, fmt.Errorf("copy file data: %w", err)
	}

	options, err := json.Marshal(map[string]string{"access": uploadAccess, "ttl": uploadTTL})
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("encode upload options: %w", err)
	}
	fields := [][2]string{
		{"options", string(options)},
		{"fileName", fileName},
	}
	if s.uploadFolder != "" {
		fields = append(fields, [2]string{"folderPath", s.uploadFolder})
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return domain.UploadedFile{}, fmt.Errorf("write %s field: %w", field[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return domain.UploadedFile{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/files/v3/files", body)
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("create upload request: %w", err)
	}
	s.setAuthHeader(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.do(req)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return domain.UploadedFile{}, newUpstreamError(hubspotService, "upload file", resp)
	}

	var uploaded domain.UploadedFile
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return domain.UploadedFile{}, fmt.Errorf("decode upload response: %w", err)
	}

	s.log.WithFields(logrus.Fields{"file_id": uploaded.ID, "file_name": fileName, "bytes": len(data)}).Debug("uploaded file")
	return uploaded, nil
}

func (s *HubSpotService) getJSON(ctx context.Context, op, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	s.setAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return newUpstreamError(hubspotService, op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (s *HubSpotService) do(req *http.Request) (*http.Response, error) {
	if err := s.ensureAPIKey(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hubspot request failed: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("hubspot call")

	return resp, nil
}

func (s *HubSpotService) setAuthHeader(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
}

func (s *HubSpotService) ensureAPIKey() error {
	if strings.TrimSpace(s.apiKey) == "" {
		return errors.New("hubspot api key is not configured")
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func fileDisposition(field, fileName string) string {
	return fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(field), quoteEscaper.Replace(fileName))
}

func newUpstreamError(service, op string, resp *http.Response) *UpstreamError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &UpstreamError{
		Service:    service,
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
