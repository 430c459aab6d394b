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
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinwest2000/hubspot-heic-webhook/internal/config"
	"github.com/clinwest2000/hubspot-heic-webhook/internal/domain"
)

const (
	cloudConvertService = "cloudconvert"

	importTaskName  = "import-upload"
	convertTaskName = "convert-my-file"
	exportTaskName  = "export-my-file"

	outputFormat = "jpg"
)

// SourceFetcher downloads the original attachment bytes.
type SourceFetcher interface {
	DownloadSource(ctx context.Context, fileURL string) ([]byte, error)
}

// JobWaiter blocks until a conversion job reaches a terminal state.
type JobWaiter interface {
	Wait(ctx context.Context, jobID string) (domain.ConversionJob, error)
}

type CloudConvertService struct {
	apiKey     string
	baseURL    string
	source     SourceFetcher
	waiter     JobWaiter
	httpClient *http.Client
	log        logrus.FieldLogger
}

func NewCloudConvertService(cfg config.Config, source SourceFetcher, waiter JobWaiter, log logrus.FieldLogger) *CloudConvertService {
	return &CloudConvertService{
		apiKey:  cfg.CloudConvertAPIKey,
		baseURL: strings.TrimSuffix(cfg.CloudConvertBaseURL, "/"),
		source:  source,
		waiter:  waiter,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		log: log.WithField("service", cloudConvertService),
	}
}

// JpegFileName rewrites ".heic" to ".jpg". The replacement is case-sensitive,
// so "a.HEIC" stays "a.HEIC".
func JpegFileName(name string) string {
	return strings.ReplaceAll(name, ".heic", ".jpg")
}

// ConvertToJpeg runs one attachment through CloudConvert: download, upload to
// an import slot, convert, export and fetch the result.
func (s *CloudConvertService) ConvertToJpeg(ctx context.Context, sourceURL, fileName string) (domain.ConversionResult, error) {
	log := s.log.WithField("file_name", fileName)

	data, err := s.source.DownloadSource(ctx, sourceURL)
	if err != nil {
		return domain.ConversionResult{}, fmt.Errorf("download source: %w", err)
	}
	log.WithField("bytes", len(data)).Debug("downloaded source")

	uploadTask, err := s.createUploadTask(ctx)
	if err != nil {
		return domain.ConversionResult{}, err
	}

	if err := s.pushFile(ctx, uploadTask, fileName, data); err != nil {
		return domain.ConversionResult{}, err
	}

	job, err := s.createJob(ctx, uploadTask.ID)
	if err != nil {
		return domain.ConversionResult{}, err
	}
	log = log.WithField("job_id", job.ID)
	log.Debug("conversion job created")

	job, err = s.waiter.Wait(ctx, job.ID)
	if err != nil {
		return domain.ConversionResult{}, err
	}

	resultURL, err := exportURL(job)
	if err != nil {
		return domain.ConversionResult{}, err
	}

	converted, err := s.fetchResult(ctx, resultURL)
	if err != nil {
		return domain.ConversionResult{}, err
	}

	if sniffed := http.DetectContentType(converted); sniffed != "image/jpeg" {
		log.WithField("content_type", sniffed).Warn("converted file does not look like a jpeg")
	}

	return domain.ConversionResult{Data: converted, FileName: JpegFileName(fileName)}, nil
}

func (s *CloudConvertService) createUploadTask(ctx context.Context) (domain.JobTask, error) {
	var task domain.JobTask
	if err := s.postJSON(ctx, "create upload task", s.baseURL+"/import/upload", map[string]any{}, &task); err != nil {
		return domain.JobTask{}, err
	}
	if task.ID == "" || task.Result.Form == nil || task.Result.Form.URL == "" {
		return domain.JobTask{}, errors.New("cloudconvert upload task has no form")
	}
	return task, nil
}

// pushFile posts the source bytes to the upload form. Form parameters must
// precede the file part.
func (s *CloudConvertService) pushFile(ctx context.Context, task domain.JobTask, fileName string, data []byte) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for key, value := range task.Result.Form.Parameters {
		if err := writer.WriteField(key, formValue(value)); err != nil {
			return fmt.Errorf("write form parameter %s: %w", key, err)
		}
	}

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("copy file data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.Result.Form.URL, body)
	if err != nil {
		return fmt.Errorf("create form upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return newUpstreamError(cloudConvertService, "upload file", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// formValue renders a form parameter exactly as sent: strings unquoted,
// numbers and booleans verbatim.
func formValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func (s *CloudConvertService) createJob(ctx context.Context, uploadTaskID string) (domain.ConversionJob, error) {
	payload := map[string]any{
		"tasks": map[string]any{
			importTaskName: map[string]any{
				"operation": "import/upload",
				"task":      uploadTaskID,
			},
			convertTaskName: map[string]any{
				"operation":     "convert",
				"input":         importTaskName,
				"output_format": outputFormat,
			},
			exportTaskName: map[string]any{
				"operation": "export/url",
				"input":     convertTaskName,
			},
		},
	}

	var job domain.ConversionJob
	if err := s.postJSON(ctx, "create job", s.baseURL+"/jobs", payload, &job); err != nil {
		return domain.ConversionJob{}, err
	}
	if job.ID == "" {
		return domain.ConversionJob{}, errors.New("cloudconvert job response has no id")
	}
	return job, nil
}

func (s *CloudConvertService) fetchResult(ctx context.Context, resultURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create result request: %w", err)
	}

	resp, err := s.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, newUpstreamError(cloudConvertService, "download result", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read converted file: %w", err)
	}
	return data, nil
}

// postJSON sends an authenticated JSON request and unwraps the "data"
// envelope CloudConvert puts around every response.
func (s *CloudConvertService) postJSON(ctx context.Context, op, endpoint string, payload, out any) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return fmt.Errorf("encode %s payload: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	if err := s.authorize(req); err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return newUpstreamError(cloudConvertService, op, resp)
	}

	return decodeEnvelope(resp.Body, op, out)
}

func (s *CloudConvertService) authorize(req *http.Request) error {
	if strings.TrimSpace(s.apiKey) == "" {
		return errors.New("cloudconvert api key is not configured")
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	return nil
}

func (s *CloudConvertService) do(req *http.Request) (*http.Response, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudconvert request failed: %w", err)
	}
	return resp, nil
}

func decodeEnvelope(r io.Reader, op string, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("decode %s response: missing data", op)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// exportURL checks a finished job and returns the download URL of the export
// task.
func exportURL(job domain.ConversionJob) (string, error) {
	switch job.Status {
	case domain.JobStatusFinished:
	case domain.JobStatusError:
		return "", &ConversionError{Kind: ConversionRejected, JobID: job.ID, Message: failedTaskMessage(job)}
	default:
		return "", &ConversionError{Kind: ConversionTimedOut, JobID: job.ID, Message: "job status " + job.Status}
	}

	task, ok := job.Task(exportTaskName)
	if !ok {
		return "", &ConversionError{Kind: ConversionRejected, JobID: job.ID, Message: "export task missing"}
	}
	if task.Status == domain.JobStatusError {
		return "", &ConversionError{Kind: ConversionRejected, JobID: job.ID, Message: task.Message}
	}
	if len(task.Result.Files) == 0 || task.Result.Files[0].URL == "" {
		return "", &ConversionError{Kind: ConversionRejected, JobID: job.ID, Message: "export task has no files"}
	}
	return task.Result.Files[0].URL, nil
}

func failedTaskMessage(job domain.ConversionJob) string {
	for _, task := range job.Tasks {
		if task.Status == domain.JobStatusError {
			if task.Code != "" {
				return fmt.Sprintf("task %s failed: %s (%s)", task.Name, task.Message, task.Code)
			}
			return fmt.Sprintf("task %s failed: %s", task.Name, task.Message)
		}
	}
	return "job failed"
}

// SyncJobWaiter waits through CloudConvert's synchronous API, which holds the
// request open until the job ends.
type SyncJobWaiter struct {
	apiKey     string
	syncURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewSyncJobWaiter(cfg config.Config) *SyncJobWaiter {
	return &SyncJobWaiter{
		apiKey:     cfg.CloudConvertAPIKey,
		syncURL:    strings.TrimSuffix(cfg.CloudConvertSyncURL, "/"),
		timeout:    cfg.JobWaitTimeout,
		httpClient: &http.Client{},
	}
}

func (w *SyncJobWaiter) Wait(ctx context.Context, jobID string) (domain.ConversionJob, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/jobs/%s", w.syncURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ConversionJob{}, fmt.Errorf("create wait request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ConversionJob{}, &ConversionError{Kind: ConversionTimedOut, JobID: jobID, Err: err}
		}
		return domain.ConversionJob{}, fmt.Errorf("cloudconvert wait failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return domain.ConversionJob{}, &ConversionError{Kind: ConversionTimedOut, JobID: jobID, Err: newUpstreamError(cloudConvertService, "wait job", resp)}
	case !isSuccess(resp.StatusCode):
		return domain.ConversionJob{}, newUpstreamError(cloudConvertService, "wait job", resp)
	}

	var job domain.ConversionJob
	if err := decodeEnvelope(resp.Body, "wait job", &job); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ConversionJob{}, &ConversionError{Kind: ConversionTimedOut, JobID: jobID, Err: err}
		}
		return domain.ConversionJob{}, err
	}
	return job, nil
}
