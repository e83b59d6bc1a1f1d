// Package apiclient talks to the exam authoring API and implements
// composer.Remote on top of it.
package apiclient

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
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-authoring/internal/composer"
	"github.com/stemsi/exstem-authoring/internal/config"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/response"
)

const (
	adminPrefix = "/api/v1/admin"
	loginPath   = "/api/v1/auth/admin/login"

	maxResponseBytes = 32 << 20
)

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	retries int
	backoff time.Duration
	log     zerolog.Logger

	mu    sync.RWMutex
	token string
}

var _ composer.Remote = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithToken sets the bearer token sent with every admin request.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithTimeout bounds each attempt of a request.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithRetries sets how many extra attempts idempotent requests get.
func WithRetries(n int) Option { return func(c *Client) { c.retries = n } }

// WithBackoff sets the delay before the first retry; it doubles after each.
func WithBackoff(d time.Duration) Option { return func(c *Client) { c.backoff = d } }

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "api_client").Logger() }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		timeout: 15 * time.Second,
		retries: 2,
		backoff: 200 * time.Millisecond,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a client from the API_* settings.
func NewFromConfig(cfg *config.Config, log zerolog.Logger) *Client {
	return New(cfg.APIBaseURL,
		WithToken(cfg.APIToken),
		WithTimeout(cfg.APITimeout),
		WithRetries(cfg.APIRetries),
		WithLogger(log),
	)
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login authenticates an admin and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*model.AdminLoginResponse, error) {
	var out model.AdminLoginResponse
	err := c.doJSON(ctx, http.MethodPost, loginPath, model.AdminLoginRequest{Email: email, Password: password}, "", &out)
	if err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// ListExams returns one page of the caller's exams without their parts.
func (c *Client) ListExams(ctx context.Context, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	path := adminPrefix + "/exams?page=" + strconv.Itoa(page) + "&per_page=" + strconv.Itoa(perPage)
	var out []model.Exam
	env, err := c.do(ctx, http.MethodGet, path, nil, "", "exams", &out)
	if err != nil {
		return nil, nil, err
	}
	return out, env.Pagination, nil
}

func (c *Client) GetExam(ctx context.Context, id int64) (*model.Exam, error) {
	var out model.Exam
	if err := c.doJSON(ctx, http.MethodGet, examPath(id), nil, "exam", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateExam(ctx context.Context, req model.ExamRequest) (*model.Exam, error) {
	var out model.Exam
	if err := c.doJSON(ctx, http.MethodPost, adminPrefix+"/exams", req, "exam", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateExam(ctx context.Context, id int64, req model.ExamRequest) (*model.Exam, error) {
	var out model.Exam
	if err := c.doJSON(ctx, http.MethodPut, examPath(id), req, "exam", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteExam(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, examPath(id), nil, "", nil)
}

func (c *Client) CreatePart(ctx context.Context, examID int64, req model.PartRequest) (*model.Part, error) {
	var out model.Part
	if err := c.doJSON(ctx, http.MethodPost, examPath(examID)+"/parts", req, "part", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePart(ctx context.Context, id int64, req model.PartRequest) (*model.Part, error) {
	var out model.Part
	if err := c.doJSON(ctx, http.MethodPut, partPath(id), req, "part", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePart(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, partPath(id), nil, "", nil)
}

func (c *Client) CreateQuestion(ctx context.Context, partID int64, req model.QuestionRequest) (*model.Question, error) {
	var out model.Question
	if err := c.doJSON(ctx, http.MethodPost, partPath(partID)+"/questions", req, "question", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateQuestion(ctx context.Context, id int64, req model.QuestionRequest) (*model.Question, error) {
	var out model.Question
	if err := c.doJSON(ctx, http.MethodPut, questionPath(id), req, "question", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteQuestion(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, questionPath(id), nil, "", nil)
}

// UploadMedia sends file as the "file" field of a multipart form. The
// server stores it and sets the question's slot to the returned URL.
func (c *Client) UploadMedia(ctx context.Context, questionID int64, kind model.MediaKind, file composer.MediaFile) (*model.MediaUpload, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown media kind %q", composer.ErrInvalidMedia, kind)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}

	var out model.MediaUpload
	path := questionPath(questionID) + "/upload-" + string(kind)
	if _, err := c.do(ctx, http.MethodPost, path, buf.Bytes(), w.FormDataContentType(), "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func examPath(id int64) string     { return adminPrefix + "/exams/" + strconv.FormatInt(id, 10) }
func partPath(id int64) string     { return adminPrefix + "/parts/" + strconv.FormatInt(id, 10) }
func questionPath(id int64) string { return adminPrefix + "/questions/" + strconv.FormatInt(id, 10) }

type envelope struct {
	Data       json.RawMessage      `json:"data"`
	Error      *response.ErrorBody  `json:"error"`
	Pagination *response.Pagination `json:"pagination"`
	Metadata   response.Metadata    `json:"metadata"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, key string, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = b
	}
	_, err := c.do(ctx, method, path, body, "application/json", key, out)
	return err
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// do sends the request, retrying idempotent methods on transport errors and
// 5xx responses. When key is set the payload is read from data[key].
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType, key string, out any) (*envelope, error) {
	attempts := 1
	if idempotent(method) && c.retries > 0 {
		attempts += c.retries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			c.log.Debug().Err(lastErr).Str("method", method).Str("path", path).Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		env, err := c.attempt(ctx, method, path, body, contentType, key, out)
		if err == nil {
			return env, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !errors.Is(err, composer.ErrNetwork) {
			return nil, err
		}
		lastErr = err
	}
	c.log.Warn().Err(lastErr).Str("method", method).Str("path", path).Int("attempts", attempts).Msg("Request failed")
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte, contentType, key string, out any) (*envelope, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, composer.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w: %v", method, path, composer.ErrNetwork, err)
	}

	var env envelope
	var decodeErr error
	if len(raw) > 0 {
		decodeErr = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr != nil {
			return nil, mapError(method, path, resp.StatusCode, nil)
		}
		return nil, mapError(method, path, resp.StatusCode, &env)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, decodeErr)
	}
	if out != nil {
		if err := decodeData(env.Data, key, out); err != nil {
			return nil, fmt.Errorf("decode %s %s data: %w", method, path, err)
		}
	}
	return &env, nil
}

func decodeData(data json.RawMessage, key string, out any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if key != "" {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		inner, ok := wrapped[key]
		if !ok {
			return fmt.Errorf("missing %q", key)
		}
		data = inner
	}
	return json.Unmarshal(data, out)
}
