package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/models"
	"github.com/your-org/oceanlens/pkg/dto"
)

const (
	csrfHeader    = "X-CSRF-TOKEN"
	createdLayout = "2006-01-02 15:04:05"
	jsonType      = "application/json"
)

type Options struct {
	BaseURL        string
	Timeout        time.Duration
	PredictTimeout time.Duration
	CSRFToken      string
	Headers        map[string]string
}

// Client talks to the personality-analysis backend. Requests are never
// retried; callers decide whether an error is worth repeating.
type Client struct {
	rc             *resty.Client
	timeout        time.Duration
	predictTimeout time.Duration
}

func New(opts Options) *Client {
	rc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetRetryCount(0).
		SetHeader("Accept", jsonType).
		SetHeaders(opts.Headers).
		SetError(&errorBody{}).
		SetLogger(slogLogger{slog.Default().With("component", "backend_client")})

	// Per-request contexts apply the shorter read timeout; the client-wide
	// one is the ceiling for uploads.
	if ceiling := max(opts.Timeout, opts.PredictTimeout); ceiling > 0 {
		rc.SetTimeout(ceiling)
	}
	if opts.CSRFToken != "" {
		rc.SetHeader(csrfHeader, opts.CSRFToken)
	}

	return &Client{
		rc:             rc,
		timeout:        opts.Timeout,
		predictTimeout: opts.PredictTimeout,
	}
}

// Predict uploads the video and subject fields and returns the created record.
func (c *Client) Predict(ctx context.Context, file media.File, subject models.SubjectMetadata) (*models.DetectionRecord, error) {
	ctx, cancel := withTimeout(ctx, c.predictTimeout)
	defer cancel()

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer src.Close()

	name := file.Name
	if name == "" {
		name = "video"
	}

	var resp dto.DetectionResponse
	r, err := c.request(ctx).
		SetMultipartField("video", name, file.MediaType, src).
		SetMultipartFormData(map[string]string{
			"name":   subject.Name,
			"age":    strconv.Itoa(subject.Age),
			"gender": string(subject.Gender),
		}).
		SetResult(&resp).
		Post("/predict")
	if err := check(r, err); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	rec, err := toRecord(resp)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return &rec, nil
}

// History lists the current user's detections, newest first.
func (c *Client) History(ctx context.Context) ([]models.DetectionRecord, error) {
	var resp []dto.DetectionResponse
	if err := c.getJSON(ctx, "/history", nil, &resp); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return toRecords(resp)
}

func (c *Client) Detection(ctx context.Context, id int64) (*models.DetectionRecord, error) {
	var resp dto.DetectionResponse
	if err := c.getJSON(ctx, "/history/"+idParam(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get detection %d: %w", id, err)
	}
	rec, err := toRecord(resp)
	if err != nil {
		return nil, fmt.Errorf("get detection %d: %w", id, err)
	}
	return &rec, nil
}

func (c *Client) DeleteDetection(ctx context.Context, id int64) error {
	if err := c.delete(ctx, "/history/"+idParam(id)); err != nil {
		return fmt.Errorf("delete detection %d: %w", id, err)
	}
	return nil
}

// Insights returns the insight bundle of a detection. A missing bundle is
// reported as ErrNotFound.
func (c *Client) Insights(ctx context.Context, id int64) (*models.InsightBundle, error) {
	var resp dto.InsightsResponse
	if err := c.getJSON(ctx, "/history/"+idParam(id)+"/insights", nil, &resp); err != nil {
		return nil, fmt.Errorf("get insights %d: %w", id, err)
	}
	if resp.Insights == nil {
		return nil, fmt.Errorf("get insights %d: %w", id, ErrNotFound)
	}
	return resp.Insights, nil
}

// Report downloads the PDF report of a detection.
func (c *Client) Report(ctx context.Context, id int64) ([]byte, string, error) {
	return c.download(ctx, "/history/"+idParam(id)+"/report")
}

func (c *Client) ReportPreview(ctx context.Context, id int64) ([]byte, string, error) {
	return c.download(ctx, "/history/"+idParam(id)+"/report/preview")
}

// CurrentUser returns the authenticated principal.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.getJSON(ctx, "/auth/me", nil, &u); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &u, nil
}

func (c *Client) AdminStatistics(ctx context.Context) (*models.Statistics, error) {
	var s models.Statistics
	if err := c.getJSON(ctx, "/admin/statistics", nil, &s); err != nil {
		return nil, fmt.Errorf("get statistics: %w", err)
	}
	return &s, nil
}

func (c *Client) AdminTimeline(ctx context.Context, days int) (*models.Timeline, error) {
	var tl models.Timeline
	query := map[string]string{"days": itoaNonZero(days)}
	if err := c.getJSON(ctx, "/admin/statistics/timeline", query, &tl); err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}
	return &tl, nil
}

func (c *Client) AdminDetections(ctx context.Context, q models.DetectionQuery) (*models.DetectionPage, error) {
	query := map[string]string{
		"page":     itoaNonZero(q.Page),
		"per_page": itoaNonZero(q.PerPage),
		"user_id":  itoaNonZero(int(q.UserID)),
		"search":   q.Search,
	}

	var resp dto.DetectionListResponse
	if err := c.getJSON(ctx, "/admin/detections", query, &resp); err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	recs, err := toRecords(resp.Detections)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	return &models.DetectionPage{Detections: recs, Pagination: resp.Pagination}, nil
}

// AdminDetection returns any user's detection together with its insights.
func (c *Client) AdminDetection(ctx context.Context, id int64) (*models.AdminDetection, error) {
	var resp dto.AdminDetectionResponse
	if err := c.getJSON(ctx, "/admin/detections/"+idParam(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get admin detection %d: %w", id, err)
	}
	rec, err := toRecord(resp.DetectionResponse)
	if err != nil {
		return nil, fmt.Errorf("get admin detection %d: %w", id, err)
	}
	return &models.AdminDetection{DetectionRecord: rec, Insights: resp.Insights}, nil
}

func (c *Client) AdminDeleteDetection(ctx context.Context, id int64) error {
	if err := c.delete(ctx, "/admin/detections/"+idParam(id)); err != nil {
		return fmt.Errorf("delete admin detection %d: %w", id, err)
	}
	return nil
}

func (c *Client) AdminUsers(ctx context.Context, q models.UserQuery) (*models.UserPage, error) {
	query := map[string]string{
		"page":     itoaNonZero(q.Page),
		"per_page": itoaNonZero(q.PerPage),
		"search":   q.Search,
	}

	var resp dto.UserListResponse
	if err := c.getJSON(ctx, "/admin/users", query, &resp); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return &models.UserPage{Users: resp.Users, Pagination: resp.Pagination}, nil
}

func (c *Client) AdminUser(ctx context.Context, id int64) (*models.UserDetail, error) {
	var resp dto.UserDetailResponse
	if err := c.getJSON(ctx, "/admin/users/"+idParam(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	recs, err := toRecords(resp.Detections)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &models.UserDetail{
		AdminUser:     resp.AdminUser,
		Detections:    recs,
		AverageScores: resp.AverageScores,
	}, nil
}

// UpdateUserRole assigns role to the user and returns the updated user.
func (c *Client) UpdateUserRole(ctx context.Context, id int64, role models.Role) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var resp dto.RoleUpdateResponse
	r, err := c.request(ctx).
		SetBody(dto.RoleUpdateRequest{Role: role}).
		SetResult(&resp).
		Put("/admin/users/" + idParam(id) + "/role")
	if err := check(r, err); err != nil {
		return nil, fmt.Errorf("update role of user %d: %w", id, err)
	}
	return &resp.User, nil
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	if err := c.delete(ctx, "/admin/users/"+idParam(id)); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}

// request starts a request that decodes every body as JSON; backends
// built on frameworks that omit the Content-Type are common.
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.rc.R().
		SetContext(ctx).
		ForceContentType(jsonType)
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string]string, out any) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	r, err := c.request(ctx).
		SetQueryParams(nonEmpty(query)).
		SetResult(out).
		Get(path)
	return check(r, err)
}

func (c *Client) delete(ctx context.Context, path string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	r, err := c.request(ctx).Delete(path)
	return check(r, err)
}

func (c *Client) download(ctx context.Context, path string) ([]byte, string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	r, err := c.rc.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(path)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", path, err)
	}
	body := r.RawBody()
	defer body.Close()

	if r.IsError() {
		_, _ = io.Copy(io.Discard, body)
		return nil, "", fmt.Errorf("download %s: %w", path, &APIError{Status: r.StatusCode(), Message: "Download failed"})
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	return data, r.Header().Get("Content-Type"), nil
}

// check turns a resty outcome into the package's error model. A response
// that arrived but could not be decoded is ErrInvalidResponse; transport
// failures are returned unchanged so Retryable can classify them.
func check(r *resty.Response, err error) error {
	if err != nil {
		if r != nil && r.RawResponse != nil {
			return fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
		}
		return err
	}
	if r.IsError() {
		return &APIError{Status: r.StatusCode(), Message: errorMessage(r)}
	}
	return nil
}

// errorBody covers the shapes the backend and its proxies use for errors.
type errorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

func (b *errorBody) text() string {
	if b.Message != "" {
		return b.Message
	}
	if len(b.Error) == 0 {
		return ""
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b.Error, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	var s string
	if json.Unmarshal(b.Error, &s) == nil {
		return s
	}
	return ""
}

// errorMessage picks the human readable message out of an error response.
func errorMessage(r *resty.Response) string {
	const fallback = "Request failed"

	if b, ok := r.Error().(*errorBody); ok && b != nil {
		if s := b.text(); s != "" {
			return s
		}
	}
	if !strings.Contains(r.Header().Get("Content-Type"), jsonType) {
		if s := strings.TrimSpace(r.String()); s != "" {
			return s
		}
	}
	return fallback
}

func toRecords(in []dto.DetectionResponse) ([]models.DetectionRecord, error) {
	out := make([]models.DetectionRecord, 0, len(in))
	for _, d := range in {
		rec, err := toRecord(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func toRecord(d dto.DetectionResponse) (models.DetectionRecord, error) {
	if err := d.Results.Validate(); err != nil {
		return models.DetectionRecord{}, fmt.Errorf("%w: detection %d: %v", ErrInvalidResponse, d.ID, err)
	}

	rec := models.DetectionRecord{
		ID:      d.ID,
		Subject: models.SubjectMetadata{Name: d.Name},
		Scores:  d.Results,
	}
	if d.Age != nil {
		rec.Subject.Age = *d.Age
	}
	if d.Gender != nil {
		rec.Subject.Gender = models.Gender(*d.Gender)
	}
	if d.ImagePath != nil {
		rec.ImagePath = *d.ImagePath
	}
	if d.UserID != nil {
		rec.OwnerID = *d.UserID
	}
	if d.User != nil {
		rec.Owner = &models.UserRef{ID: d.User.ID, Name: d.User.Name, Email: d.User.Email}
	}
	if d.CreatedAt != "" {
		t, err := parseCreatedAt(d.CreatedAt)
		if err != nil {
			return models.DetectionRecord{}, fmt.Errorf("%w: detection %d: %v", ErrInvalidResponse, d.ID, err)
		}
		rec.CreatedAt = t
	}
	return rec, nil
}

func parseCreatedAt(s string) (time.Time, error) {
	for _, layout := range []string{createdLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse created_at %q", s)
}

func idParam(id int64) string {
	return strconv.FormatInt(id, 10)
}

func nonEmpty(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func itoaNonZero(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
