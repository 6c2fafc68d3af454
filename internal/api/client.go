package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "EVV_HTTP_TIMEOUT"
	apiTokenEnvKey     = "EVV_API_TOKEN"
	adminTokenEnvKey   = "EVV_ADMIN_TOKEN"
	adminTokenHeader   = "X-Admin-Token"
	adminPathPrefix    = "/api/v1/admin/"

	// ActorIDHeader and ActorRoleHeader carry the identity resolved upstream.
	ActorIDHeader   = "X-Actor-Id"
	ActorRoleHeader = "X-Actor-Role"
	// ContentHashHeader carries the stored digest on downloads.
	ContentHashHeader = "X-Content-Hash"
)

// Client is a simple HTTP client for the evidencevault API.
type Client struct {
	baseURL    string
	http       *http.Client
	authToken  string
	adminToken string
	actorID    string
	actorRole  string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken:  strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// WithActor sets the identity headers sent with every request.
func (c *Client) WithActor(id, role string) *Client {
	c.actorID = strings.TrimSpace(id)
	c.actorRole = strings.TrimSpace(role)
	return c
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Upload streams content as a multipart upload for caseID.
func (c *Client) Upload(ctx context.Context, caseID, filename string, content io.Reader) (UploadResponse, error) {
	var resp UploadResponse

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("caseId", caseID); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, content); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/images", pr)
	if err != nil {
		_ = pr.Close()
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setHeaders(req)

	httpResp, err := c.uploadClient().Do(req)
	if err != nil {
		_ = pr.Close()
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

// Download streams evidence content into w.
func (c *Client) Download(ctx context.Context, id, reason string, w io.Writer) (DownloadInfo, error) {
	var info DownloadInfo
	query := url.Values{}
	if reason != "" {
		query.Set("reason", reason)
	}
	endpoint := c.baseURL + "/api/v1/images/" + url.PathEscape(id) + "/download"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return info, err
	}
	c.setHeaders(req)
	resp, err := c.uploadClient().Do(req)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return info, decodeError(resp)
	}

	info.ContentType = resp.Header.Get("Content-Type")
	info.ContentHash = resp.Header.Get(ContentHashHeader)
	info.Length = resp.ContentLength
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		info.Filename = params["filename"]
	}
	_, err = io.Copy(w, resp.Body)
	return info, err
}

func (c *Client) GetEvidence(ctx context.Context, id string) (EvidenceResponse, error) {
	var resp EvidenceResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/images/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) FindByCase(ctx context.Context, caseID string) ([]EvidenceResponse, error) {
	var resp []EvidenceResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/images/case/"+url.PathEscape(caseID), nil, &resp)
	return resp, err
}

// Delete returns false when the item does not exist.
func (c *Client) Delete(ctx context.Context, id, reason string) (bool, error) {
	query := url.Values{}
	query.Set("reason", reason)
	err := c.do(ctx, http.MethodDelete, "/api/v1/images/"+url.PathEscape(id), query, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return false, nil
	}
	return err == nil, err
}

func (c *Client) UpdateStatus(ctx context.Context, id, status string) (StatusUpdateResponse, error) {
	var resp StatusUpdateResponse
	query := url.Values{}
	query.Set("status", status)
	err := c.do(ctx, http.MethodPut, "/api/v1/images/"+url.PathEscape(id)+"/analysis-status", query, &resp)
	return resp, err
}

func (c *Client) CustodyTrail(ctx context.Context, id string, after int64, limit int) (CustodyPageResponse, error) {
	var resp CustodyPageResponse
	query := url.Values{}
	if after > 0 {
		query.Set("after", strconv.FormatInt(after, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/images/"+url.PathEscape(id)+"/custody", query, &resp)
	return resp, err
}

func (c *Client) VerifyCustody(ctx context.Context, id string) (ChainReportResponse, error) {
	var resp ChainReportResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/images/"+url.PathEscape(id)+"/custody/verify", nil, &resp)
	return resp, err
}

// Purge runs one purge sweep on the server. Without apply it only counts.
func (c *Client) Purge(ctx context.Context, batchSize int, apply bool) (PurgeResponse, error) {
	var resp PurgeResponse
	query := url.Values{}
	if batchSize > 0 {
		query.Set("batch", strconv.Itoa(batchSize))
	}
	query.Set("apply", strconv.FormatBool(apply))
	err := c.do(ctx, http.MethodPost, adminPathPrefix+"purge", query, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// uploadClient has no overall timeout; streams are bounded by ctx instead.
func (c *Client) uploadClient() *http.Client {
	clone := *c.http
	clone.Timeout = 0
	return &clone
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setHeaders(req *http.Request) {
	if req == nil {
		return
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.actorID != "" {
		req.Header.Set(ActorIDHeader, c.actorID)
	}
	if c.actorRole != "" {
		req.Header.Set(ActorRoleHeader, c.actorRole)
	}
	if c.adminToken != "" && strings.HasPrefix(req.URL.Path, adminPathPrefix) {
		req.Header.Set(adminTokenHeader, c.adminToken)
	}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
