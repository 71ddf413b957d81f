package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "CAPSD_HTTP_TIMEOUT"
	subjectEnvKey      = "CAPSD_SUBJECT"
	adminTokenEnvKey   = "CAPSD_ADMIN_TOKEN"

	// SubjectHeader carries the authenticated principal, set by the
	// identity layer (or the CLI when talking to a local server).
	SubjectHeader = "X-Capsd-Subject"

	// AdminTokenHeader authenticates admin endpoints.
	AdminTokenHeader = "X-Admin-Token"
)

// Client is a simple HTTP client for the capsd API.
type Client struct {
	baseURL    string
	http       *http.Client
	subject    string
	adminToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		subject:    strings.TrimSpace(os.Getenv(subjectEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// WithSubject returns a copy of the client acting as the given subject.
func (c *Client) WithSubject(subject string) *Client {
	clone := *c
	clone.subject = strings.TrimSpace(subject)
	return &clone
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

func (c *Client) EnsureCapsule(ctx context.Context) (EnsureCapsuleResponse, error) {
	var resp EnsureCapsuleResponse
	err := c.do(ctx, http.MethodPost, "/v1/capsules", nil, nil, &resp)
	return resp, err
}

func (c *Client) GetCapsule(ctx context.Context) (Capsule, error) {
	var resp Capsule
	err := c.do(ctx, http.MethodGet, "/v1/capsules/self", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateMemory(ctx context.Context, req CreateMemoryRequest) (Memory, error) {
	var resp Memory
	err := c.do(ctx, http.MethodPost, "/v1/memories", nil, req, &resp)
	return resp, err
}

func (c *Client) GetMemory(ctx context.Context, id string) (Memory, error) {
	var resp Memory
	err := c.do(ctx, http.MethodGet, "/v1/memories/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) DeleteMemory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/memories/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) ListMemories(ctx context.Context, query url.Values) (MemoryListResponse, error) {
	var resp MemoryListResponse
	err := c.do(ctx, http.MethodGet, "/v1/memories", query, nil, &resp)
	return resp, err
}

func (c *Client) ListAssets(ctx context.Context, memoryID string) ([]Asset, error) {
	var resp []Asset
	err := c.do(ctx, http.MethodGet, "/v1/memories/"+url.PathEscape(memoryID)+"/assets", nil, nil, &resp)
	return resp, err
}

func (c *Client) BeginUpload(ctx context.Context, req BeginUploadRequest) (BeginUploadResponse, error) {
	var resp BeginUploadResponse
	err := c.do(ctx, http.MethodPost, "/v1/uploads", nil, req, &resp)
	return resp, err
}

// PutChunk sends one raw chunk body.
func (c *Client) PutChunk(ctx context.Context, sessionID string, index int, chunk []byte) (PutChunkResponse, error) {
	var resp PutChunkResponse

	endpoint := fmt.Sprintf("%s/v1/uploads/%s/chunks/%d", c.baseURL, url.PathEscape(sessionID), index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(chunk))
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.setSubjectHeader(req)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func (c *Client) CommitUpload(ctx context.Context, sessionID string, req CommitUploadRequest) (CommitUploadResponse, error) {
	var resp CommitUploadResponse
	err := c.do(ctx, http.MethodPost, "/v1/uploads/"+url.PathEscape(sessionID)+"/commit", nil, req, &resp)
	return resp, err
}

func (c *Client) CancelUpload(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/uploads/"+url.PathEscape(sessionID), nil, nil, nil)
}

func (c *Client) MintToken(ctx context.Context, req MintTokenRequest) (MintTokenResponse, error) {
	var resp MintTokenResponse
	err := c.do(ctx, http.MethodPost, "/v1/tokens", nil, req, &resp)
	return resp, err
}

func (c *Client) MintTokensBulk(ctx context.Context, req MintTokensBulkRequest) (MintTokensBulkResponse, error) {
	var resp MintTokensBulkResponse
	err := c.do(ctx, http.MethodPost, "/v1/tokens/bulk", nil, req, &resp)
	return resp, err
}

// FetchAsset streams a gateway asset to w using a capability token instead
// of the subject header. It returns the response content type.
func (c *Client) FetchAsset(ctx context.Context, memoryID, variant, assetID, token string, w io.Writer) (string, error) {
	query := url.Values{}
	if variant != "" {
		query.Set("variant", variant)
	}
	if assetID != "" {
		query.Set("asset_id", assetID)
	}

	endpoint := c.baseURL + "/v1/assets/" + url.PathEscape(memoryID)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	return resp.Header.Get("Content-Type"), nil
}

func (c *Client) GetQuota(ctx context.Context) (QuotaResponse, error) {
	var resp QuotaResponse
	err := c.do(ctx, http.MethodGet, "/v1/quota", nil, nil, &resp)
	return resp, err
}

func (c *Client) AddGrant(ctx context.Context, capsuleID string, req GrantRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/capsules/"+url.PathEscape(capsuleID)+"/grants", nil, req, nil)
}

func (c *Client) RemoveGrant(ctx context.Context, capsuleID string, req GrantRequest) error {
	return c.do(ctx, http.MethodDelete, "/v1/capsules/"+url.PathEscape(capsuleID)+"/grants", nil, req, nil)
}

func (c *Client) ListGrants(ctx context.Context, capsuleID string) (GrantList, error) {
	var resp GrantList
	err := c.do(ctx, http.MethodGet, "/v1/capsules/"+url.PathEscape(capsuleID)+"/grants", nil, nil, &resp)
	return resp, err
}

func (c *Client) AdminSweep(ctx context.Context) (SweepResponse, error) {
	var resp SweepResponse
	err := c.doAdmin(ctx, http.MethodPost, "/v1/admin/sweep", nil, &resp)
	return resp, err
}

func (c *Client) AdminGC(ctx context.Context) (GCResponse, error) {
	var resp GCResponse
	err := c.doAdmin(ctx, http.MethodPost, "/v1/admin/gc", nil, &resp)
	return resp, err
}

func (c *Client) AdminCreateUser(ctx context.Context, req CreateAdminUserRequest) (AdminUser, error) {
	var resp AdminUser
	err := c.doAdmin(ctx, http.MethodPost, "/v1/admin/users", req, &resp)
	return resp, err
}

func (c *Client) AdminListUsers(ctx context.Context) (AdminUserList, error) {
	var resp AdminUserList
	err := c.doAdmin(ctx, http.MethodGet, "/v1/admin/users", nil, &resp)
	return resp, err
}

func (c *Client) AdminSetUserDisabled(ctx context.Context, username string, disabled bool) (AdminUser, error) {
	var resp AdminUser
	err := c.doAdmin(ctx, http.MethodPatch, "/v1/admin/users/"+url.PathEscape(username), SetUserDisabledRequest{Disabled: &disabled}, &resp)
	return resp, err
}

func (c *Client) AdminDeleteUser(ctx context.Context, username string) error {
	return c.doAdmin(ctx, http.MethodDelete, "/v1/admin/users/"+url.PathEscape(username), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setSubjectHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doAdmin(ctx context.Context, method, path string, body any, out any) error {
	endpoint := c.baseURL + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setSubjectHeader(req)
	if c.adminToken != "" {
		req.Header.Set(AdminTokenHeader, c.adminToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      errResp.Code,
			ErrorCode: errResp.ErrorCode,
			Message:   errResp.Error,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: resp.Status}
}

func (c *Client) setSubjectHeader(req *http.Request) {
	if c.subject == "" || req == nil {
		return
	}
	req.Header.Set(SubjectHeader, c.subject)
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
