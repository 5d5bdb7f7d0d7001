// Package vault is a client for the external key/value secret store. The
// vault is the system of record for every secret value; nothing here caches
// or persists values.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/viagen-dev/viagen-sdk-sub000/internal/scope"
)

const (
	loginPath   = "/v1/auth/universal-auth/login"
	foldersPath = "/v1/folders"
	secretsPath = "/v3/secrets/raw"
	maxBodySize = 1 << 20
	errBodySize = 512
)

// Secret is a single key/value pair read from a scope.
type Secret struct {
	Key   string
	Value string
}

// SetOptions tunes SetSecret.
type SetOptions struct {
	// SkipEnsure skips folder creation when the caller knows the path exists.
	SkipEnsure bool
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WorkspaceID  string
	Environment  string
	HTTPClient   *http.Client
	// Timeout bounds every individual vault call. Zero disables the deadline.
	Timeout time.Duration
	Cache   *TokenCache
	Locks   *KeyLocker
	Logger  *zap.Logger
}

// Client talks to the vault HTTP API.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	workspaceID  string
	environment  string
	httpClient   *http.Client
	timeout      time.Duration
	cache        *TokenCache
	locks        *KeyLocker
	logger       *zap.Logger
	tracer       trace.Tracer
}

// NewClient constructs a vault client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewTokenCache()
	}
	locks := opts.Locks
	if locks == nil {
		locks = NewKeyLocker()
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		workspaceID:  opts.WorkspaceID,
		environment:  opts.Environment,
		httpClient:   httpClient,
		timeout:      opts.Timeout,
		cache:        cache,
		locks:        locks,
		logger:       opts.Logger,
		tracer:       otel.Tracer("github.com/viagen-dev/viagen-sdk-sub000/internal/vault"),
	}
}

// AccessToken returns a bearer token, logging in when the cached one is
// missing or about to expire.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.cache.Token(ctx, c.login)
}

func (c *Client) login(ctx context.Context) (string, time.Duration, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(map[string]string{
		"clientId":     c.clientID,
		"clientSecret": c.clientSecret,
	})
	if err != nil {
		return "", 0, fmt.Errorf("encode login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("vault login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", 0, fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, &AuthError{Status: resp.StatusCode, Body: truncate(body)}
	}

	var out struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", 0, fmt.Errorf("decode login response: %w", err)
	}
	if out.AccessToken == "" {
		return "", 0, &AuthError{Status: resp.StatusCode, Body: "empty access token"}
	}
	c.log().Debug("vault token refreshed", zap.Int64("expires_in", out.ExpiresIn))
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}

// EnsureFolder creates every segment of path from the root inward. Segments
// that already exist (400) are skipped.
func (c *Client) EnsureFolder(ctx context.Context, path scope.Path) error {
	ctx, span := c.startSpan(ctx, "vault.EnsureFolder", path, "")
	defer span.End()

	parent := "/"
	for _, segment := range path.Segments() {
		body := map[string]string{
			"workspaceId": c.workspaceID,
			"environment": c.environment,
			"name":        segment,
			"path":        parent,
		}
		err := c.do(ctx, http.MethodPost, foldersPath, nil, body, nil)
		switch {
		case err == nil:
			c.log().Debug("vault folder created", zap.String("path", parent), zap.String("name", segment))
		case isStatus(err, http.StatusBadRequest):
			// already exists
		default:
			recordError(span, err)
			return fmt.Errorf("ensure folder %s: %w", path, err)
		}
		parent = strings.TrimSuffix(parent, "/") + "/" + segment
	}
	return nil
}

// GetSecret reads key at path. A missing key returns ok=false and no error.
func (c *Client) GetSecret(ctx context.Context, path scope.Path, key string) (string, bool, error) {
	ctx, span := c.startSpan(ctx, "vault.GetSecret", path, key)
	defer span.End()

	if err := validKey(key); err != nil {
		return "", false, err
	}
	var out struct {
		Secret struct {
			SecretKey   string `json:"secretKey"`
			SecretValue string `json:"secretValue"`
		} `json:"secret"`
	}
	err := c.do(ctx, http.MethodGet, secretsPath+"/"+url.PathEscape(key), c.secretQuery(path), nil, &out)
	if err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		recordError(span, err)
		return "", false, fmt.Errorf("get secret %s: %w", key, err)
	}
	return out.Secret.SecretValue, true, nil
}

// SetSecret creates or updates key at path. Writers to the same key are
// serialized within this process; the create-vs-update probe is still a
// read-then-write against the vault, so a concurrent create that wins the
// race is absorbed by retrying as an update.
func (c *Client) SetSecret(ctx context.Context, path scope.Path, key, value string, opts SetOptions) error {
	ctx, span := c.startSpan(ctx, "vault.SetSecret", path, key)
	defer span.End()

	if err := validKey(key); err != nil {
		return err
	}
	unlock := c.locks.Lock(path.String() + "\x00" + key)
	defer unlock()

	if !opts.SkipEnsure {
		if err := c.EnsureFolder(ctx, path); err != nil {
			recordError(span, err)
			return err
		}
	}

	_, exists, err := c.GetSecret(ctx, path, key)
	if err != nil {
		recordError(span, err)
		return err
	}

	body := map[string]string{"secretValue": value}
	endpoint := secretsPath + "/" + url.PathEscape(key)
	if !exists {
		createBody := map[string]string{"secretValue": value, "type": "shared"}
		err = c.do(ctx, http.MethodPost, endpoint, c.secretQuery(path), createBody, nil)
		if err == nil {
			return nil
		}
		if !isStatus(err, http.StatusBadRequest) {
			recordError(span, err)
			return fmt.Errorf("create secret %s: %w", key, err)
		}
		c.log().Info("vault create raced, retrying as update", zap.String("path", path.String()), zap.String("key", key))
	}
	if err := c.do(ctx, http.MethodPatch, endpoint, c.secretQuery(path), body, nil); err != nil {
		recordError(span, err)
		return fmt.Errorf("update secret %s: %w", key, err)
	}
	return nil
}

// DeleteSecret removes key at path. Deleting a missing key succeeds.
func (c *Client) DeleteSecret(ctx context.Context, path scope.Path, key string) error {
	ctx, span := c.startSpan(ctx, "vault.DeleteSecret", path, key)
	defer span.End()

	if err := validKey(key); err != nil {
		return err
	}
	unlock := c.locks.Lock(path.String() + "\x00" + key)
	defer unlock()

	err := c.do(ctx, http.MethodDelete, secretsPath+"/"+url.PathEscape(key), c.secretQuery(path), nil, nil)
	if err != nil && !IsNotFound(err) {
		recordError(span, err)
		return fmt.Errorf("delete secret %s: %w", key, err)
	}
	return nil
}

// ListSecrets returns every secret at path. A missing folder yields an empty list.
func (c *Client) ListSecrets(ctx context.Context, path scope.Path) ([]Secret, error) {
	ctx, span := c.startSpan(ctx, "vault.ListSecrets", path, "")
	defer span.End()

	var out struct {
		Secrets []struct {
			SecretKey   string `json:"secretKey"`
			SecretValue string `json:"secretValue"`
		} `json:"secrets"`
	}
	if err := c.do(ctx, http.MethodGet, secretsPath, c.secretQuery(path), nil, &out); err != nil {
		if IsNotFound(err) {
			return []Secret{}, nil
		}
		recordError(span, err)
		return nil, fmt.Errorf("list secrets %s: %w", path, err)
	}
	secrets := make([]Secret, 0, len(out.Secrets))
	for _, s := range out.Secrets {
		secrets = append(secrets, Secret{Key: s.SecretKey, Value: s.SecretValue})
	}
	return secrets, nil
}

func (c *Client) secretQuery(path scope.Path) url.Values {
	q := url.Values{}
	q.Set("workspaceId", c.workspaceID)
	q.Set("environment", c.environment)
	q.Set("secretPath", "/"+path.String())
	return q
}

// do issues an authenticated request. A 401 drops the cached token and the
// request is retried once with a fresh login.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, in, out any) error {
	err := c.doOnce(ctx, method, endpoint, query, in, out)
	if isStatus(err, http.StatusUnauthorized) {
		c.cache.Invalidate()
		err = c.doOnce(ctx, method, endpoint, query, in, out)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, query url.Values, in, out any) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read vault response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: endpoint, Status: resp.StatusCode, Body: truncate(raw)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode vault response: %w", err)
		}
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) startSpan(ctx context.Context, name string, path scope.Path, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("vault.scope", path.Level.String()),
		attribute.String("vault.path", path.String()),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("vault.key", key))
	}
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (c *Client) log() *zap.Logger {
	if c != nil && c.logger != nil {
		return c.logger
	}
	return zap.L()
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

var errEmptyKey = errors.New("vault: empty secret key")

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errEmptyKey
	}
	return nil
}

func truncate(body []byte) string {
	if len(body) > errBodySize {
		return string(body[:errBodySize]) + "..."
	}
	return string(body)
}
