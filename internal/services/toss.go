package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/silano08/tokingtoking/internal/metrics"
)

const (
	tossGenerateTokenPath  = "/api-partner/v1/apps-in-toss/user/oauth2/generate-token"
	tossLoginMePath        = "/api-partner/v1/apps-in-toss/user/oauth2/login-me"
	tossGetOrderStatusPath = "/api-partner/v1/apps-in-toss/order/get-order-status"

	tossMaxResponseBytes = 1 << 20
)

// TossClient calls the Apps-in-Toss partner API over mutual TLS.
type TossClient struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

// NewTossClient loads the partner client certificate when both paths are set.
// Without a certificate the client still works against non-mTLS endpoints
// such as a local sandbox.
func NewTossClient(baseURL, certPath, keyPath string, m *metrics.Metrics) (*TossClient, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load Toss mTLS certificate: %w", err)
		}
		transport.TLSClientConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}
	return &TossClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport, Timeout: 30 * time.Second},
		metrics: m,
	}, nil
}

// ExchangeAuthorizationCode trades a login authorization code for a Toss
// access token.
func (c *TossClient) ExchangeAuthorizationCode(ctx context.Context, code, referrer string) (string, error) {
	success, err := c.call(ctx, "generate_token", http.MethodPost, tossGenerateTokenPath,
		map[string]string{"authorizationCode": code, "referrer": referrer}, nil)
	if err != nil {
		return "", err
	}
	token := success.Get("accessToken").String()
	if token == "" {
		return "", upstream("toss", errors.New("generate-token response has no accessToken"))
	}
	return token, nil
}

// GetUserKey returns the stable Toss user key for a Toss access token.
func (c *TossClient) GetUserKey(ctx context.Context, accessToken string) (string, error) {
	success, err := c.call(ctx, "login_me", http.MethodGet, tossLoginMePath, nil,
		map[string]string{"Authorization": "Bearer " + accessToken})
	if err != nil {
		return "", err
	}
	key := success.Get("userKey").String()
	if key == "" {
		return "", upstream("toss", errors.New("login-me response has no userKey"))
	}
	return key, nil
}

// GetOrderStatus returns the partner's status string for an in-app purchase.
func (c *TossClient) GetOrderStatus(ctx context.Context, orderID, userKey string) (string, error) {
	success, err := c.call(ctx, "order_status", http.MethodPost, tossGetOrderStatusPath,
		map[string]string{"orderId": orderID}, map[string]string{"x-toss-user-key": userKey})
	if err != nil {
		return "", err
	}
	return success.Get("status").String(), nil
}

// call performs one request and unwraps the {resultType, success, error}
// envelope, returning the success payload.
func (c *TossClient) call(ctx context.Context, op, method, path string, body interface{}, headers map[string]string) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	result, err := c.do(req, op)
	c.metrics.ObserveUpstream("toss", op, err, time.Since(start))
	if err != nil {
		return gjson.Result{}, upstream("toss", err)
	}
	return result, nil
}

func (c *TossClient) do(req *http.Request, op string) (gjson.Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, tossMaxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s read body: %w", op, err)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("%s returned a non-JSON body (HTTP %d)", op, resp.StatusCode)
	}

	env := gjson.ParseBytes(raw)
	if env.Get("resultType").String() != "SUCCESS" {
		reason := env.Get("error.reason").String()
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return gjson.Result{}, fmt.Errorf("%s failed: %s", op, reason)
	}
	return env.Get("success"), nil
}
