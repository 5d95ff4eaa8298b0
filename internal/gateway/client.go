// Package gateway はリモートサービス（identity, catalog, inventory, wishlist, payment）への
// GraphQL over HTTP クライアントを提供する。
//
// すべての呼び出しは呼び出し時点の最新アクセストークンをCredentialSourceから読み出し、
// Authorizationヘッダーに付与する。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/gamstore/internal/metrics"
)

const (
	// maxResponseSize はレスポンスボディの読み取り上限（4MB）。
	maxResponseSize = 4 << 20
	userAgent       = "gamstore/1.0"
)

// CredentialSource は呼び出し時点のアクセストークンを返す。
// 未ログインの場合は空文字を返す。
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// CredentialFunc は関数をCredentialSourceとして扱うアダプタ。
type CredentialFunc func(ctx context.Context) (string, error)

// AccessToken はCredentialSourceを実装する。
func (f CredentialFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Client は1つのサービスエンドポイントに対するGraphQLクライアント。
type Client struct {
	service    string
	endpoint   string
	httpClient *http.Client
	creds      CredentialSource
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewClient はClientを生成する。
// endpointは "<GATEWAY_BASE_URL>/<service path>" 形式の完全なURL。
func NewClient(service, endpoint string, httpClient *http.Client, creds CredentialSource, logger *slog.Logger, m metrics.MetricsCollector) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		service:    service,
		endpoint:   endpoint,
		httpClient: httpClient,
		creds:      creds,
		logger:     logger,
		metrics:    m,
	}
}

// Service はサービス名を返す。
func (c *Client) Service() string {
	return c.service
}

// Query はGraphQLリクエストを送信し、data.<field> の値を返す。
// 失敗時は *Error を返す。
func (c *Client) Query(ctx context.Context, field, query string, variables map[string]any) (gjson.Result, error) {
	start := time.Now()
	result, err := c.do(ctx, field, query, variables)

	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
		c.logger.Warn("gateway call failed",
			slog.String("service", c.service),
			slog.String("operation", field),
			slog.String("kind", outcome),
			slog.String("error", err.Error()),
		)
	}
	c.metrics.RecordGatewayCall(c.service, field, outcome, time.Since(start))

	return result, err
}

// Decode はQueryの結果をoutにデコードする。結果がnullの場合はKindNotFoundを返す。
func (c *Client) Decode(ctx context.Context, field, query string, variables map[string]any, out any) error {
	result, err := c.Query(ctx, field, query, variables)
	if err != nil {
		return err
	}
	if result.Type == gjson.Null {
		return c.newError(field, KindNotFound, 0, "", nil)
	}
	if err := json.Unmarshal([]byte(result.Raw), out); err != nil {
		return c.newError(field, KindDecode, 0, "", err)
	}
	return nil
}

// Bool はQueryの結果を真偽値として返す。
func (c *Client) Bool(ctx context.Context, field, query string, variables map[string]any) (bool, error) {
	result, err := c.Query(ctx, field, query, variables)
	if err != nil {
		return false, err
	}
	switch result.Type {
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	default:
		return false, c.newError(field, KindDecode, 0, fmt.Sprintf("expected boolean, got %s", result.Type), nil)
	}
}

func (c *Client) do(ctx context.Context, field, query string, variables map[string]any) (gjson.Result, error) {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return gjson.Result{}, c.newError(field, KindDecode, 0, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, c.newError(field, KindNetwork, 0, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	// トークンはゲートウェイ生成時ではなく呼び出しのたびに読む
	if c.creds != nil {
		token, err := c.creds.AccessToken(ctx)
		if err != nil {
			return gjson.Result{}, c.newError(field, KindUnauthenticated, 0, "failed to read credential", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, c.newError(field, KindNetwork, 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return gjson.Result{}, c.newError(field, KindNetwork, resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return gjson.Result{}, c.newError(field, KindUnauthenticated, resp.StatusCode, firstErrorMessage(body), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, c.newError(field, KindStatus, resp.StatusCode, firstErrorMessage(body), nil)
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, c.newError(field, KindDecode, resp.StatusCode, "response is not valid JSON", nil)
	}

	envelope := gjson.ParseBytes(body)
	if errs := envelope.Get("errors"); errs.IsArray() && len(errs.Array()) > 0 {
		kind := KindGraphQL
		for _, code := range errs.Get("#.extensions.code").Array() {
			if code.String() == "UNAUTHENTICATED" {
				kind = KindUnauthenticated
				break
			}
		}
		return gjson.Result{}, c.newError(field, kind, 0, errs.Get("0.message").String(), nil)
	}

	result := envelope.Get("data." + field)
	if !result.Exists() {
		return gjson.Result{}, c.newError(field, KindDecode, 0, fmt.Sprintf("field %q missing from response", field), nil)
	}
	return result, nil
}

func (c *Client) newError(field string, kind Kind, status int, message string, err error) *Error {
	if kind == KindNetwork && errors.Is(err, context.DeadlineExceeded) && message == "" {
		message = "timed out"
	}
	return &Error{
		Service:    c.service,
		Operation:  field,
		Kind:       kind,
		StatusCode: status,
		Message:    message,
		Err:        err,
	}
}

// firstErrorMessage はGraphQLエラー配列の先頭メッセージを返す。取得できない場合は空文字。
func firstErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	return gjson.GetBytes(body, "errors.0.message").String()
}
