// internal/credstore/client.go

// Package credstore talks to the external credential store service. The
// store owns retries-against-its-database, caching, and decryption; this
// client only needs the fetch contract.
package credstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
	"github.com/xkilldash9x/sessionforge/internal/config"
)

// Client fetches per-user session credentials. It must run before any
// browser resource is created so bad input fails within milliseconds.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	logger  *zap.Logger
}

// credentialsPayload is the store's wire format.
type credentialsPayload struct {
	Username          string `json:"username"`
	DecryptedPassword string `json:"decrypted_password"`
	Link1             string `json:"link_1"`
	Link2             string `json:"link_2"`
	Link3             string `json:"link_3"`
}

// NewClient builds a credential store client with bounded retries, so a
// transient upstream blip does not surface as an unreachable store.
func NewClient(cfg config.CredStoreConfig, logger *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = &leveledZap{logger.Named("credstore_http")}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    rc,
		logger:  logger.Named("credstore"),
	}
}

// Fetch retrieves the credentials for a user id. A failed transport round
// trip maps to CredentialStoreUnreachable; a non-2xx response or a payload
// with missing required fields maps to IncompleteCredentials.
func (c *Client) Fetch(ctx context.Context, userID string) (schemas.SessionCredentials, error) {
	endpoint := fmt.Sprintf("%s/credentials/%s", c.baseURL, url.PathEscape(userID))

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return schemas.SessionCredentials{}, schemas.NewEngineError(
			schemas.ErrKindCredentialStoreUnreachable, "building request: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Credential store request failed.", zap.String("user_id", userID), zap.Error(err))
		return schemas.SessionCredentials{}, schemas.NewEngineError(
			schemas.ErrKindCredentialStoreUnreachable, "credential store request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		c.logger.Warn("Credential store returned non-2xx.",
			zap.String("user_id", userID), zap.Int("status", resp.StatusCode))
		return schemas.SessionCredentials{}, schemas.NewEngineError(
			schemas.ErrKindIncompleteCredentials, "credential store returned status %d for user %s",
			resp.StatusCode, userID)
	}

	var payload credentialsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return schemas.SessionCredentials{}, schemas.NewEngineError(
			schemas.ErrKindIncompleteCredentials, "decoding credential payload: %v", err)
	}

	creds := schemas.SessionCredentials{
		Username:    payload.Username,
		Password:    payload.DecryptedPassword,
		LoginURL:    payload.Link1,
		OverviewURL: payload.Link2,
		DetailURL:   payload.Link3,
	}
	if missing := creds.Validate(); len(missing) > 0 {
		return schemas.SessionCredentials{}, schemas.NewEngineError(
			schemas.ErrKindIncompleteCredentials, "credential payload missing fields: %s",
			strings.Join(missing, ", "))
	}
	return creds, nil
}

// leveledZap adapts zap onto retryablehttp's LeveledLogger.
type leveledZap struct {
	l *zap.Logger
}

func (z *leveledZap) Error(msg string, kv ...interface{}) { z.l.Sugar().Errorw(msg, kv...) }
func (z *leveledZap) Warn(msg string, kv ...interface{})  { z.l.Sugar().Warnw(msg, kv...) }
func (z *leveledZap) Info(msg string, kv ...interface{})  { z.l.Sugar().Infow(msg, kv...) }
func (z *leveledZap) Debug(msg string, kv ...interface{}) { z.l.Sugar().Debugw(msg, kv...) }
