// Package webhook implements the HTTP webhook transport variant of a
// HookAdapter: a configured URL is called with a signed JSON payload,
// for third-party integrations that cannot hold a gRPC connection open.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/resilience"
)

// Config describes the remote endpoint this adapter posts to.
type Config struct {
	Group   ports.HookGroup
	URL     string
	Secret  string // HMAC-SHA256 signing secret shared with the receiver
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

// Adapter posts a signed envelope to a webhook URL and applies whatever
// mutations the receiver's JSON response describes.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New builds a webhook-backed HookAdapter.
func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (a *Adapter) Group() ports.HookGroup { return a.cfg.Group }

type payload struct {
	Point    ports.HookPoint   `json:"point"`
	Headers  map[string]string `json:"headers"`
	Metadata map[string]string `json:"metadata"`
	Message  *json.RawMessage  `json:"message"`
}

type webhookResponse struct {
	Headers  map[string]string `json:"headers"`
	Metadata map[string]string `json:"metadata"`
	Message  json.RawMessage   `json:"message"`
	Error    string            `json:"error,omitempty"`
}

func (a *Adapter) Invoke(ctx context.Context, point ports.HookPoint, env *ports.HookEnvelope) error {
	msgJSON, err := json.Marshal(env.Message)
	if err != nil {
		return errors.Wrap(err, "failed to encode hook envelope message")
	}
	raw := json.RawMessage(msgJSON)
	body, err := json.Marshal(payload{Point: point, Headers: env.Headers, Metadata: env.Metadata, Message: &raw})
	if err != nil {
		return errors.Wrap(err, "failed to encode webhook payload")
	}

	sig := sign(a.cfg.Secret, body)

	var respBody []byte
	sendErr := resilience.Retry(ctx, a.cfg.Retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Hook-Signature", sig)

		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return errors.Unavailable("webhook returned server error", nil)
		}
		if resp.StatusCode >= 400 {
			return errors.InvalidArgument("webhook rejected payload", nil)
		}
		return nil
	})
	if sendErr != nil {
		return errors.Wrap(sendErr, "webhook hook call failed")
	}

	if len(respBody) == 0 {
		return nil
	}
	var out webhookResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return errors.Wrap(err, "failed to decode webhook response")
	}
	if out.Error != "" {
		return errors.Internal(out.Error, nil)
	}
	if len(out.Message) > 0 {
		if err := json.Unmarshal(out.Message, env.Message); err != nil {
			return errors.Wrap(err, "failed to decode webhook response message")
		}
	}
	if out.Headers != nil {
		env.Headers = out.Headers
	}
	if out.Metadata != nil {
		env.Metadata = out.Metadata
	}
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
