package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/platform/config"
	"cleancity-server-go/internal/platform/errors"
	"cleancity-server-go/internal/platform/logging"
)

// Payload is one outbound report hand-off.
type Payload struct {
	ReportID  string
	CreatedAt time.Time
	Details   string
	Location  aggregate.Location
	PhotoURL  string
	VerifyURL string
}

// Channel sends a submitted report to the municipal inbox. Implementations
// must return aggregate.ErrDeliveryUnavailable when the channel cannot be
// reached and aggregate.ErrDeliveryRejected when it refuses the payload.
type Channel interface {
	Send(ctx context.Context, payload Payload) error
}

// request mirrors the EmailJS REST send contract.
type request struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
}

// Client delivers reports over the configured HTTP endpoint.
type Client struct {
	cfg    config.DeliveryConfig
	http   *http.Client
	logger *logging.Logger
}

// NewClient builds a delivery client. A zero timeout defaults to 15 seconds.
func NewClient(cfg config.DeliveryConfig, logger *logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send posts the report to the channel endpoint. The call is made exactly
// once; retrying is the caller's decision, not the client's.
func (c *Client) Send(ctx context.Context, payload Payload) error {
	body := request{
		ServiceID:  c.cfg.ServiceID,
		TemplateID: c.cfg.TemplateID,
		UserID:     c.cfg.PublicKey,
		TemplateParams: map[string]string{
			"from_name":    c.cfg.FromName,
			"report_id":    payload.ReportID,
			"submitted_at": payload.CreatedAt.Format(time.RFC1123),
			"latitude":     fmt.Sprintf("%.6f", payload.Location.Latitude),
			"longitude":    fmt.Sprintf("%.6f", payload.Location.Longitude),
			"details":      payload.Details,
			"location":     payload.Location.MapLink(),
			"photo":        payload.PhotoURL,
			"verify_link":  payload.VerifyURL,
		},
	}

	raw, err := sonic.Marshal(&body)
	if err != nil {
		return errors.Wrap(errors.KindDelivery, "delivery.send", "failed to encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(errors.KindDelivery, "delivery.send", "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("delivery channel unreachable: %v", err)
		}
		return aggregate.ErrDeliveryUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if c.logger != nil {
			c.logger.Warn("delivery channel rejected report %s: status=%d body=%s",
				payload.ReportID, resp.StatusCode, string(detail))
		}
		return aggregate.ErrDeliveryRejected
	}

	if c.logger != nil {
		c.logger.Info("report %s handed off to delivery channel", payload.ReportID)
	}
	return nil
}
