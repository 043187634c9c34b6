// Package transport sends shares and notifications to remote OCM servers.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/address"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/delivery"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/discovery"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	httpclient "github.com/MahdiBaghbani/ocmbridge/internal/platform/http/client"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// Discoverer resolves a peer host to its discovery document.
type Discoverer interface {
	Discover(ctx context.Context, hostOrURL string) (*discovery.Discovery, error)
}

// Notification is the OCM notification request body.
type Notification struct {
	NotificationType string         `json:"notificationType"`
	ResourceType     string         `json:"resourceType"`
	ProviderID       string         `json:"providerId"`
	Notification     map[string]any `json:"notification"`
}

// Client posts to the endPoint advertised by the receiving server.
type Client struct {
	http      httpclient.Doer
	discovery Discoverer
	logger    *slog.Logger
}

var _ delivery.Transport = (*Client)(nil)

// New creates a transport client.
func New(doer httpclient.Doer, disc Discoverer, logger *slog.Logger) *Client {
	return &Client{http: doer, discovery: disc, logger: logutil.NoopIfNil(logger)}
}

// Send POSTs share to <endPoint>/shares of the server named in shareWith.
// Only a 201 answer counts as acknowledged; other statuses are returned
// without an error.
func (c *Client) Send(ctx context.Context, share shares.FederatedShareRequest) (delivery.SendResult, error) {
	host, err := address.ProviderHost(share.ShareWith)
	if err != nil {
		return delivery.SendResult{}, ocmerr.Wrap(ocmerr.KindDeliveryFailed, "receiver address", err)
	}

	body, err := json.Marshal(share)
	if err != nil {
		return delivery.SendResult{}, ocmerr.Wrap(ocmerr.KindInternal, "encode share", err)
	}

	status, err := c.post(ctx, host, "/shares", body)
	if err != nil {
		return delivery.SendResult{}, err
	}
	c.logger.Debug("share sent", "receiver", host, "provider_id", share.ProviderID, "status", status)
	return delivery.SendResult{StatusCode: status, Acknowledged: status == http.StatusCreated}, nil
}

// Notify POSTs n to <endPoint>/notifications of host. Any 2xx answer is
// success.
func (c *Client) Notify(ctx context.Context, host string, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return ocmerr.Wrap(ocmerr.KindInternal, "encode notification", err)
	}
	status, err := c.post(ctx, host, "/notifications", body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return ocmerr.New(ocmerr.KindDeliveryFailed, fmt.Sprintf("notification answered %d", status))
	}
	return nil
}

func (c *Client) post(ctx context.Context, host, path string, body []byte) (int, error) {
	disc, err := c.discovery.Discover(ctx, host)
	if err != nil {
		return 0, ocmerr.Wrap(ocmerr.KindDeliveryFailed, "discovery", err)
	}
	url := strings.TrimSuffix(disc.EndPoint, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, ocmerr.Wrap(ocmerr.KindDeliveryFailed, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return 0, ocmerr.Wrap(ocmerr.KindDeliveryFailed, "POST "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := httpclient.ReadLimited(resp.Body, 4096)
		c.logger.Info("peer rejected request", "url", url, "status", resp.StatusCode, "body", string(msg))
	} else {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	}
	return resp.StatusCode, nil
}
