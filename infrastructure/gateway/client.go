package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domainSend "github.com/AzielCF/az-flow/domains/send"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const defaultRequestTimeout = 30 * time.Second

// Config points the client at the external messaging gateway.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// Client is the outbound send channel over the gateway's HTTP API.
// It implements send.ISender.
type Client struct {
	cfg  Config
	http *fasthttp.Client
}

func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &Client{
		cfg: cfg,
		http: &fasthttp.Client{
			MaxConnsPerHost: 64,
			ReadTimeout:     cfg.RequestTimeout,
			WriteTimeout:    cfg.RequestTimeout,
		},
	}
}

type sendTextBody struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendMediaBody struct {
	Number    string `json:"number"`
	Caption   string `json:"caption,omitempty"`
	MediaURL  string `json:"mediaUrl"`
	MediaKind string `json:"mediatype"`
}

type sendResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
}

func (c *Client) SendText(ctx context.Context, req domainSend.TextRequest) (string, error) {
	url := fmt.Sprintf("%s/message/sendText/%s", c.cfg.BaseURL, req.InstanceKey)
	return c.post(ctx, url, sendTextBody{Number: req.ChatJID, Text: req.Text})
}

func (c *Client) SendMedia(ctx context.Context, req domainSend.MediaRequest) (string, error) {
	url := fmt.Sprintf("%s/message/sendMedia/%s", c.cfg.BaseURL, req.InstanceKey)
	return c.post(ctx, url, sendMediaBody{
		Number:    req.ChatJID,
		Caption:   req.Caption,
		MediaURL:  req.MediaURL,
		MediaKind: req.MediaKind,
	})
}

func (c *Client) post(ctx context.Context, url string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(url)
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("apikey", c.cfg.APIKey)
	}
	httpReq.SetBody(payload)

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(httpReq, httpResp, deadline); err != nil {
		return "", fmt.Errorf("gateway request failed: %w", err)
	}

	status := httpResp.StatusCode()
	if status < 200 || status >= 300 {
		logrus.Warnf("[GATEWAY] Send rejected with status %d: %s", status, string(httpResp.Body()))
		return "", fmt.Errorf("gateway returned status %d", status)
	}

	var parsed sendResponse
	if err := json.Unmarshal(httpResp.Body(), &parsed); err != nil {
		// Some gateway builds answer with an empty body on success.
		return "", nil
	}
	return parsed.Key.ID, nil
}
