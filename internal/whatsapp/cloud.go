package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("whatsapp cloud api not configured")

// APIError is a non-2xx response from the Cloud API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api: status %d: %s", e.StatusCode, e.Body)
}

// CloudClient sends messages through the WhatsApp Cloud API.
type CloudClient struct {
	baseURL       string
	token         string
	phoneNumberID string
	lang          string
	http          *http.Client
}

func NewCloudClient(baseURL, token, phoneNumberID, lang string) *CloudClient {
	return &CloudClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		phoneNumberID: phoneNumberID,
		lang:          lang,
		http:          &http.Client{Timeout: 15 * time.Second},
	}
}

type textParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []textParam `json:"parameters"`
}

type template struct {
	Name       string            `json:"name"`
	Language   map[string]string `json:"language"`
	Components []component       `json:"components,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type outbound struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Template         *template `json:"template,omitempty"`
	Text             *textBody `json:"text,omitempty"`
}

// OrderPlaced sends the order_received template: customer name, order
// number, restaurant, total.
func (c *CloudClient) OrderPlaced(ctx context.Context, n OrderNotice) error {
	return c.sendTemplate(ctx, n.CustomerPhone, TemplateOrderReceived,
		n.CustomerName, n.OrderNumber, n.RestaurantName, n.Total)
}

// OrderStatusChanged sends the template mapped to n.Status. Statuses without
// a template are ignored.
func (c *CloudClient) OrderStatusChanged(ctx context.Context, n OrderNotice) error {
	name, ok := TemplateForStatus(n.Status)
	if !ok {
		return nil
	}
	params := []string{n.CustomerName, n.OrderNumber, n.RestaurantName}
	if n.Reason != "" {
		params = append(params, n.Reason)
	}
	return c.sendTemplate(ctx, n.CustomerPhone, name, params...)
}

func (c *CloudClient) SendText(ctx context.Context, phone, text string) error {
	return c.send(ctx, outbound{
		MessagingProduct: "whatsapp",
		To:               NormalizePhone(phone),
		Type:             "text",
		Text:             &textBody{Body: text},
	})
}

func (c *CloudClient) sendTemplate(ctx context.Context, phone, name string, params ...string) error {
	tpl := &template{Name: name, Language: map[string]string{"code": c.lang}}
	if len(params) > 0 {
		body := component{Type: "body"}
		for _, p := range params {
			body.Parameters = append(body.Parameters, textParam{Type: "text", Text: p})
		}
		tpl.Components = []component{body}
	}
	return c.send(ctx, outbound{
		MessagingProduct: "whatsapp",
		To:               NormalizePhone(phone),
		Type:             "template",
		Template:         tpl,
	})
}

func (c *CloudClient) send(ctx context.Context, msg outbound) error {
	if c.token == "" || c.phoneNumberID == "" {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := c.baseURL + "/" + c.phoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
