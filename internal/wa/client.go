package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Sender is the outbound messaging surface the conversation engine depends
// on. LogSender satisfies it for dev mode without credentials.
type Sender interface {
	SendText(ctx context.Context, to string, body string) error
	SendButtons(ctx context.Context, to string, body string, buttons []Button) error
	SendList(ctx context.Context, to string, header string, body string, buttonLabel string, sections []Section) error
}

// Client talks to the Cloud API messages endpoint.
type Client struct {
	baseURL       string
	token         string
	phoneNumberID string
	httpClient    *http.Client
}

func NewClient(baseURL string, token string, phoneNumberID string) *Client {
	return &Client{
		baseURL:       baseURL,
		token:         token,
		phoneNumberID: phoneNumberID,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) SendText(ctx context.Context, to string, body string) error {
	return c.post(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &outboundText{Body: body},
	})
}

func (c *Client) SendButtons(ctx context.Context, to string, body string, buttons []Button) error {
	// The Cloud API caps reply buttons at three per message.
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}
	outButtons := make([]outboundButton, 0, len(buttons))
	for _, b := range buttons {
		outButtons = append(outButtons, outboundButton{
			Type:  "reply",
			Reply: ButtonReply{ID: b.ID, Title: b.Title},
		})
	}
	return c.post(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &outboundInteractive{
			Type:   "button",
			Body:   outboundBody{Text: body},
			Action: outboundAction{Buttons: outButtons},
		},
	})
}

func (c *Client) SendList(ctx context.Context, to string, header string, body string, buttonLabel string, sections []Section) error {
	var h *outboundHeader
	if header != "" {
		h = &outboundHeader{Type: "text", Text: header}
	}
	return c.post(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &outboundInteractive{
			Type:   "list",
			Header: h,
			Body:   outboundBody{Text: body},
			Action: outboundAction{Button: buttonLabel, Sections: sections},
		},
	})
}

func (c *Client) post(ctx context.Context, payload outboundMessage) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message to %s: %w", payload.To, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send message to %s: status %d: %s", payload.To, resp.StatusCode, string(body))
	}
	return nil
}

// LogSender logs outbound messages instead of sending them. Used when
// WhatsApp credentials are not configured.
type LogSender struct{}

func (LogSender) SendText(_ context.Context, to string, body string) error {
	log.Printf("[wa] text to %s: %s", to, body)
	return nil
}

func (LogSender) SendButtons(_ context.Context, to string, body string, buttons []Button) error {
	log.Printf("[wa] buttons to %s: %s (%d buttons)", to, body, len(buttons))
	return nil
}

func (LogSender) SendList(_ context.Context, to string, header string, body string, _ string, sections []Section) error {
	log.Printf("[wa] list to %s: %s / %s (%d sections)", to, header, body, len(sections))
	return nil
}
