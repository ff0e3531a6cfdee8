// Package textstream talks to a backend that answers a chat request with a
// plain chunked text body instead of server-sent events.
package textstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Messages []Message `json:"messages"`
}

type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Stream posts the conversation and forwards the response body to onDelta as
// it arrives. Chunks are split on rune boundaries so a multi-byte character
// is never delivered in two halves.
func (c *Client) Stream(ctx context.Context, messages []Message, onDelta func(string) error) error {
	body, err := json.Marshal(request{Messages: messages})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("backend error %d: %s", resp.StatusCode, string(respBody))
	}

	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			ready, rest := splitComplete(pending)
			if len(ready) > 0 {
				if err := onDelta(string(ready)); err != nil {
					return err
				}
			}
			pending = append(pending[:0], rest...)
		}
		if errors.Is(readErr, io.EOF) {
			if len(pending) > 0 {
				return onDelta(string(pending))
			}
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read body: %w", readErr)
		}
	}
}

// splitComplete separates a trailing partial UTF-8 sequence from b.
func splitComplete(b []byte) (ready, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], b[i:]
	}
	return b, nil
}
