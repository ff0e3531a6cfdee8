package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/fleek/internal/character"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostCharacterSaved announces a saved character. Secret values never leave
// the process; only their key names are listed.
func (p *Poster) PostCharacterSaved(ctx context.Context, characterID uuid.UUID, doc character.Document) error {
	text := formatCharacterMessage(characterID, doc)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "Character id: `" + characterID.String() + "`",
					},
				},
			},
		},
	})
	if err != nil {
		return err
	}

	p.logger.Info("posted saved character to slack", "ts", ts, "character_id", characterID)
	return nil
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatCharacterMessage(id uuid.UUID, doc character.Document) string {
	var sb strings.Builder

	name := doc.Name
	if name == "" {
		name = "Unnamed character"
	}
	fmt.Fprintf(&sb, "*Character saved:* %s\n", name)
	if len(doc.Bio) > 0 {
		fmt.Fprintf(&sb, "> %s\n", doc.Bio[0])
	}
	sb.WriteString("\n")

	list := func(label string, values []string) {
		if len(values) > 0 {
			fmt.Fprintf(&sb, "*%s:* %s\n", label, strings.Join(values, ", "))
		}
	}
	list("Topics", doc.Topics)
	list("Adjectives", doc.Adjectives)
	list("Clients", doc.Clients)
	list("Plugins", doc.Plugins)
	list("Secrets", slices.Sorted(maps.Keys(doc.Settings.Secrets)))

	if n := len(doc.MessageExamples); n > 0 {
		fmt.Fprintf(&sb, "*Message examples:* %d\n", n)
	}
	if n := len(doc.PostExamples); n > 0 {
		fmt.Fprintf(&sb, "*Post examples:* %d\n", n)
	}

	return strings.TrimRight(sb.String(), "\n")
}
