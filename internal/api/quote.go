package api

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

	"go.uber.org/zap"

	"goflare.io/punchclock/internal/models"
)

var errNoQuote = errors.New("quote response has no text")

var fallbackQuotes = []models.Quote{
	{Text: "The secret of getting ahead is getting started.", Author: "Mark Twain"},
	{Text: "Well done is better than well said.", Author: "Benjamin Franklin"},
	{Text: "Quality is not an act, it is a habit.", Author: "Aristotle"},
	{Text: "It always seems impossible until it's done.", Author: "Nelson Mandela"},
	{Text: "Action is the foundational key to all success.", Author: "Pablo Picasso"},
	{Text: "Small deeds done are better than great deeds planned.", Author: "Peter Marshall"},
	{Text: "Either you run the day or the day runs you.", Author: "Jim Rohn"},
}

// rawQuote accepts both naming conventions of the quote service.
type rawQuote struct {
	Text         string `json:"text"`
	Author       string `json:"author"`
	LegacyText   string `json:"Quote"`
	LegacyAuthor string `json:"Author"`
}

// NormalizeQuote maps a {text, author} or {Quote, Author} object, or a
// one-element array of either, onto models.Quote.
func NormalizeQuote(data []byte) (models.Quote, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return models.Quote{}, err
		}
		if len(list) == 0 {
			return models.Quote{}, errNoQuote
		}
		data = list[0]
	}

	var raw rawQuote
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Quote{}, err
	}

	q := models.Quote{Text: raw.Text, Author: raw.Author}
	if q.Text == "" {
		q.Text = raw.LegacyText
	}
	if q.Author == "" {
		q.Author = raw.LegacyAuthor
	}
	q.Text = strings.TrimSpace(q.Text)
	q.Author = strings.TrimSpace(q.Author)
	if q.Text == "" {
		return models.Quote{}, errNoQuote
	}
	if q.Author == "" {
		q.Author = "Unknown"
	}
	return q, nil
}

// FallbackQuote picks a built-in quote for the day of t.
func FallbackQuote(t time.Time) models.Quote {
	return fallbackQuotes[t.YearDay()%len(fallbackQuotes)]
}

// FetchQuote loads the quote of the day. The quote service is best effort: it
// bypasses the circuit breaker and uses the short quote timeout.
func (c *Client) FetchQuote(ctx context.Context) (models.Quote, error) {
	if c.quoteURL == "" {
		return models.Quote{}, errors.New("quote service not configured")
	}

	ctx, span := c.tracer.Start(ctx, "API.Quote")
	defer span.End()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeouts.Quote)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.quoteURL, nil)
	if err != nil {
		return models.Quote{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Quote{}, transportError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Quote{}, fmt.Errorf("quote service returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return models.Quote{}, transportError(ctx, reqCtx, err)
	}

	q, err := NormalizeQuote(data)
	if err != nil {
		c.logger.Debug("Unusable quote response", zap.Error(err))
		return models.Quote{}, err
	}
	return q, nil
}

// Quote returns the quote of the day, or a built-in one on any failure.
func (c *Client) Quote(ctx context.Context) models.Quote {
	q, err := c.FetchQuote(ctx)
	if err != nil {
		return FallbackQuote(c.now())
	}
	return q
}
