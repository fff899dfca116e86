package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goflare.io/punchclock/internal/models"
)

func TestNormalizeQuote(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want models.Quote
	}{
		{"lowercase", `{"text":"Keep going.","author":"Ada"}`, models.Quote{Text: "Keep going.", Author: "Ada"}},
		{"capitalized", `{"Quote":"Keep going.","Author":"Ada"}`, models.Quote{Text: "Keep going.", Author: "Ada"}},
		{"array", `[{"text":"Keep going.","author":"Ada"}]`, models.Quote{Text: "Keep going.", Author: "Ada"}},
		{"missing author", `{"text":" Keep going. "}`, models.Quote{Text: "Keep going.", Author: "Unknown"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeQuote([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{`{}`, `[]`, `not json`, `{"author":"Ada"}`} {
		_, err := NormalizeQuote([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestQuoteFallsBackOnFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.FetchQuote(context.Background())
	assert.Error(t, err)

	q := c.Quote(context.Background())
	assert.NotEmpty(t, q.Text)
	assert.Contains(t, fallbackQuotes, q)
}

func TestQuoteFromService(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /quote", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"Quote": "Start now.", "Author": "Someone"})
	})
	c := newTestClient(t, mux)

	assert.Equal(t, models.Quote{Text: "Start now.", Author: "Someone"}, c.Quote(context.Background()))
}

func TestFallbackQuoteIsStablePerDay(t *testing.T) {
	morning := time.Date(2025, 10, 28, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 10, 28, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, FallbackQuote(morning), FallbackQuote(evening))
}
