package generator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGenerator_Generate(t *testing.T) {
	summaryDate := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	t.Run("successful generation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "user-1", req["user_id"])
			assert.Equal(t, "2024-06-15", req["summary_date"])

			json.NewEncoder(w).Encode(map[string]string{"content": "your day in review"})
		}))
		defer server.Close()

		g := NewHTTPGenerator(server.URL)
		content, err := g.Generate(context.Background(), "user-1", summaryDate)

		require.NoError(t, err)
		assert.Equal(t, "your day in review", content)
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "flow exploded", http.StatusInternalServerError)
		}))
		defer server.Close()

		g := NewHTTPGenerator(server.URL)
		_, err := g.Generate(context.Background(), "user-1", summaryDate)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
		assert.Contains(t, err.Error(), "flow exploded")
	})

	t.Run("empty content is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"content": ""})
		}))
		defer server.Close()

		g := NewHTTPGenerator(server.URL)
		_, err := g.Generate(context.Background(), "user-1", summaryDate)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty content")
	})

	t.Run("context deadline is honored", func(t *testing.T) {
		started := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The server only observes a client disconnect (and cancels the
			// request context) after the request body has been consumed.
			io.Copy(io.Discard, r.Body)
			close(started)
			<-r.Context().Done()
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		g := NewHTTPGenerator(server.URL)
		_, err := g.Generate(ctx, "user-1", summaryDate)

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		<-started
	})
}
