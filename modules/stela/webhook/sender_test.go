package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(t *testing.T, url string) *Sender {
	t.Helper()
	sender, err := NewSender(Config{URL: url, Secret: "testsecret"})
	require.NoError(t, err)
	sender.backoffBase = time.Millisecond
	return sender
}

func testPayload() entity.WebhookPayload {
	return entity.WebhookPayload{
		BlockNumber: 100,
		Events: []entity.InscriptionEvent{{
			Kind:          entity.EventKindCancelled,
			InscriptionId: "0x" + "01",
			BlockNumber:   100,
			TxHash:        "0xabc",
		}},
		Cursor: 100,
	}
}

func TestSenderDeliversPayload(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "Bearer testsecret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload entity.WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, uint64(100), payload.BlockNumber)
		require.Len(t, payload.Events, 1)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestSender(t, server.URL).Send(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestSenderRetriesTransientFailures(t *testing.T) {
	t.Run("5xx then success", func(t *testing.T) {
		var requests int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&requests, 1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		err := newTestSender(t, server.URL).Send(context.Background(), testPayload())
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	})

	t.Run("429 is retried", func(t *testing.T) {
		var requests int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&requests, 1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		err := newTestSender(t, server.URL).Send(context.Background(), testPayload())
		require.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	})

	t.Run("exhausted after max attempts", func(t *testing.T) {
		var requests int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requests, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		err := newTestSender(t, server.URL).Send(context.Background(), testPayload())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrPermanent)
		assert.Equal(t, int32(maxAttempts), atomic.LoadInt32(&requests))
	})
}

func TestSenderPermanentFailure(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := newTestSender(t, server.URL).Send(context.Background(), testPayload())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermanent))
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "4xx must not be retried")
}

func TestSenderRequiresURL(t *testing.T) {
	_, err := NewSender(Config{Secret: "s"})
	assert.Error(t, err)
}
