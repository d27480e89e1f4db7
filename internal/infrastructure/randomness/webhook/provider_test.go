package webhookprovider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ark-network/raffle/internal/core/ports"
	webhookprovider "github.com/ark-network/raffle/internal/infrastructure/randomness/webhook"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestProvider(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var received map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		provider, err := webhookprovider.NewProvider("oracle", server.URL)
		require.NoError(t, err)
		defer provider.Close()
		require.Equal(t, "oracle", provider.Identity())

		requestId, err := provider.RequestRandomWords(context.Background(), ports.RandomnessRequest{
			RoundId: 7, GasLimit: 500000, Confirmations: 3, NumWords: 1,
		})
		require.NoError(t, err)
		_, err = uuid.Parse(requestId)
		require.NoError(t, err)

		require.Equal(t, requestId, received["requestId"])
		require.Equal(t, float64(7), received["roundId"])
		require.Equal(t, float64(1), received["numWords"])
		require.Equal(t, float64(500000), received["gasLimit"])
		require.Equal(t, float64(3), received["confirmations"])

		// The oracle owns its queue, resuming never calls it again.
		received = nil
		require.NoError(t, provider.Resume(context.Background(), requestId, ports.RandomnessRequest{
			RoundId: 7, NumWords: 1,
		}))
		require.Nil(t, received)
	})

	t.Run("invalid", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "out of funds", http.StatusPaymentRequired)
		}))
		defer server.Close()

		provider, err := webhookprovider.NewProvider("oracle", server.URL)
		require.NoError(t, err)

		requestId, err := provider.RequestRandomWords(context.Background(), ports.RandomnessRequest{
			RoundId: 7, NumWords: 1,
		})
		require.EqualError(
			t, err, "randomness oracle rejected request: 402 Payment Required out of funds",
		)
		require.Empty(t, requestId)

		requestId, err = provider.RequestRandomWords(context.Background(), ports.RandomnessRequest{
			RoundId: 7,
		})
		require.EqualError(t, err, "invalid number of words 0")
		require.Empty(t, requestId)

		_, err = webhookprovider.NewProvider("oracle", "")
		require.EqualError(t, err, "missing webhook url")
	})
}
