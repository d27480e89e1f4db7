package webhookprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ark-network/raffle/internal/core/ports"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const requestTimeout = 10 * time.Second

type randomnessRequest struct {
	RequestId     string `json:"requestId"`
	RoundId       uint64 `json:"roundId"`
	NumWords      uint32 `json:"numWords"`
	GasLimit      uint32 `json:"gasLimit"`
	Confirmations uint16 `json:"confirmations"`
}

type provider struct {
	identity string
	url      string
	client   *http.Client
}

// NewProvider returns a provider that forwards every randomness request to
// an external oracle. The oracle delivers the words asynchronously through
// the fulfill endpoint of the public api, authenticating as identity.
func NewProvider(identity, url string) (ports.RandomnessProvider, error) {
	if len(identity) <= 0 {
		return nil, fmt.Errorf("missing provider identity")
	}
	if len(url) <= 0 {
		return nil, fmt.Errorf("missing webhook url")
	}
	return &provider{
		identity: identity,
		url:      url,
		client:   &http.Client{Timeout: requestTimeout},
	}, nil
}

func (p *provider) Identity() string {
	return p.identity
}

// RegisterFulfillmentHandler is a no-op: fulfillments never come from this
// process.
func (p *provider) RegisterFulfillmentHandler(ports.FulfillmentHandler) {}

// Resume is a no-op: the oracle keeps its own queue of pending requests.
func (p *provider) Resume(context.Context, string, ports.RandomnessRequest) error {
	return nil
}

func (p *provider) RequestRandomWords(
	ctx context.Context, req ports.RandomnessRequest,
) (string, error) {
	if req.NumWords <= 0 {
		return "", fmt.Errorf("invalid number of words %d", req.NumWords)
	}

	body := randomnessRequest{
		RequestId:     uuid.New().String(),
		RoundId:       req.RoundId,
		NumWords:      req.NumWords,
		GasLimit:      req.GasLimit,
		Confirmations: req.Confirmations,
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.url, bytes.NewReader(buf),
	)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to reach randomness oracle: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf(
			"randomness oracle rejected request: %s %s", resp.Status, bytes.TrimSpace(msg),
		)
	}

	log.Debugf("forwarded randomness request %s for round %d", body.RequestId, req.RoundId)
	return body.RequestId, nil
}

func (p *provider) Close() {
	p.client.CloseIdleConnections()
}
