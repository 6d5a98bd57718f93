package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/dmehra2102/tableflow/internal/payment/domain"
)

// Gateway talks to an HTTP payment provider exposing POST /charges.
type Gateway struct {
	log     *slog.Logger
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGateway(log *slog.Logger, baseURL, apiKey string, timeout time.Duration) *Gateway {
	return &Gateway{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargeReq struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Capture   bool   `json:"capture"`
}

type chargeResp struct {
	Approved      bool   `json:"approved"`
	TransactionID string `json:"transaction_id"`
	DeclineReason string `json:"decline_reason"`
}

func (g *Gateway) Authorize(ctx context.Context, charge domain.Charge) (domain.Authorization, error) {
	body, err := json.Marshal(chargeReq{
		Reference: charge.Reference,
		Amount:    charge.Amount,
		Method:    string(charge.Method),
		Capture:   true,
	})
	if err != nil {
		return domain.Authorization{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return domain.Authorization{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", charge.Reference)
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.Authorization{}, fmt.Errorf("payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Authorization{}, fmt.Errorf("payment gateway: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out chargeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Authorization{}, fmt.Errorf("payment gateway: decode: %w", err)
	}
	if resp.StatusCode >= 400 && out.DeclineReason == "" {
		out.DeclineReason = fmt.Sprintf("rejected with status %d", resp.StatusCode)
	}
	g.log.Info("payment gateway responded", "reference", charge.Reference, "approved", out.Approved)
	return domain.Authorization{
		OK:          out.Approved && resp.StatusCode < 400,
		ProviderRef: out.TransactionID,
		Reason:      out.DeclineReason,
	}, nil
}
