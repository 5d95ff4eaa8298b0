package gateway

import (
	"context"

	"github.com/hitoshi/gamstore/internal/model"
)

const (
	initiatePaymentMutation = `mutation InitiatePayment($input: PaymentInput!) {
  initiatePayment(input: $input) {
    success
    message
    paymentId
  }
}`

	healthQuery = `query Health {
  health
}`
)

// PaymentGateway は決済サービスのクライアント。
type PaymentGateway struct {
	client *Client
}

// NewPaymentGateway はPaymentGatewayを生成する。
func NewPaymentGateway(client *Client) *PaymentGateway {
	return &PaymentGateway{client: client}
}

// Initiate は決済を開始する。success:false はエラーではなく結果として返す。
func (g *PaymentGateway) Initiate(ctx context.Context, userID, gameID string) (*model.PaymentResult, error) {
	vars := map[string]any{"input": pairVars(userID, gameID)}
	var result model.PaymentResult
	if err := g.client.Decode(ctx, "initiatePayment", initiatePaymentMutation, vars, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health は決済サービスのヘルスチェック結果を返す。
func (g *PaymentGateway) Health(ctx context.Context) (string, error) {
	result, err := g.client.Query(ctx, "health", healthQuery, nil)
	if err != nil {
		return "", err
	}
	return result.String(), nil
}
