package broker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"

	"main/internal/errors"
	"main/internal/schema"
	"main/pkg/exception"
)

const defaultRestTimeout = 15 * time.Second

// RestConfig carries venue credentials and price scaling for the REST
// delegator.
type RestConfig struct {
	BaseURL     string
	AccessToken string
	ClientID    string
	PriceScale  int64
}

// SecurityResolver maps an internal contract ID to the venue's
// security identifier.
type SecurityResolver func(contractID uint32) (string, bool)

// Rest submits orders over the venue's HTTP API.
type Rest struct {
	cfg     RestConfig
	client  *http.Client
	resolve SecurityResolver
}

func NewRest(cfg RestConfig, client *http.Client, resolve SecurityResolver) *Rest {
	if client == nil {
		client = &http.Client{Timeout: defaultRestTimeout}
	}
	return &Rest{cfg: cfg, client: client, resolve: resolve}
}

type placeOrderRequest struct {
	ClientID      string `json:"dhanClientId"`
	CorrelationID string `json:"correlationId"`
	TransType     string `json:"transactionType"`
	Exchange      string `json:"exchangeSegment"`
	ProductType   string `json:"productType"`
	OrderType     string `json:"orderType"`
	Validity      string `json:"validity"`
	SecurityID    string `json:"securityId"`
	Quantity      int64  `json:"quantity"`
	Price         string `json:"price"`
}

type placeOrderResponse struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
}

type fundsResponse struct {
	AvailableBalance  decimal.Decimal `json:"availabelBalance"`
	UtilizedAmount    decimal.Decimal `json:"utilizedAmount"`
	CollateralAmount  decimal.Decimal `json:"collateralAmount"`
	WithdrawableValue decimal.Decimal `json:"withdrawableBalance"`
}

// Funds reports the venue's margin snapshot.
type Funds struct {
	Available  decimal.Decimal
	Utilized   decimal.Decimal
	Collateral decimal.Decimal
}

func restSide(side schema.OrderSide) string {
	if side == schema.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

func (r *Rest) Send(ctx context.Context, intent schema.OrderIntent) (Result, error) {
	if intent.Kind == schema.IntentCancel {
		return r.cancelOrder(ctx, intent)
	}
	return r.placeOrder(ctx, intent)
}

func (r *Rest) placeOrder(ctx context.Context, intent schema.OrderIntent) (Result, error) {
	securityID, ok := r.resolve(intent.ContractID)
	if !ok {
		return Result{}, exception.ErrOrderInvalidRequest
	}

	body := placeOrderRequest{
		ClientID:      r.cfg.ClientID,
		CorrelationID: fmt.Sprintf("pos-%d-ord-%d", intent.PositionID, intent.OrderID),
		TransType:     restSide(intent.Side),
		Exchange:      "NSE_FNO",
		ProductType:   "INTRADAY",
		OrderType:     "LIMIT",
		Validity:      "DAY",
		SecurityID:    securityID,
		Quantity:      int64(intent.Qty),
		Price:         r.formatPrice(intent.Price),
	}
	payload, err := sonic.ConfigFastest.Marshal(body)
	if err != nil {
		return Result{}, errors.Wrap(err, "marshal place order")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultRestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/v2/orders", bytes.NewReader(payload))
	if err != nil {
		return Result{}, errors.Wrap(err, "build place order request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", r.cfg.AccessToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "send place order")
	}
	defer resp.Body.Close()

	var data placeOrderResponse
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Result{}, exception.ErrOrderDecodeResponse
	}
	if data.OrderID == "" {
		return Result{}, exception.ErrOrderEmptyResponseID
	}

	return Result{Ack: r.ackFromStatus(intent, data.OrderStatus)}, nil
}

func (r *Rest) cancelOrder(ctx context.Context, intent schema.OrderIntent) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRestTimeout)
	defer cancel()
	url := fmt.Sprintf("%s/v2/orders/pos-%d-ord-%d", r.cfg.BaseURL, intent.PositionID, intent.OrderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return Result{}, errors.Wrap(err, "build cancel request")
	}
	req.Header.Set("access-token", r.cfg.AccessToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "send cancel")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return Result{}, exception.ErrOrderRequestNotSent
	}
	return Result{Ack: schema.OrderAck{
		OrderID:    intent.OrderID,
		ContractID: intent.ContractID,
		Status:     schema.OrderAckStatusCanceled,
	}}, nil
}

// MarginFunds queries the venue's fund limits.
func (r *Rest) MarginFunds(ctx context.Context) (Funds, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/v2/fundlimit", nil)
	if err != nil {
		return Funds{}, errors.Wrap(err, "build fund limit request")
	}
	req.Header.Set("access-token", r.cfg.AccessToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return Funds{}, errors.Wrap(err, "send fund limit request")
	}
	defer resp.Body.Close()

	var data fundsResponse
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Funds{}, exception.ErrOrderDecodeResponse
	}
	return Funds{
		Available:  data.AvailableBalance,
		Utilized:   data.UtilizedAmount,
		Collateral: data.CollateralAmount,
	}, nil
}

func (r *Rest) ackFromStatus(intent schema.OrderIntent, status string) schema.OrderAck {
	ack := schema.OrderAck{
		OrderID:    intent.OrderID,
		ContractID: intent.ContractID,
		Price:      intent.Price,
		Qty:        intent.Qty,
		LeavesQty:  intent.Qty,
	}
	switch status {
	case "TRANSIT", "PENDING":
		ack.Status = schema.OrderAckStatusAcked
	case "TRADED":
		ack.Status = schema.OrderAckStatusFilled
		ack.LeavesQty = 0
	case "REJECTED":
		ack.Status = schema.OrderAckStatusRejected
		ack.Reason = schema.OrderAckReasonBrokerReject
	case "CANCELLED":
		ack.Status = schema.OrderAckStatusCanceled
	case "EXPIRED":
		ack.Status = schema.OrderAckStatusExpired
	default:
		ack.Status = schema.OrderAckStatusAcked
	}
	return ack
}

func (r *Rest) formatPrice(p schema.Price) string {
	scale := r.cfg.PriceScale
	if scale <= 1 {
		return fmt.Sprintf("%d", int64(p))
	}
	digits := 0
	for s := scale; s > 1; s /= 10 {
		digits++
	}
	v := int64(p)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%0*d", sign, v/scale, digits, v%scale)
}
