package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"example.com/shop-backend/internal/payment/domain"
	"example.com/shop-backend/pkg/circuitbreaker"
	"example.com/shop-backend/pkg/config"
	"example.com/shop-backend/pkg/logger"
)

// Коды результата MoMo.
const (
	momoCodeSuccess = 0
	// Промежуточные коды: транзакция инициирована или в обработке.
	momoCodeInitiated  = 1000
	momoCodeProcessing = 7000
	momoCodePending    = 7002
	momoCodeAuthorized = 9000
)

// momoOutcome нормализует resultCode MoMo в канонический исход.
func momoOutcome(resultCode int) domain.Outcome {
	switch resultCode {
	case momoCodeSuccess:
		return domain.OutcomeSuccess
	case momoCodeInitiated, momoCodeProcessing, momoCodePending, momoCodeAuthorized:
		return domain.OutcomePending
	default:
		return domain.OutcomeFailure
	}
}

// momoAdapter — адаптер MoMo.
//
// Подпись: HMAC-SHA256 секретным ключом поверх строки "key=value&..."
// с полями в алфавитном порядке — канонический формат MoMo.
type momoAdapter struct {
	cfg       config.MoMoConfig
	client    *http.Client
	breaker   *circuitbreaker.Breaker
	requestID func() string
}

// NewMoMo создаёт адаптер MoMo.
func NewMoMo(cfg config.MoMoConfig) Adapter {
	return &momoAdapter{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		breaker:   circuitbreaker.New("momo"),
		requestID: uuid.NewString,
	}
}

func (a *momoAdapter) Method() domain.Method { return domain.MethodMoMo }

func (a *momoAdapter) Online() bool { return true }

func (a *momoAdapter) ExpireAfter() time.Duration { return a.cfg.ExpireAfter }

// momoCreateResponse — ответ MoMo на создание заказа.
type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
	RequestID  string `json:"requestId"`
	OrderID    string `json:"orderId"`
}

// CreateOrder создаёт заказ на оплату в MoMo (captureWallet).
func (a *momoAdapter) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	payment := req.Payment
	requestID := a.requestID()
	amount := payment.Amount.Round(0).IntPart()
	requestType := "captureWallet"
	extraData := ""

	// Поля подписи в алфавитном порядке — требование протокола
	rawSignature := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		a.cfg.AccessKey, amount, extraData, a.cfg.IPNURL, payment.ID, req.Description,
		a.cfg.PartnerCode, a.cfg.RedirectURL, requestID, requestType,
	)

	payload := map[string]interface{}{
		"partnerCode": a.cfg.PartnerCode,
		"requestId":   requestID,
		"amount":      amount,
		"orderId":     payment.ID,
		"orderInfo":   req.Description,
		"redirectUrl": a.cfg.RedirectURL,
		"ipnUrl":      a.cfg.IPNURL,
		"requestType": requestType,
		"extraData":   extraData,
		"lang":        "vi",
		"signature":   signHMAC(a.cfg.SecretKey, rawSignature),
	}

	raw, err := a.postJSON(ctx, a.cfg.Endpoint+"/create", payload)
	if err != nil {
		return nil, &Error{Provider: "momo", Op: "create", Err: err}
	}

	var resp momoCreateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Provider: "momo", Op: "create", Err: err}
	}

	if resp.ResultCode != momoCodeSuccess {
		return nil, &Error{
			Provider: "momo",
			Op:       "create",
			Message:  fmt.Sprintf("resultCode=%d: %s", resp.ResultCode, resp.Message),
		}
	}

	return &CreateOrderResult{
		PayURL:      resp.PayURL,
		RequestID:   requestID,
		RawResponse: string(raw),
	}, nil
}

// momoQueryResponse — ответ MoMo на опрос статуса.
type momoQueryResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	TransID    int64  `json:"transId"`
	Amount     int64  `json:"amount"`
}

// QueryOrder опрашивает статус платежа в MoMo и нормализует исход.
func (a *momoAdapter) QueryOrder(ctx context.Context, payment *domain.Payment) (*QueryResult, error) {
	if payment.RequestID == "" {
		return nil, &Error{Provider: "momo", Op: "query", Message: "у платежа нет requestId"}
	}

	rawSignature := fmt.Sprintf(
		"accessKey=%s&orderId=%s&partnerCode=%s&requestId=%s",
		a.cfg.AccessKey, payment.ID, a.cfg.PartnerCode, payment.RequestID,
	)

	payload := map[string]interface{}{
		"partnerCode": a.cfg.PartnerCode,
		"requestId":   payment.RequestID,
		"orderId":     payment.ID,
		"lang":        "vi",
		"signature":   signHMAC(a.cfg.SecretKey, rawSignature),
	}

	raw, err := a.postJSON(ctx, a.cfg.Endpoint+"/query", payload)
	if err != nil {
		return nil, &Error{Provider: "momo", Op: "query", Err: err}
	}

	var resp momoQueryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Provider: "momo", Op: "query", Err: err}
	}

	result := &QueryResult{
		Outcome:     momoOutcome(resp.ResultCode),
		RawResponse: string(raw),
	}
	if result.Outcome == domain.OutcomeSuccess {
		result.ProviderTransID = strconv.FormatInt(resp.TransID, 10)
	}

	return result, nil
}

// momoIPN — тело IPN callback'а MoMo.
type momoIPN struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// VerifyCallback проверяет подпись IPN callback'а MoMo.
func (a *momoAdapter) VerifyCallback(body []byte) (*CallbackResult, error) {
	var ipn momoIPN
	if err := json.Unmarshal(body, &ipn); err != nil {
		return nil, &Error{Provider: "momo", Op: "callback", Err: err}
	}

	rawSignature := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		a.cfg.AccessKey, ipn.Amount, ipn.ExtraData, ipn.Message, ipn.OrderID, ipn.OrderInfo,
		ipn.OrderType, ipn.PartnerCode, ipn.PayType, ipn.RequestID, ipn.ResponseTime,
		ipn.ResultCode, ipn.TransID,
	)

	expected := signHMAC(a.cfg.SecretKey, rawSignature)
	if !hmac.Equal([]byte(expected), []byte(ipn.Signature)) {
		logger.Warn().Str("provider", "momo").Msg("Подпись IPN callback'а не совпала")
		return nil, domain.ErrInvalidSignature
	}

	return &CallbackResult{
		PaymentRef:      ipn.RequestID,
		Outcome:         momoOutcome(ipn.ResultCode),
		ProviderTransID: strconv.FormatInt(ipn.TransID, 10),
		RawPayload:      string(body),
	}, nil
}

// postJSON отправляет JSON запрос через circuit breaker.
func (a *momoAdapter) postJSON(ctx context.Context, endpoint string, payload map[string]interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return circuitbreaker.Execute(a.breaker, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("неожиданный HTTP статус %d", resp.StatusCode)
		}

		return io.ReadAll(resp.Body)
	})
}
