package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/shop-backend/internal/payment/domain"
	"example.com/shop-backend/pkg/circuitbreaker"
	"example.com/shop-backend/pkg/config"
	"example.com/shop-backend/pkg/logger"
)

// Коды результата ZaloPay.
const (
	zpCodeSuccess    = 1
	zpCodeFailure    = 2
	zpCodeProcessing = 3
)

// zalopayAdapter — адаптер ZaloPay.
//
// Подписи: key1 подписывает исходящие запросы (create, query),
// key2 проверяет подписи входящих callback'ов. HMAC-SHA256 поверх
// строки из полей в фиксированном порядке, разделённых "|".
type zalopayAdapter struct {
	cfg     config.ZaloPayConfig
	client  *http.Client
	breaker *circuitbreaker.Breaker
	now     func() time.Time
}

// NewZaloPay создаёт адаптер ZaloPay.
func NewZaloPay(cfg config.ZaloPayConfig) Adapter {
	return &zalopayAdapter{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New("zalopay"),
		now:     time.Now,
	}
}

func (a *zalopayAdapter) Method() domain.Method { return domain.MethodZaloPay }

func (a *zalopayAdapter) Online() bool { return true }

func (a *zalopayAdapter) ExpireAfter() time.Duration { return a.cfg.ExpireAfter }

// zpCreateResponse — ответ ZaloPay на создание заказа.
type zpCreateResponse struct {
	ReturnCode       int    `json:"return_code"`
	ReturnMessage    string `json:"return_message"`
	SubReturnCode    int    `json:"sub_return_code"`
	SubReturnMessage string `json:"sub_return_message"`
	OrderURL         string `json:"order_url"`
	ZpTransToken     string `json:"zp_trans_token"`
}

// CreateOrder создаёт заказ на оплату в ZaloPay.
func (a *zalopayAdapter) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	payment := req.Payment

	// app_trans_id обязан начинаться с даты yymmdd — требование протокола
	appTransID := fmt.Sprintf("%s_%s", a.now().Format("060102"), payment.ID)
	appTime := a.now().UnixMilli()
	amount := payment.Amount.Round(0).IntPart()
	embedData := "{}"
	item := "[]"

	// mac = HMAC(key1, app_id|app_trans_id|app_user|amount|app_time|embed_data|item)
	macData := strings.Join([]string{
		a.cfg.AppID,
		appTransID,
		payment.UserID,
		strconv.FormatInt(amount, 10),
		strconv.FormatInt(appTime, 10),
		embedData,
		item,
	}, "|")

	form := url.Values{}
	form.Set("app_id", a.cfg.AppID)
	form.Set("app_trans_id", appTransID)
	form.Set("app_user", payment.UserID)
	form.Set("app_time", strconv.FormatInt(appTime, 10))
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("embed_data", embedData)
	form.Set("item", item)
	form.Set("description", req.Description)
	form.Set("callback_url", a.cfg.CallbackURL)
	form.Set("mac", signHMAC(a.cfg.Key1, macData))

	raw, err := a.postForm(ctx, a.cfg.Endpoint+"/create", form)
	if err != nil {
		return nil, &Error{Provider: "zalopay", Op: "create", Err: err}
	}

	var resp zpCreateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Provider: "zalopay", Op: "create", Err: err}
	}

	if resp.ReturnCode != zpCodeSuccess {
		return nil, &Error{
			Provider: "zalopay",
			Op:       "create",
			Message:  fmt.Sprintf("return_code=%d: %s", resp.ReturnCode, resp.ReturnMessage),
		}
	}

	return &CreateOrderResult{
		PayURL:      resp.OrderURL,
		AppTransID:  appTransID,
		RawResponse: string(raw),
	}, nil
}

// zpQueryResponse — ответ ZaloPay на опрос статуса.
type zpQueryResponse struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	IsProcessing  bool   `json:"is_processing"`
	ZpTransID     int64  `json:"zp_trans_id"`
	Amount        int64  `json:"amount"`
}

// QueryOrder опрашивает статус платежа в ZaloPay и нормализует исход.
func (a *zalopayAdapter) QueryOrder(ctx context.Context, payment *domain.Payment) (*QueryResult, error) {
	if payment.AppTransID == "" {
		return nil, &Error{Provider: "zalopay", Op: "query", Message: "у платежа нет app_trans_id"}
	}

	// mac = HMAC(key1, app_id|app_trans_id|key1)
	macData := strings.Join([]string{a.cfg.AppID, payment.AppTransID, a.cfg.Key1}, "|")

	form := url.Values{}
	form.Set("app_id", a.cfg.AppID)
	form.Set("app_trans_id", payment.AppTransID)
	form.Set("mac", signHMAC(a.cfg.Key1, macData))

	raw, err := a.postForm(ctx, a.cfg.Endpoint+"/query", form)
	if err != nil {
		return nil, &Error{Provider: "zalopay", Op: "query", Err: err}
	}

	var resp zpQueryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Provider: "zalopay", Op: "query", Err: err}
	}

	result := &QueryResult{RawResponse: string(raw)}
	switch resp.ReturnCode {
	case zpCodeSuccess:
		result.Outcome = domain.OutcomeSuccess
		result.ProviderTransID = strconv.FormatInt(resp.ZpTransID, 10)
	case zpCodeProcessing:
		result.Outcome = domain.OutcomePending
	default:
		result.Outcome = domain.OutcomeFailure
	}

	return result, nil
}

// zpCallback — тело callback'а ZaloPay: подписанная строка data и mac.
type zpCallback struct {
	Data string `json:"data"`
	Mac  string `json:"mac"`
	Type int    `json:"type"`
}

// zpCallbackData — содержимое поля data после проверки подписи.
type zpCallbackData struct {
	AppTransID string `json:"app_trans_id"`
	ZpTransID  int64  `json:"zp_trans_id"`
	Amount     int64  `json:"amount"`
	AppUser    string `json:"app_user"`
}

// VerifyCallback проверяет подпись callback'а ZaloPay.
// ZaloPay присылает callback только об успешной оплате, поэтому
// проверенный callback всегда несёт исход success.
func (a *zalopayAdapter) VerifyCallback(body []byte) (*CallbackResult, error) {
	var cb zpCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, &Error{Provider: "zalopay", Op: "callback", Err: err}
	}

	expected := signHMAC(a.cfg.Key2, cb.Data)
	if !hmac.Equal([]byte(expected), []byte(cb.Mac)) {
		logger.Warn().Str("provider", "zalopay").Msg("Подпись callback'а не совпала")
		return nil, domain.ErrInvalidSignature
	}

	var data zpCallbackData
	if err := json.Unmarshal([]byte(cb.Data), &data); err != nil {
		return nil, &Error{Provider: "zalopay", Op: "callback", Err: err}
	}

	return &CallbackResult{
		PaymentRef:      data.AppTransID,
		Outcome:         domain.OutcomeSuccess,
		ProviderTransID: strconv.FormatInt(data.ZpTransID, 10),
		RawPayload:      string(body),
	}, nil
}

// postForm отправляет form-urlencoded запрос через circuit breaker.
func (a *zalopayAdapter) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	return circuitbreaker.Execute(a.breaker, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
			strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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

// signHMAC возвращает hex HMAC-SHA256 подпись данных.
func signHMAC(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
