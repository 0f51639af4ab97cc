// Package chain предоставляет клиент шлюза блокчейна для выпуска токенов и запроса балансов.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/mmeshcher/greenledger/internal/model"
)

// Receipt описывает результат выпуска токенов.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
}

// Minter выпускает токены контракта на адрес и сообщает баланс адреса.
// Суммы передаются в минимальных единицах токена.
type Minter interface {
	Mint(ctx context.Context, to string, amount *big.Int) (*Receipt, error)
	BalanceOf(ctx context.Context, address string) (*big.Int, error)
}

// Client инкапсулирует HTTP-взаимодействие со шлюзом блокчейна для одного контракта.
type Client struct {
	baseURL    string
	contract   string
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
}

var _ Minter = (*Client)(nil)

// NewClient создаёт клиент шлюза для контракта. rps ограничивает частоту запросов, 0 снимает ограничение.
func NewClient(baseURL, contract string, rps float64) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	rc.CheckRetry = checkRetry

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Client{
		baseURL:    base,
		contract:   contract,
		httpClient: rc,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

type noRetryKey struct{}

// checkRetry повторяет только запросы без побочных эффектов. Выпуск токенов не идемпотентен:
// при потерянном ответе шлюз мог уже выполнить его.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Value(noRetryKey{}) != nil {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type mintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Mint выпускает amount минимальных единиц токена на адрес to.
func (c *Client) Mint(ctx context.Context, to string, amount *big.Int) (*Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, model.ErrInvalidAmount
	}

	body, err := json.Marshal(mintRequest{To: to, Amount: amount.String()})
	if err != nil {
		return nil, fmt.Errorf("encode mint request: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/mint", body)
	if err != nil {
		return nil, err
	}

	hash := gjson.GetBytes(raw, "txHash")
	if !hash.Exists() || hash.String() == "" {
		return nil, fmt.Errorf("%w: mint response without txHash", model.ErrExternalService)
	}

	return &Receipt{
		TxHash:      hash.String(),
		BlockNumber: gjson.GetBytes(raw, "blockNumber").Uint(),
	}, nil
}

// BalanceOf возвращает баланс адреса в минимальных единицах токена.
func (c *Client) BalanceOf(ctx context.Context, address string) (*big.Int, error) {
	raw, err := c.do(ctx, http.MethodGet, "/balance/"+address, nil)
	if err != nil {
		return nil, err
	}

	value := gjson.GetBytes(raw, "balance").String()
	balance, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad balance %q", model.ErrExternalService, value)
	}
	return balance, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: chain gateway not configured", model.ErrExternalService)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	url := fmt.Sprintf("%s/api/tokens/%s%s", c.baseURL, c.contract, path)

	if method != http.MethodGet {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", model.ErrExternalService, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error").String()
		return nil, fmt.Errorf("%w: unexpected status %d %s", model.ErrExternalService, resp.StatusCode, msg)
	}

	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid json response", model.ErrExternalService)
	}

	return raw, nil
}
