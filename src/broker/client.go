package broker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bpsalgo/src/auth"
	"bpsalgo/src/interfaces"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// Client wraps the mStock Type A REST API. Every call degrades to mock
// placeholder data when the broker is unreachable, so the dashboard keeps
// rendering during outages.
// -----------------------------------------------------------------------------

type Client struct {
	Config  *models.MConfig
	Session *auth.SessionManager
	Network interfaces.INetworkManager
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewClient(cfg *models.MConfig, session *auth.SessionManager, netMgr interfaces.INetworkManager, log *logger.Logger) *Client {
	return &Client{
		Config:  cfg,
		Session: session,
		Network: netMgr,
		Logger:  log,
	}
}

// -----------------------------------------------------------------------------

type liveResponse struct {
	Success bool            `json:"success"`
	Data    []models.MQuote `json:"data"`
	Message string          `json:"message"`
}

type quoteResponse struct {
	Success bool          `json:"success"`
	Data    models.MQuote `json:"data"`
	Message string        `json:"message"`
}

type accountResponse struct {
	Success bool                `json:"success"`
	Data    models.MAccountInfo `json:"data"`
	Message string              `json:"message"`
}

type orderResponse struct {
	Success bool          `json:"success"`
	Data    models.MOrder `json:"data"`
	Message string        `json:"message"`
}

// -----------------------------------------------------------------------------

// GetLiveQuotes fetches live quotes for the given symbols in one batch call.
// On failure it returns mock quotes and a nil error; the Mock flag on each
// quote tells callers (and the UI) what they are looking at.
func (c *Client) GetLiveQuotes(symbols []string) (map[string]models.MQuote, error) {
	endpoint := c.endpoint("/v1/market/live")
	params := map[string]string{
		"symbols": strings.Join(symbols, ","),
	}

	respBytes, err := c.Network.Get(endpoint, params, c.headers())
	if err != nil {
		c.Logger.Warning("Live quote fetch failed, serving mock data: %v", err)
		return mockQuotes(symbols), nil
	}

	var resp liveResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse live response: %w", err)
	}
	if !resp.Success {
		c.Logger.Warning("Broker rejected live quote request: %s", resp.Message)
		return mockQuotes(symbols), nil
	}

	now := time.Now().Unix()
	quotes := make(map[string]models.MQuote, len(resp.Data))
	for _, q := range resp.Data {
		q.Symbol = strings.ToUpper(q.Symbol)
		q.FetchedAt = now
		if q.Timestamp == 0 {
			q.Timestamp = now
		}
		quotes[q.Symbol] = q
	}
	return quotes, nil
}

// -----------------------------------------------------------------------------

// GetQuote fetches a single symbol quote.
func (c *Client) GetQuote(symbol string) (models.MQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	endpoint := c.endpoint("/v1/market/quote/" + symbol)

	respBytes, err := c.Network.Get(endpoint, nil, c.headers())
	if err != nil {
		c.Logger.Warning("Quote fetch for %s failed, serving mock data: %v", symbol, err)
		return mockQuote(symbol), nil
	}

	var resp quoteResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return models.MQuote{}, fmt.Errorf("failed to parse quote response: %w", err)
	}
	if !resp.Success {
		return mockQuote(symbol), nil
	}

	q := resp.Data
	q.Symbol = symbol
	q.FetchedAt = time.Now().Unix()
	if q.Timestamp == 0 {
		q.Timestamp = q.FetchedAt
	}
	return q, nil
}

// -----------------------------------------------------------------------------

// GetAccountInfo fetches account balance and buying power.
func (c *Client) GetAccountInfo() (models.MAccountInfo, error) {
	endpoint := c.endpoint("/v1/account/info")

	respBytes, err := c.Network.Get(endpoint, nil, c.headers())
	if err != nil {
		c.Logger.Warning("Account info fetch failed, serving mock data: %v", err)
		return mockAccountInfo(c.Config.Broker.Account), nil
	}

	var resp accountResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return models.MAccountInfo{}, fmt.Errorf("failed to parse account response: %w", err)
	}
	if !resp.Success {
		return mockAccountInfo(c.Config.Broker.Account), nil
	}
	return resp.Data, nil
}

// -----------------------------------------------------------------------------

// PlaceOrder submits an order. Unlike the read paths there is no mock
// fallback here: a failed order placement is an error.
func (c *Client) PlaceOrder(symbol, side string, quantity int, price float64) (models.MOrder, error) {
	endpoint := c.endpoint("/v1/orders/place")
	payload := map[string]interface{}{
		"symbol":     symbol,
		"quantity":   quantity,
		"price":      price,
		"order_type": side,
	}

	respBytes, err := c.Network.Post(endpoint, payload, c.headers())
	if err != nil {
		return models.MOrder{}, fmt.Errorf("order placement failed: %w", err)
	}

	var resp orderResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return models.MOrder{}, fmt.Errorf("failed to parse order response: %w", err)
	}
	if !resp.Success {
		return models.MOrder{}, fmt.Errorf("broker rejected order: %s", resp.Message)
	}
	return resp.Data, nil
}

// -----------------------------------------------------------------------------

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.Config.Broker.BaseURL, "/") + path
}

// -----------------------------------------------------------------------------

func (c *Client) headers() map[string]string {
	h := map[string]string{
		"Authorization": "Bearer " + c.Session.APIKey(),
		"Accept":        "application/json",
	}
	if token := c.Session.AccessToken(); token != "" {
		h["X-Access-Token"] = token
	}
	return h
}
