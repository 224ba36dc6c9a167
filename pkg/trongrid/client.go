package trongrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// TransferType 对账只关心 Transfer 类型的转账
	TransferType = "Transfer"

	defaultTimeout = 30 * time.Second
	pageLimit      = 200
)

// Transfer 表示 TronGrid 返回的一笔 TRC20 转账记录
type Transfer struct {
	TransferID     string    `json:"transaction_id"`
	TokenInfo      TokenInfo `json:"token_info"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Type           string    `json:"type"`
	Value          string    `json:"value"`
	BlockTimestamp int64     `json:"block_timestamp"`
}

type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Name     string `json:"name"`
}

// transferResponse TronGrid API 响应
type transferResponse struct {
	Data    []Transfer `json:"data"`
	Success bool       `json:"success"`
	Meta    Meta       `json:"meta"`
}

type Meta struct {
	At          int64  `json:"at"`
	Fingerprint string `json:"fingerprint"`
	PageSize    int    `json:"page_size"`
}

// Client TronGrid HTTP 客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 创建 TronGrid 客户端，timeout <= 0 时使用默认 30 秒
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchRecentTransfers 获取指定地址最近的 TRC20 转账（按区块时间倒序的有界分页）
// 返回的窗口只保证“轮询时刻在窗口内”，不保证任何投递语义
func (c *Client) FetchRecentTransfers(ctx context.Context, address string, minTimestamp int64) ([]Transfer, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?limit=%d&order_by=block_timestamp,desc", c.baseURL, address, pageLimit)
	if minTimestamp > 0 {
		url += fmt.Sprintf("&min_timestamp=%d", minTimestamp)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 TronGrid 失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TronGrid 返回错误状态码: %d, body: %s", resp.StatusCode, string(body))
	}

	var result transferResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("TronGrid 返回失败")
	}

	return result.Data, nil
}
