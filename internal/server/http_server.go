package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"usdt-order-pay/internal/model"
	"usdt-order-pay/internal/repository"
	"usdt-order-pay/internal/service"
)

// orderResponse 订单响应结构（自定义 JSON 输出）
type orderResponse struct {
	ID              int64  `json:"id"`
	OrderNo         string `json:"order_no"`
	SequenceCode    string `json:"sequence_code"`
	TotalAmount     string `json:"total_amount"`
	PaymentMethod   string `json:"payment_method"`
	RequestedAmount string `json:"requested_amount,omitempty"`
	ReceivedAmount  string `json:"received_amount,omitempty"`
	TransferID      string `json:"transfer_id,omitempty"`
	WalletAddress   string `json:"wallet_address,omitempty"`
	Status          int16  `json:"status"`
	StatusText      string `json:"status_text"`
	CreatedAt       string `json:"created_at"`
	ExpiresAt       string `json:"expires_at,omitempty"`
}

// txResponse 支付流水响应结构
type txResponse struct {
	ID             int64  `json:"id"`
	TransferID     string `json:"transfer_id"`
	OrderID        int64  `json:"order_id"`
	Amount         string `json:"amount"`
	FromAddress    string `json:"from_address"`
	ToAddress      string `json:"to_address"`
	TokenSymbol    string `json:"token_symbol"`
	RawValue       string `json:"raw_value"`
	Decimals       int    `json:"decimals"`
	BlockTimestamp int64  `json:"block_timestamp"`
	CreatedAt      string `json:"created_at"`
}

// apiResponse 统一 API 响应
type apiResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// orderListData 订单列表数据
type orderListData struct {
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Orders   []orderResponse `json:"orders"`
}

// txListData 支付流水列表数据
type txListData struct {
	Total        int64        `json:"total"`
	Page         int          `json:"page"`
	PageSize     int          `json:"page_size"`
	Transactions []txResponse `json:"transactions"`
}

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	orderService *service.OrderService
	txRepo       *repository.TransactionRepository
}

// NewHTTPServer 创建并返回 HTTP 服务器
func NewHTTPServer(orderService *service.OrderService, txRepo *repository.TransactionRepository, port int) *http.Server {
	handler := &HTTPHandler{
		orderService: orderService,
		txRepo:       txRepo,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", handler.handleCreateOrder)
	mux.HandleFunc("GET /api/orders", handler.handleListOrders)
	mux.HandleFunc("GET /api/orders/{orderNo}", handler.handleGetOrder)
	mux.HandleFunc("GET /api/orders/{orderNo}/payment-status", handler.handlePaymentStatus)
	mux.HandleFunc("PUT /api/orders/{orderNo}/status", handler.handleUpdateStatus)
	mux.HandleFunc("PUT /api/orders/{orderNo}/cancel", handler.handleCancelOrder)
	mux.HandleFunc("GET /api/payments", handler.handleListPayments)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: withCORS(mux),
	}
}

// withCORS 加 CORS 头，放行预检请求
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleCreateOrder 创建订单
func (h *HTTPHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount        string `json:"amount"`
		PaymentMethod string `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Code: -1, Message: "请求体解析失败: " + err.Error()})
		return
	}
	if req.Amount == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Code: -1, Message: "金额不能为空"})
		return
	}

	var method int16
	switch req.PaymentMethod {
	case "", "crypto":
		method = model.PaymentMethodCrypto
	case "other":
		method = model.PaymentMethodOther
	default:
		writeJSON(w, http.StatusBadRequest, apiResponse{Code: -1, Message: "payment_method 应为 crypto 或 other"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := h.orderService.CreateOrder(ctx, req.Amount, method)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Code: -1, Message: "创建订单失败: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, apiResponse{Code: 0, Message: "success", Data: toOrderResponse(*order)})
}

// handleListOrders 订单列表
func (h *HTTPHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))

	filter := repository.OrderFilter{
		OrderNo:      query.Get("order_no"),
		SequenceCode: query.Get("sequence_code"),
		TransferID:   query.Get("transfer_id"),
		Page:         page,
		PageSize:     pageSize,
	}

	if statusStr := query.Get("status"); statusStr != "" {
		statusVal, err := strconv.ParseInt(statusStr, 10, 16)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiResponse{Code: -1, Message: "status 参数无效"})
			return
		}
		s := int16(statusVal)
		filter.Status = &s
	}
	if methodStr := query.Get("payment_method"); methodStr != "" {
		methodVal, err := strconv.ParseInt(methodStr, 10, 16)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiResponse{Code: -1, Message: "payment_method 参数无效"})
			return
		}
		m := int16(methodVal)
		filter.PaymentMethod = &m
	}

	orders, total, err := h.orderService.ListOrders(filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiResponse{Code: -1, Message: "查询失败: " + err.Error()})
		return
	}

	filter.Normalize()
	orderList := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		orderList = append(orderList, toOrderResponse(o))
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Code:    0,
		Message: "success",
		Data: orderListData{
			Total:    total,
			Page:     filter.Page,
			PageSize: filter.PageSize,
			Orders:   orderList,
		},
	})
}

// handleGetOrder 订单详情
func (h *HTTPHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrder(r.PathValue("orderNo"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Code: 0, Message: "success", Data: toOrderResponse(*order)})
}

// handlePaymentStatus 支付状态查询（前端倒计时轮询用）
func (h *HTTPHandler) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrder(r.PathValue("orderNo"))
	if err != nil {
		writeOrderError(w, err)
		return
	}

	data := map[string]interface{}{
		"order_no":    order.OrderNo,
		"status":      order.Status,
		"status_text": model.StatusText(order.Status),
	}
	if order.PaymentMethod == model.PaymentMethodCrypto {
		data["requested_amount"] = order.RequestedAmount.String()
		data["wallet_address"] = order.WalletAddress
		data["expires_at"] = order.ExpiresAt.Format(time.RFC3339)
		if order.Status == model.OrderStatusPaid {
			data["received_amount"] = order.ReceivedAmount.String()
			data["transfer_id"] = order.TransferID
		}
	}

	writeJSON(w, http.StatusOK, apiResponse{Code: 0, Message: "success", Data: data})
}

// handleUpdateStatus 管理端推进订单状态
func (h *HTTPHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status *int16 `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Code: -1, Message: "status 参数无效"})
		return
	}

	order, err := h.orderService.UpdateStatus(r.PathValue("orderNo"), *req.Status)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Code: 0, Message: "success", Data: toOrderResponse(*order)})
}

// handleCancelOrder 取消订单
func (h *HTTPHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.CancelOrder(r.PathValue("orderNo"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Code: 0, Message: "success", Data: toOrderResponse(*order)})
}

// handleListPayments 支付流水列表
func (h *HTTPHandler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	txs, total, err := h.txRepo.List(page, pageSize)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiResponse{Code: -1, Message: "查询失败: " + err.Error()})
		return
	}

	txList := make([]txResponse, 0, len(txs))
	for _, tx := range txs {
		txList = append(txList, txResponse{
			ID:             tx.ID,
			TransferID:     tx.TransferID,
			OrderID:        tx.OrderID,
			Amount:         tx.Amount.String(),
			FromAddress:    tx.FromAddress,
			ToAddress:      tx.ToAddress,
			TokenSymbol:    tx.TokenSymbol,
			RawValue:       tx.RawValue,
			Decimals:       tx.Decimals,
			BlockTimestamp: tx.BlockTimestamp,
			CreatedAt:      tx.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Code:    0,
		Message: "success",
		Data: txListData{
			Total:        total,
			Page:         page,
			PageSize:     pageSize,
			Transactions: txList,
		},
	})
}

// writeOrderError 把服务层错误映射为 HTTP 状态码
func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, apiResponse{Code: -1, Message: err.Error()})
	case errors.Is(err, service.ErrIllegalTransition):
		writeJSON(w, http.StatusConflict, apiResponse{Code: -1, Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, apiResponse{Code: -1, Message: err.Error()})
	}
}

// toOrderResponse 将 model.Order 转为响应结构
func toOrderResponse(o model.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		OrderNo:       o.OrderNo,
		SequenceCode:  o.SequenceCode,
		TotalAmount:   o.TotalAmount.String(),
		PaymentMethod: paymentMethodText(o.PaymentMethod),
		Status:        o.Status,
		StatusText:    model.StatusText(o.Status),
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
	}
	if o.PaymentMethod == model.PaymentMethodCrypto {
		resp.RequestedAmount = o.RequestedAmount.String()
		resp.WalletAddress = o.WalletAddress
		resp.ExpiresAt = o.ExpiresAt.Format(time.RFC3339)
		resp.TransferID = o.TransferID
		if o.ReceivedAmount.IsPositive() {
			resp.ReceivedAmount = o.ReceivedAmount.String()
		}
	}
	return resp
}

// paymentMethodText 支付方式文本
func paymentMethodText(method int16) string {
	if method == model.PaymentMethodCrypto {
		return "crypto"
	}
	return "other"
}

// writeJSON 写入 JSON 响应
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
