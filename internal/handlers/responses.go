package handlers

import (
	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
	"github.com/imrishuroy/go-mailorder-bridge/internal/validation"
)

// Response bodies are structs rather than maps so that key order on the
// wire is fixed.

type errorResponse = validation.ErrorBody

type orderResponse struct {
	Order *orders.Document `json:"order"`
}

type emptyResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

type decisionResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	OrderID         string `json:"order_id"`
	Operation       string `json:"operation"`
	DeliveryMinutes *int   `json:"delivery_minutes"`
	MovedTo         string `json:"moved_to"`
}

type acknowledgedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

type endpointsInfo struct {
	Health  string `json:"health"`
	Orders  string `json:"orders"`
	Order   string `json:"order"`
	Stats   string `json:"stats"`
	Metrics string `json:"metrics"`
}

type rootResponse struct {
	Service   string        `json:"service"`
	Version   string        `json:"version"`
	Endpoints endpointsInfo `json:"endpoints"`
	Timestamp string        `json:"timestamp"`
}
