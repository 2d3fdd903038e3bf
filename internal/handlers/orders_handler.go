package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/imrishuroy/go-mailorder-bridge/internal/gateway"
	"github.com/imrishuroy/go-mailorder-bridge/internal/metrics"
	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
	"github.com/imrishuroy/go-mailorder-bridge/internal/validation"
)

// HandlerConfig groups dependencies for the order API.
type HandlerConfig struct {
	Service     *gateway.Service
	Metrics     *metrics.Registry
	APIKey      string
	RateLimit   rate.Limit // per client IP; zero burst disables
	RateBurst   int
	ServiceName string
	Version     string
	Log         *logrus.Entry
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(
		RequestID(),
		AccessLog(cfg.Log, cfg.Metrics),
		RateLimit(cfg.RateLimit, cfg.RateBurst, cfg.Log),
		gin.Recovery(),
	)

	h := &ordersHandler{cfg: cfg, v: validation.New(), nowFunc: time.Now}
	r.GET("/", h.root)
	r.GET("/health", h.health)

	registerOrdersRoutes(r.Group("/", APIKeyAuth(cfg.APIKey, cfg.Log)), h)
	return r
}

// registerOrdersRoutes registers the protected order routes.
func registerOrdersRoutes(g *gin.RouterGroup, h *ordersHandler) {
	g.GET("/orders", h.nextPending)
	g.POST("/orders", h.decide)
	g.GET("/orders/:id", h.lookup)
	g.GET("/stats", h.stats)
	if h.cfg.Metrics != nil {
		g.GET("/metrics", gin.WrapH(h.cfg.Metrics.Handler()))
	}
}

type ordersHandler struct {
	cfg     HandlerConfig
	v       *validatorv10.Validate
	nowFunc func() time.Time
}

func (h *ordersHandler) log(c *gin.Context) *logrus.Entry {
	return h.cfg.Log.WithField("request_id", c.GetString(ctxRequestID))
}

func (h *ordersHandler) root(c *gin.Context) {
	c.PureJSON(http.StatusOK, rootResponse{
		Service: h.cfg.ServiceName,
		Version: h.cfg.Version,
		Endpoints: endpointsInfo{
			Health:  "/health",
			Orders:  "/orders [GET/POST]",
			Order:   "/orders/{id}",
			Stats:   "/stats",
			Metrics: "/metrics",
		},
		Timestamp: h.nowFunc().Format(time.RFC3339),
	})
}

func (h *ordersHandler) health(c *gin.Context) {
	c.PureJSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: h.nowFunc().Format(time.RFC3339),
		Service:   h.cfg.ServiceName,
	})
}

func (h *ordersHandler) nextPending(c *gin.Context) {
	doc, err := h.cfg.Service.NextPending(c.Request.Context())
	switch {
	case errors.Is(err, gateway.ErrEmpty):
		c.PureJSON(http.StatusOK, emptyResponse{
			Message: "No new orders with 'processing' status",
			Status:  "empty",
		})
	case err != nil:
		h.storeError(c, err, "error fetching orders")
	default:
		c.PureJSON(http.StatusOK, orderResponse{Order: doc})
	}
}

func (h *ordersHandler) decide(c *gin.Context) {
	var req validation.DecisionRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}
	fields := logrus.Fields{"order_id": req.OrderID, "operation": req.Operation}
	if req.DeliveryMinutes != nil {
		fields["delivery_minutes"] = int(*req.DeliveryMinutes)
	}
	h.log(c).WithFields(fields).Info("decision received")

	out, err := h.cfg.Service.ApplyDecision(c.Request.Context(), gateway.DecisionInput{
		OrderID:         req.OrderID,
		Operation:       req.Operation,
		DeliveryMinutes: req.DeliveryMinutes.IntPtr(),
	})
	switch {
	case errors.Is(err, orders.ErrNotFound):
		c.PureJSON(http.StatusNotFound, errorResponse{
			Error:   "order_not_found",
			Message: fmt.Sprintf("Order #%s not found", req.OrderID),
		})
		return
	case errors.Is(err, gateway.ErrInvalidOperation):
		c.PureJSON(http.StatusBadRequest, errorResponse{
			Error:   "invalid_operation",
			Message: "operation must be CONFIRM or CANCEL",
		})
		return
	case errors.Is(err, orders.ErrRaceLost):
		c.PureJSON(http.StatusInternalServerError, errorResponse{
			Error:   "race_lost",
			Message: "order was moved by another request",
		})
		return
	case err != nil:
		h.storeError(c, err, "error processing order")
		return
	}

	if out.Acknowledged {
		c.PureJSON(http.StatusOK, acknowledgedResponse{
			Success: true,
			Message: out.Message,
			OrderID: out.OrderID,
			Status:  "acknowledged",
		})
		return
	}
	c.PureJSON(http.StatusOK, decisionResponse{
		Success:         true,
		Message:         out.Message,
		OrderID:         out.OrderID,
		Operation:       string(out.Operation),
		DeliveryMinutes: out.DeliveryMinutes,
		MovedTo:         string(out.Bucket),
	})
}

func (h *ordersHandler) lookup(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.cfg.Service.Lookup(c.Request.Context(), id)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		c.PureJSON(http.StatusNotFound, errorResponse{
			Error:   "order_not_found",
			Message: fmt.Sprintf("Order #%s not found", id),
		})
	case err != nil:
		h.storeError(c, err, "error fetching order")
	default:
		c.PureJSON(http.StatusOK, orderResponse{Order: doc})
	}
}

func (h *ordersHandler) stats(c *gin.Context) {
	st, err := h.cfg.Service.Stats(c.Request.Context())
	if err != nil {
		h.storeError(c, err, "error calculating statistics")
		return
	}
	c.PureJSON(http.StatusOK, st)
}

// storeError logs err and answers 500 without exposing it.
func (h *ordersHandler) storeError(c *gin.Context, err error, msg string) {
	h.log(c).WithError(err).Error(msg)
	c.PureJSON(http.StatusInternalServerError, errorResponse{
		Error:   "store_error",
		Message: msg,
	})
}
