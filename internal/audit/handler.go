package audit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler serves the transaction log
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new audit handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers audit routes
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	txs := router.Group("/api/transactions")
	{
		txs.GET("", h.listTransactions)
		txs.GET("/:id", h.getTransaction)
	}
}

// listTransactions handles GET /api/transactions
func (h *Handler) listTransactions(c *gin.Context) {
	filter := Filter{
		Kind:         c.Query("kind"),
		FunctionName: c.Query("function"),
	}
	if raw := c.Query("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid success filter"})
			return
		}
		filter.Success = &success
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	records, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list transactions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	if records == nil {
		records = []Record{}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transactions": records})
}

// getTransaction handles GET /api/transactions/:id
func (h *Handler) getTransaction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid id"})
		return
	}

	record, err := h.service.Get(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": record})
}
