package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// validateGraph запускает publish-time проверку целостности графа.
// Вызывается системой авторинга перед публикацией истории.
func (h *Handler) validateGraph(c *gin.Context) {
	storyID, err := parseUUID(c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	problems, err := h.graph.ValidateGraph(c.Request.Context(), storyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if problems == nil {
		problems = []string{}
	}
	c.JSON(http.StatusOK, validateGraphResponse{
		Valid:    len(problems) == 0,
		Problems: problems,
	})
}

// getGraph отдает полный граф истории генератору карты.
func (h *Handler) getGraph(c *gin.Context) {
	storyID, err := parseUUID(c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	graph, err := h.graph.GetGraph(c.Request.Context(), storyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph)
}

// creditBalance пополняет баланс по подтверждению платежной подсистемы.
// Дублирует AMQP-консьюмер как синхронный канал.
func (h *Handler) creditBalance(c *gin.Context) {
	userID, err := parseUUID(c.Param("user_id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	var req creditBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	newBalance, err := h.ledger.Credit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	balanceCreditsTotal.Inc()
	h.logger.Info("Balance credited",
		zap.Stringer("userID", userID),
		zap.Int("amount", req.Amount),
		zap.String("service", c.GetString(ctxServiceNameKey)))
	c.JSON(http.StatusOK, balanceResponse{Balance: newBalance})
}
