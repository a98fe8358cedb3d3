package handler

import (
	"net/http"
	"strconv"

	"story-engine/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// listStories возвращает опубликованные истории для витрины.
func (h *Handler) listStories(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	stories, err := h.graph.ListStories(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories})
}

// startStory отдает стартовую страницу истории. Для аутентифицированного
// читателя заодно поднимает (или создает) durable прогресс, для гостя -
// просто страница: его позиция живет на клиенте.
func (h *Handler) startStory(c *gin.Context) {
	storyID, err := parseUUID(c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	userID := userIDFromContext(c)
	ctx := c.Request.Context()

	if userID != uuid.Nil {
		progress, err := h.progress.GetOrInitPosition(ctx, userID, storyID)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		page, err := h.graph.GetPage(ctx, storyID, progress.Position())
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		choices, err := h.graph.GetOutgoingChoices(ctx, page.ID)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, resolutionResponse{
			Page:     toPageResponse(page),
			Choices:  toChoiceResponses(choices),
			IsEnding: page.IsEnding,
			Progress: toProgressResponse(progress),
		})
		return
	}

	start, err := h.graph.GetStartPage(ctx, storyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	choices, err := h.graph.GetOutgoingChoices(ctx, start.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolutionResponse{
		Page:     toPageResponse(start),
		Choices:  toChoiceResponses(choices),
		IsEnding: start.IsEnding,
	})
}

// resolveChoice - единственная точка продвижения через выбор.
func (h *Handler) resolveChoice(c *gin.Context) {
	storyID, err := parseUUID(c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	choiceID, err := parseUUID(c.Param("choice_id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	var req resolveChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}
	pos, err := req.CurrentPosition.toModel()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	userID := userIDFromContext(c)
	resolution, err := h.engine.ResolveChoice(c.Request.Context(), userID, storyID, pos, choiceID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if resolution.Purchase != nil && !resolution.Purchase.AlreadyOwned {
		premiumPurchasesTotal.Inc()
	}
	choicesResolvedTotal.Inc()

	c.JSON(http.StatusOK, toResolutionResponse(resolution))
}

// advancePage - автопереход со страницы без выбора.
func (h *Handler) advancePage(c *gin.Context) {
	storyID, err := parseUUID(c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	var req advancePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}
	pos, err := req.CurrentPosition.toModel()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	userID := userIDFromContext(c)
	resolution, err := h.engine.AdvancePage(c.Request.Context(), userID, storyID, pos)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResolutionResponse(resolution))
}

// getPosition возвращает durable позицию читателя, создавая ее при
// первом обращении.
func (h *Handler) getPosition(c *gin.Context) {
	storyID, err := parseUUID(c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	progress, err := h.progress.GetOrInitPosition(c.Request.Context(), userIDFromContext(c), storyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProgressResponse(progress))
}

// resetProgress - явное "читать сначала".
func (h *Handler) resetProgress(c *gin.Context) {
	storyID, err := parseUUID(c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	progress, err := h.progress.ResetToStart(c.Request.Context(), userIDFromContext(c), storyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProgressResponse(progress))
}

// toggleBookmark переключает закладку.
func (h *Handler) toggleBookmark(c *gin.Context) {
	storyID, err := parseUUID(c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	bookmarked, err := h.progress.ToggleBookmark(c.Request.Context(), userIDFromContext(c), storyID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookmarkResponse{IsBookmarked: bookmarked})
}

// bridgeProgress сводит гостевой кеш с серверным состоянием при логине.
func (h *Handler) bridgeProgress(c *gin.Context) {
	storyID, err := parseUUID(c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	var req bridgeProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}
	pos, err := req.GuestCache.Position.toModel()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	userID := userIDFromContext(c)
	cache := &models.GuestCache{
		StoryID:     storyID,
		Position:    pos,
		TimestampMs: req.GuestCache.TimestampMs,
	}

	progress, err := h.progress.BridgeGuestToUser(c.Request.Context(), userID, cache)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.logger.Info("Guest progress bridged",
		zap.Stringer("userID", userID), zap.Stringer("storyID", storyID))
	c.JSON(http.StatusOK, toProgressResponse(progress))
}

// getBalance возвращает текущий баланс пользователя.
func (h *Handler) getBalance(c *gin.Context) {
	balance, err := h.ledger.GetBalance(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{Balance: balance})
}
