package handler

import (
	"errors"
	"net/http"

	"story-engine/internal/authutils"
	"story-engine/internal/models"
	"story-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler обрабатывает HTTP запросы движка чтения.
type Handler struct {
	graph    service.StoryGraphService
	engine   service.EngineService
	progress service.ProgressService
	ledger   service.LedgerService
	logger   *zap.Logger

	userTokenVerifier         *authutils.JWTVerifier
	interServiceTokenVerifier *authutils.JWTVerifier
}

// NewHandler создает новый Handler с верификаторами токенов.
func NewHandler(
	graph service.StoryGraphService,
	engine service.EngineService,
	progress service.ProgressService,
	ledger service.LedgerService,
	logger *zap.Logger,
	jwtSecret, interServiceSecret string,
) *Handler {
	userVerifier, err := authutils.NewJWTVerifier(jwtSecret, logger)
	if err != nil {
		logger.Fatal("Failed to create User JWT Verifier", zap.Error(err))
	}
	interServiceVerifier, err := authutils.NewJWTVerifier(interServiceSecret, logger)
	if err != nil {
		logger.Fatal("Failed to create Inter-Service JWT Verifier", zap.Error(err))
	}

	return &Handler{
		graph:                     graph,
		engine:                    engine,
		progress:                  progress,
		ledger:                    ledger,
		logger:                    logger.Named("Handler"),
		userTokenVerifier:         userVerifier,
		interServiceTokenVerifier: interServiceVerifier,
	}
}

// RegisterRoutes регистрирует маршруты движка.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	optionalAuth := OptionalUserAuth(h.userTokenVerifier, h.logger)
	requireAuth := RequireUserAuth(h.userTokenVerifier, h.logger)
	serviceAuth := RequireServiceAuth(h.interServiceTokenVerifier, h.logger)

	// Читательские маршруты: доступны гостям, userID опционален.
	// Премиум-шлюз отклонит гостя уже на уровне сервиса.
	api := r.Group("/api", optionalAuth)
	{
		api.GET("/stories", h.listStories)
		api.GET("/stories/:id/start", h.startStory)
		api.POST("/stories/:id/choices/:choice_id", h.resolveChoice)
		api.POST("/stories/:id/advance", h.advancePage)
	}

	// Маршруты durable прогресса: только для аутентифицированных.
	me := r.Group("/api/me", requireAuth)
	{
		me.GET("/stories/:id/position", h.getPosition)
		me.POST("/stories/:id/reset", h.resetProgress)
		me.POST("/stories/:id/bookmark", h.toggleBookmark)
		me.POST("/stories/:id/progress/bridge", h.bridgeProgress)
		me.GET("/balance", h.getBalance)
	}

	// Внутренние маршруты для системы авторинга и платежной подсистемы.
	internal := r.Group("/internal", serviceAuth)
	{
		internal.POST("/stories/:id/validate", h.validateGraph)
		internal.GET("/stories/:id/graph", h.getGraph)
		internal.POST("/users/:user_id/balance/credit", h.creditBalance)
	}
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, models.ErrInvalidInput
	}
	return id, nil
}

// handleServiceError маппит ошибки сервисного слоя на HTTP статусы.
// Внутренние детали наружу не выходят.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var insufficient *models.InsufficientBalanceError

	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusPaymentRequired, APIError{
			Message:   "Insufficient balance",
			Required:  insufficient.Required,
			Available: insufficient.Available,
		})
	case errors.Is(err, models.ErrStoryNotFound):
		c.JSON(http.StatusNotFound, APIError{Message: "Story not found"})
	case errors.Is(err, models.ErrPageNotFound):
		c.JSON(http.StatusNotFound, APIError{Message: "Page not found"})
	case errors.Is(err, models.ErrChoiceNotFound):
		c.JSON(http.StatusNotFound, APIError{Message: "Choice not found at the current position"})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, APIError{Message: "Resource not found"})
	case errors.Is(err, models.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, APIError{Message: "Authentication required to unlock premium choices"})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, APIError{Message: "Forbidden"})
	case errors.Is(err, models.ErrStalePosition):
		c.JSON(http.StatusConflict, APIError{Message: "Current position is stale, refresh and retry"})
	case errors.Is(err, models.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request"})
	default:
		// ErrInvariantViolation и все неожиданное: логируем, наружу - 500
		h.logger.Error("Unhandled service error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: "Internal server error"})
	}
}
