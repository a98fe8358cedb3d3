package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"story-engine/internal/models"
	"story-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret          = "test-jwt-secret"
	testInterServiceSecret = "test-interservice-secret"
)

// Стабы сервисов: подменяют только то, что дергает конкретный тест.

type stubGraphService struct {
	listStoriesFn   func(ctx context.Context, limit, offset int) ([]*models.Story, error)
	getStartPageFn  func(ctx context.Context, storyID uuid.UUID) (*models.Page, error)
	validateGraphFn func(ctx context.Context, storyID uuid.UUID) ([]string, error)
}

func (s *stubGraphService) GetStory(ctx context.Context, storyID uuid.UUID) (*models.Story, error) {
	return nil, models.ErrStoryNotFound
}
func (s *stubGraphService) ListStories(ctx context.Context, limit, offset int) ([]*models.Story, error) {
	if s.listStoriesFn != nil {
		return s.listStoriesFn(ctx, limit, offset)
	}
	return []*models.Story{}, nil
}
func (s *stubGraphService) GetStartPage(ctx context.Context, storyID uuid.UUID) (*models.Page, error) {
	if s.getStartPageFn != nil {
		return s.getStartPageFn(ctx, storyID)
	}
	return nil, models.ErrStoryNotFound
}
func (s *stubGraphService) GetPage(ctx context.Context, storyID uuid.UUID, pos models.Position) (*models.Page, error) {
	return nil, models.ErrPageNotFound
}
func (s *stubGraphService) GetOutgoingChoices(ctx context.Context, pageID uuid.UUID) ([]*models.Choice, error) {
	return []*models.Choice{}, nil
}
func (s *stubGraphService) GetAutoAdvanceTarget(ctx context.Context, storyID uuid.UUID, pageNumber int) (*models.Page, error) {
	return nil, nil
}
func (s *stubGraphService) GetGraph(ctx context.Context, storyID uuid.UUID) (*models.StoryGraph, error) {
	return nil, models.ErrStoryNotFound
}
func (s *stubGraphService) ValidateGraph(ctx context.Context, storyID uuid.UUID) ([]string, error) {
	if s.validateGraphFn != nil {
		return s.validateGraphFn(ctx, storyID)
	}
	return nil, nil
}

type stubEngineService struct {
	resolveChoiceFn func(ctx context.Context, userID, storyID uuid.UUID, pos models.Position, choiceID uuid.UUID) (*service.Resolution, error)
}

func (s *stubEngineService) ResolveChoice(ctx context.Context, userID, storyID uuid.UUID, pos models.Position, choiceID uuid.UUID) (*service.Resolution, error) {
	if s.resolveChoiceFn != nil {
		return s.resolveChoiceFn(ctx, userID, storyID, pos, choiceID)
	}
	return nil, models.ErrChoiceNotFound
}
func (s *stubEngineService) AdvancePage(ctx context.Context, userID, storyID uuid.UUID, pos models.Position) (*service.Resolution, error) {
	return nil, models.ErrStalePosition
}

type stubProgressService struct {
	getOrInitFn func(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error)
}

func (s *stubProgressService) GetOrInitPosition(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error) {
	if s.getOrInitFn != nil {
		return s.getOrInitFn(ctx, userID, storyID)
	}
	return nil, models.ErrStoryNotFound
}
func (s *stubProgressService) ResetToStart(ctx context.Context, userID, storyID uuid.UUID) (*models.ReadingProgress, error) {
	return nil, models.ErrStoryNotFound
}
func (s *stubProgressService) ToggleBookmark(ctx context.Context, userID, storyID uuid.UUID) (bool, error) {
	return false, models.ErrStoryNotFound
}
func (s *stubProgressService) BridgeGuestToUser(ctx context.Context, userID uuid.UUID, cache *models.GuestCache) (*models.ReadingProgress, error) {
	return nil, models.ErrStoryNotFound
}

type stubLedgerService struct {
	balance int
}

func (s *stubLedgerService) Credit(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, models.ErrInvalidInput
	}
	s.balance += amount
	return s.balance, nil
}
func (s *stubLedgerService) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.balance, nil
}

func newTestRouter(t *testing.T, graph service.StoryGraphService, engine service.EngineService,
	progress service.ProgressService, ledger service.LedgerService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewHandler(graph, engine, progress, ledger, zap.NewNop(), testJWTSecret, testInterServiceSecret)
	h.RegisterRoutes(router)
	return router
}

func signUserToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := &models.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func signServiceToken(t *testing.T, serviceName string) string {
	t.Helper()
	claims := &models.ServiceClaims{
		ServiceName: serviceName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testInterServiceSecret))
	require.NoError(t, err)
	return token
}

func resolveChoiceBody(t *testing.T, pageNumber int) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(resolveChoiceRequest{
		CurrentPosition: positionPayload{PageNumber: pageNumber},
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestHandler_ResolveChoice_ErrorMapping(t *testing.T) {
	storyID := uuid.New()
	choiceID := uuid.New()
	url := fmt.Sprintf("/api/stories/%s/choices/%s", storyID, choiceID)

	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"story not found", models.ErrStoryNotFound, http.StatusNotFound},
		{"choice not found", models.ErrChoiceNotFound, http.StatusNotFound},
		{"auth required for premium", models.ErrAuthRequired, http.StatusUnauthorized},
		{"stale position", models.ErrStalePosition, http.StatusConflict},
		{"graph invariant violation is opaque", models.ErrInvariantViolation, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubEngineService{
				resolveChoiceFn: func(ctx context.Context, userID, sID uuid.UUID, pos models.Position, cID uuid.UUID) (*service.Resolution, error) {
					return nil, tt.serviceErr
				},
			}
			router := newTestRouter(t, &stubGraphService{}, engine, &stubProgressService{}, &stubLedgerService{})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, url, resolveChoiceBody(t, 3))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	t.Run("insufficient balance returns 402 with both amounts", func(t *testing.T) {
		engine := &stubEngineService{
			resolveChoiceFn: func(ctx context.Context, userID, sID uuid.UUID, pos models.Position, cID uuid.UUID) (*service.Resolution, error) {
				return nil, &models.InsufficientBalanceError{Required: 30, Available: 12}
			},
		}
		router := newTestRouter(t, &stubGraphService{}, engine, &stubProgressService{}, &stubLedgerService{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, url, resolveChoiceBody(t, 3))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		var apiErr APIError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
		assert.Equal(t, 30, apiErr.Required)
		assert.Equal(t, 12, apiErr.Available)
	})

	t.Run("successful resolution renders the destination", func(t *testing.T) {
		destination := &models.Page{ID: uuid.New(), StoryID: storyID, PageNumber: 4, Content: "and so it goes", PageType: models.PageTypeStory}
		engine := &stubEngineService{
			resolveChoiceFn: func(ctx context.Context, userID, sID uuid.UUID, pos models.Position, cID uuid.UUID) (*service.Resolution, error) {
				return &service.Resolution{
					Page:     destination,
					Choices:  []*models.Choice{},
					Purchase: &service.PurchaseInfo{Cost: 30, AlreadyOwned: true},
				}, nil
			},
		}
		router := newTestRouter(t, &stubGraphService{}, engine, &stubProgressService{}, &stubLedgerService{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, url, resolveChoiceBody(t, 3))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var res resolutionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, 4, res.Page.PageNumber)
		require.NotNil(t, res.Purchase)
		assert.True(t, res.Purchase.AlreadyOwned)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		router := newTestRouter(t, &stubGraphService{}, &stubEngineService{}, &stubProgressService{}, &stubLedgerService{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, url, bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Auth(t *testing.T) {
	storyID := uuid.New()

	t.Run("progress routes reject missing token", func(t *testing.T) {
		router := newTestRouter(t, &stubGraphService{}, &stubEngineService{}, &stubProgressService{}, &stubLedgerService{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/me/stories/%s/position", storyID), nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("progress routes accept a valid token", func(t *testing.T) {
		userID := uuid.New()
		progress := &stubProgressService{
			getOrInitFn: func(ctx context.Context, uID, sID uuid.UUID) (*models.ReadingProgress, error) {
				assert.Equal(t, userID, uID)
				return &models.ReadingProgress{UserID: uID, StoryID: sID, CurrentPageNumber: 1}, nil
			},
		}
		router := newTestRouter(t, &stubGraphService{}, &stubEngineService{}, progress, &stubLedgerService{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/me/stories/%s/position", storyID), nil)
		req.Header.Set("Authorization", "Bearer "+signUserToken(t, userID))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid token on a guest-capable route is rejected, not downgraded", func(t *testing.T) {
		router := newTestRouter(t, &stubGraphService{}, &stubEngineService{}, &stubProgressService{}, &stubLedgerService{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/stories", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("internal routes reject user tokens", func(t *testing.T) {
		router := newTestRouter(t, &stubGraphService{}, &stubEngineService{}, &stubProgressService{}, &stubLedgerService{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/internal/stories/%s/validate", storyID), nil)
		req.Header.Set("Authorization", "Bearer "+signUserToken(t, uuid.New()))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("internal validate accepts a service token", func(t *testing.T) {
		graph := &stubGraphService{
			validateGraphFn: func(ctx context.Context, sID uuid.UUID) ([]string, error) {
				return []string{"story has no starting page"}, nil
			},
		}
		router := newTestRouter(t, graph, &stubEngineService{}, &stubProgressService{}, &stubLedgerService{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/internal/stories/%s/validate", storyID), nil)
		req.Header.Set("Authorization", "Bearer "+signServiceToken(t, "authoring-service"))
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var res validateGraphResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.False(t, res.Valid)
		assert.Len(t, res.Problems, 1)
	})
}

func TestHandler_CreditBalance(t *testing.T) {
	userID := uuid.New()
	url := fmt.Sprintf("/internal/users/%s/balance/credit", userID)

	t.Run("credits and returns the new balance", func(t *testing.T) {
		ledger := &stubLedgerService{balance: 10}
		router := newTestRouter(t, &stubGraphService{}, &stubEngineService{}, &stubProgressService{}, ledger)

		body, _ := json.Marshal(creditBalanceRequest{Amount: 50})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+signServiceToken(t, "payment-service"))
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var res balanceResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, 60, res.Balance)
	})

	t.Run("non-positive amount is rejected", func(t *testing.T) {
		router := newTestRouter(t, &stubGraphService{}, &stubEngineService{}, &stubProgressService{}, &stubLedgerService{})

		body, _ := json.Marshal(creditBalanceRequest{Amount: -5})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+signServiceToken(t, "payment-service"))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
