package handler

import (
	"story-engine/internal/models"
	"story-engine/internal/service"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
	// Required/Available заполняются только для ошибки нехватки баланса.
	Required  int `json:"required,omitempty"`
	Available int `json:"available,omitempty"`
}

// positionPayload - адрес читателя в теле запроса. Номер страницы
// канонический, id принимается как вторичный ключ.
type positionPayload struct {
	PageID     string `json:"pageId"`
	PageNumber int    `json:"pageNumber"`
}

// guestCachePayload - локальный прогресс гостя, присылаемый клиентом.
type guestCachePayload struct {
	Position    positionPayload `json:"position"`
	TimestampMs int64           `json:"timestampMs"`
}

// resolveChoiceRequest - тело POST /stories/:id/choices/:choice_id.
type resolveChoiceRequest struct {
	CurrentPosition positionPayload `json:"currentPosition" binding:"required"`
}

// advancePageRequest - тело POST /stories/:id/advance.
type advancePageRequest struct {
	CurrentPosition positionPayload `json:"currentPosition" binding:"required"`
}

// bridgeProgressRequest - тело POST /me/stories/:id/progress/bridge.
type bridgeProgressRequest struct {
	GuestCache guestCachePayload `json:"guestCache" binding:"required"`
}

// creditBalanceRequest - тело внутреннего POST пополнения баланса.
type creditBalanceRequest struct {
	Amount int `json:"amount" binding:"required"`
}

// pageResponse - страница в ответах движка.
type pageResponse struct {
	ID         string          `json:"id"`
	PageNumber int             `json:"pageNumber"`
	Content    string          `json:"content"`
	PageType   models.PageType `json:"pageType"`
	IsEnding   bool            `json:"isEnding"`
}

// choiceResponse - доступный переход со страницы. Цель перехода клиенту
// не раскрывается до разрешения выбора.
type choiceResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsPremium bool   `json:"isPremium"`
	Cost      int    `json:"cost,omitempty"`
}

// progressResponse - durable прогресс аутентифицированного читателя.
type progressResponse struct {
	StoryID      string          `json:"storyId"`
	Position     models.Position `json:"position"`
	IsBookmarked bool            `json:"isBookmarked"`
	IsCompleted  bool            `json:"isCompleted"`
	PagesRead    int             `json:"pagesRead"`
	ChoicesMade  int             `json:"choicesMade"`
}

// resolutionResponse - результат продвижения по истории.
type resolutionResponse struct {
	Page     pageResponse          `json:"page"`
	Choices  []choiceResponse      `json:"choices"`
	IsEnding bool                  `json:"isEnding"`
	Progress *progressResponse     `json:"progress,omitempty"`
	Purchase *service.PurchaseInfo `json:"purchase,omitempty"`
}

// balanceResponse - текущий баланс пользователя.
type balanceResponse struct {
	Balance int `json:"balance"`
}

// bookmarkResponse - новое состояние закладки.
type bookmarkResponse struct {
	IsBookmarked bool `json:"isBookmarked"`
}

// validateGraphResponse - итог publish-time проверки графа.
type validateGraphResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems"`
}

func (p positionPayload) toModel() (models.Position, error) {
	pos := models.Position{PageNumber: p.PageNumber}
	if p.PageID != "" {
		id, err := parseUUID(p.PageID)
		if err != nil {
			return models.Position{}, err
		}
		pos.PageID = id
	}
	return pos, nil
}

func toPageResponse(p *models.Page) pageResponse {
	return pageResponse{
		ID:         p.ID.String(),
		PageNumber: p.PageNumber,
		Content:    p.Content,
		PageType:   p.PageType,
		IsEnding:   p.IsEnding,
	}
}

func toChoiceResponses(choices []*models.Choice) []choiceResponse {
	out := make([]choiceResponse, 0, len(choices))
	for _, c := range choices {
		out = append(out, choiceResponse{
			ID:        c.ID.String(),
			Text:      c.Text,
			IsPremium: c.IsPremium,
			Cost:      c.Cost,
		})
	}
	return out
}

func toProgressResponse(p *models.ReadingProgress) *progressResponse {
	if p == nil {
		return nil
	}
	return &progressResponse{
		StoryID:      p.StoryID.String(),
		Position:     p.Position(),
		IsBookmarked: p.IsBookmarked,
		IsCompleted:  p.IsCompleted,
		PagesRead:    p.PagesRead,
		ChoicesMade:  p.ChoicesMade,
	}
}

func toResolutionResponse(r *service.Resolution) resolutionResponse {
	return resolutionResponse{
		Page:     toPageResponse(r.Page),
		Choices:  toChoiceResponses(r.Choices),
		IsEnding: r.IsEnding,
		Progress: toProgressResponse(r.Progress),
		Purchase: r.Purchase,
	}
}
