package models

import (
	"time"

	"github.com/google/uuid"
)

// GuestCacheTTL - окно свежести клиентского кеша позиции гостя.
// Записи старше отбрасываются, чтение начинается со стартовой страницы.
const GuestCacheTTL = 7 * 24 * time.Hour

// ReadingProgress - позиция читателя в истории. Одна строка на пару
// (user, story), обновляется при каждом продвижении.
type ReadingProgress struct {
	UserID            uuid.UUID  `db:"user_id" json:"userId"`
	StoryID           uuid.UUID  `db:"story_id" json:"storyId"`
	CurrentPageID     uuid.UUID  `db:"current_page_id" json:"currentPageId"`
	CurrentPageNumber int        `db:"current_page_number" json:"currentPageNumber"`
	IsBookmarked      bool       `db:"is_bookmarked" json:"isBookmarked"`
	IsCompleted       bool       `db:"is_completed" json:"isCompleted"`
	CompletedAt       *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	PagesRead         int        `db:"pages_read" json:"pagesRead"`
	ChoicesMade       int        `db:"choices_made" json:"choicesMade"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// Position возвращает текущую позицию из строки прогресса.
func (p *ReadingProgress) Position() Position {
	return Position{PageID: p.CurrentPageID, PageNumber: p.CurrentPageNumber}
}

// GuestCache - локально сохраненная позиция гостя, присылается клиентом.
// Сервер не хранит гостевой прогресс, только проверяет свежесть при бридже.
type GuestCache struct {
	StoryID     uuid.UUID `json:"storyId"`
	Position    Position  `json:"position"`
	TimestampMs int64     `json:"timestampMs"`
}

// IsFresh сообщает, попадает ли запись в окно свежести на момент now.
func (c *GuestCache) IsFresh(now time.Time) bool {
	savedAt := time.UnixMilli(c.TimestampMs)
	return now.Sub(savedAt) <= GuestCacheTTL
}

// PurchasedPath - факт разблокировки премиум-выбора. Создается ровно один
// раз на пару (user, choice) и никогда не изменяется; наличие строки -
// авторитетное доказательство владения, независимое от текущего баланса.
type PurchasedPath struct {
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	ChoiceID  uuid.UUID `db:"choice_id" json:"choiceId"`
	StoryID   uuid.UUID `db:"story_id" json:"storyId"`
	PricePaid int       `db:"price_paid" json:"pricePaid"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// UserBalance - счетчик валюты пользователя. Пополняется только внешней
// платежной подсистемой, списывается только при первой покупке премиум-пути.
type UserBalance struct {
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	Balance   int       `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
