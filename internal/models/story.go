package models

import (
	"time"

	"github.com/google/uuid"
)

// PageType определяет поведение страницы при чтении.
type PageType string

const (
	// PageTypeStory - обычная страница, автоматически продолжается на следующую.
	PageTypeStory PageType = "story"
	// PageTypeChoice - страница ждет решения читателя.
	PageTypeChoice PageType = "choice"
	// PageTypeChat - страница в формате переписки, ждет решения читателя.
	PageTypeChat PageType = "chat"
)

// Story - опубликованная история. Создается системой авторинга,
// движок читает ее только после публикации.
type Story struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	Category   string    `db:"category" json:"category"`
	SpiceLevel int       `db:"spice_level" json:"spiceLevel"`
	WordCount  int       `db:"word_count" json:"wordCount"`
	PathCount  int       `db:"path_count" json:"pathCount"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// Page - вершина графа истории. PageNumber - канонический адрес страницы
// (монотонный, уникальный внутри истории), ID - вторичный стабильный ключ.
type Page struct {
	ID         uuid.UUID `db:"id" json:"id"`
	StoryID    uuid.UUID `db:"story_id" json:"storyId"`
	PageNumber int       `db:"page_number" json:"pageNumber"`
	Content    string    `db:"content" json:"content"`
	PageType   PageType  `db:"page_type" json:"pageType"`
	IsStarting bool      `db:"is_starting" json:"isStarting"`
	IsEnding   bool      `db:"is_ending" json:"isEnding"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Choice - ребро графа: переход с одной страницы на другую.
// Целевая страница адресуется и по ordinal, и по id (см. Position).
type Choice struct {
	ID               uuid.UUID `db:"id" json:"id"`
	StoryID          uuid.UUID `db:"story_id" json:"storyId"`
	PageID           uuid.UUID `db:"page_id" json:"pageId"`
	TargetPageID     uuid.UUID `db:"target_page_id" json:"targetPageId"`
	TargetPageNumber int       `db:"target_page_number" json:"targetPageNumber"`
	Text             string    `db:"text" json:"text"`
	IsPremium        bool      `db:"is_premium" json:"isPremium"`
	Cost             int       `db:"cost" json:"cost"`
	SortOrder        int       `db:"sort_order" json:"sortOrder"`
}

// Position - адрес читателя внутри истории. Канонический адрес - номер
// страницы, ID дублирует его как стабильный ключ; логика движка никогда
// не ветвится по "режиму адресации".
type Position struct {
	PageID     uuid.UUID `json:"pageId"`
	PageNumber int       `json:"pageNumber"`
}

// PositionOf возвращает позицию, указывающую на страницу.
func PositionOf(p *Page) Position {
	return Position{PageID: p.ID, PageNumber: p.PageNumber}
}

// StoryGraph - полный граф опубликованной истории: страницы и переходы.
// Используется publish-time валидацией и отдается генератору карты истории.
type StoryGraph struct {
	Story   *Story    `json:"story"`
	Pages   []*Page   `json:"pages"`
	Choices []*Choice `json:"choices"`
}
