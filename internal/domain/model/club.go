package model

import "time"

// Club — клуб.
// Хранится в таблице clubs. OwnerEmail задаётся при создании и не меняется.
type Club struct {
	// ID — UUID клуба
	ID string
	// OwnerEmail — email владельца (неизменяем)
	OwnerEmail string
	// Name — название
	Name string
	// Description — описание
	Description string
	// Category — категория (спорт, музыка, ...)
	Category string
	// Location — место проведения встреч
	Location string
	// BannerURL — ссылка на баннер (опционально)
	BannerURL *string
	// MembershipFee — членский взнос
	MembershipFee float64
	// Status — статус (pending, approved, rejected)
	Status string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// ClubPatch — изменяемые владельцем поля клуба.
// nil — поле не меняется. Status и OwnerEmail через патч не меняются.
type ClubPatch struct {
	Name          *string
	Description   *string
	Category      *string
	Location      *string
	BannerURL     *string
	MembershipFee *float64
}

// IsEmpty возвращает true, если патч не содержит изменений.
func (p ClubPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Category == nil &&
		p.Location == nil && p.BannerURL == nil && p.MembershipFee == nil
}
