// Пакет lifecycle — таблицы допустимых переходов статусов сущностей.
//
// Четыре независимых жизненных цикла:
//   - club, event: pending → approved | rejected (решение администратора)
//   - membership: pending → active (выдаёт RoleGrant) | rejected
//   - manager_application: pending → approved (повышает глобальную роль) | rejected,
//     rejected → pending только через повторную подачу заявки
//
// Пакет не обращается к хранилищу: проверка перехода отделена
// от условной записи, которую выполняет сервисный слой.
package lifecycle

import (
	"fmt"
	"sort"
	"strings"
)

// Entity — тип сущности с жизненным циклом.
type Entity string

const (
	EntityClub               Entity = "club"
	EntityEvent              Entity = "event"
	EntityMembership         Entity = "membership"
	EntityManagerApplication Entity = "manager_application"
)

// Статусы. Набор допустимых значений зависит от сущности.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusActive   = "active"
)

// SideEffect — производная запись, которую должен выполнить Propagator
// после фиксации перехода.
type SideEffect string

const (
	// SideEffectUpsertRoleGrant — создать/обновить RoleGrant (club_id, user_email)
	SideEffectUpsertRoleGrant SideEffect = "upsert_role_grant"
	// SideEffectPromoteGlobalRole — повысить глобальную роль до club_manager
	SideEffectPromoteGlobalRole SideEffect = "promote_global_role"
)

// Trigger — источник перехода.
type Trigger string

const (
	// TriggerReview — решение через эндпоинт смены статуса
	TriggerReview Trigger = "review"
	// TriggerReapply — повторная подача заявки на роль менеджера
	TriggerReapply Trigger = "reapply"
)

// Transition — допустимый переход и его побочные эффекты.
type Transition struct {
	Entity      Entity
	From        string
	To          string
	Trigger     Trigger
	SideEffects []SideEffect
}

// HasSideEffects возвращает true, если переход требует распространения.
func (t Transition) HasSideEffects() bool {
	return len(t.SideEffects) > 0
}

// states — закрытые перечисления статусов.
var states = map[Entity][]string{
	EntityClub:               {StatusPending, StatusApproved, StatusRejected},
	EntityEvent:              {StatusPending, StatusApproved, StatusRejected},
	EntityMembership:         {StatusPending, StatusActive, StatusRejected},
	EntityManagerApplication: {StatusPending, StatusApproved, StatusRejected},
}

type edge struct {
	from string
	to   string
}

type rule struct {
	trigger     Trigger
	sideEffects []SideEffect
}

// transitions — матрица допустимых переходов.
// Переход в тот же статус отсутствует: повтор запроса отклоняется.
var transitions = map[Entity]map[edge]rule{
	EntityClub: {
		{StatusPending, StatusApproved}: {trigger: TriggerReview},
		{StatusPending, StatusRejected}: {trigger: TriggerReview},
	},
	EntityEvent: {
		{StatusPending, StatusApproved}: {trigger: TriggerReview},
		{StatusPending, StatusRejected}: {trigger: TriggerReview},
	},
	EntityMembership: {
		{StatusPending, StatusActive}:   {trigger: TriggerReview, sideEffects: []SideEffect{SideEffectUpsertRoleGrant}},
		{StatusPending, StatusRejected}: {trigger: TriggerReview},
	},
	EntityManagerApplication: {
		{StatusPending, StatusApproved}: {trigger: TriggerReview, sideEffects: []SideEffect{SideEffectPromoteGlobalRole}},
		{StatusPending, StatusRejected}: {trigger: TriggerReview},
		// approved — конечный статус, выхода нет
		{StatusRejected, StatusPending}: {trigger: TriggerReapply},
	},
}

// Check проверяет переход from → to, инициированный решением через
// эндпоинт смены статуса. Возвращает *TransitionError, если переход недопустим.
func Check(entity Entity, from, to string) (Transition, error) {
	return check(entity, TriggerReview, from, to)
}

// CheckReapply проверяет повторную подачу заявки на роль менеджера
// из статуса from (допустимо только rejected → pending).
func CheckReapply(from string) (Transition, error) {
	return check(EntityManagerApplication, TriggerReapply, from, StatusPending)
}

func check(entity Entity, trigger Trigger, from, to string) (Transition, error) {
	table, ok := transitions[entity]
	if !ok {
		return Transition{}, &TransitionError{
			Code:    "INVALID_TRANSITION",
			Entity:  entity,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("неизвестная сущность %q", entity),
		}
	}

	r, ok := table[edge{from: from, to: to}]
	if !ok || r.trigger != trigger {
		msg := fmt.Sprintf("переход %s → %s недопустим для %s", from, to, entity)
		if trigger == TriggerReview {
			if allowed := Targets(entity, from); len(allowed) > 0 {
				msg += ", допустимые: " + strings.Join(allowed, ", ")
			} else {
				msg += ", статус " + from + " не меняется через рассмотрение"
			}
		}
		return Transition{}, &TransitionError{
			Code:    "INVALID_TRANSITION",
			Entity:  entity,
			From:    from,
			To:      to,
			Message: msg,
		}
	}

	effects := make([]SideEffect, len(r.sideEffects))
	copy(effects, r.sideEffects)

	return Transition{
		Entity:      entity,
		From:        from,
		To:          to,
		Trigger:     trigger,
		SideEffects: effects,
	}, nil
}

// ParseStatus проверяет, что s входит в перечисление статусов сущности.
func ParseStatus(entity Entity, s string) (string, error) {
	allowed, ok := states[entity]
	if !ok {
		return "", fmt.Errorf("неизвестная сущность %q", entity)
	}
	for _, st := range allowed {
		if st == s {
			return s, nil
		}
	}
	return "", fmt.Errorf("недопустимый статус %q, допустимые: %s", s, strings.Join(allowed, ", "))
}

// Targets возвращает статусы, в которые можно перейти из from
// через эндпоинт смены статуса (в алфавитном порядке).
func Targets(entity Entity, from string) []string {
	var result []string
	for e, r := range transitions[entity] {
		if e.from == from && r.trigger == TriggerReview {
			result = append(result, e.to)
		}
	}
	sort.Strings(result)
	return result
}

// TransitionError — ошибка недопустимого перехода.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION)
	Entity  Entity
	From    string
	To      string
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
