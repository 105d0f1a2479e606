package model

// Identity — проверенная личность вызывающего, полученная из JWT.
// Для решений об авторизации используется только Email.
type Identity struct {
	// Email — claim email в нижнем регистре
	Email string
	// Subject — claim sub (для журналов)
	Subject string
}
