package models

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CurrentUser is the authenticated caller
type CurrentUser struct {
	Username string `json:"username"`
}
