package handler

import "github.com/Memoya/simfly.me-sub000/internal/infrastructure/auth"

// LoginRequest represents the request body for admin login
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginResponse represents the response body for successful login
type LoginResponse struct {
	Token auth.Token `json:"token"`
	User  string     `json:"user"`
}

// LogoutResponse represents the response body for logout
type LogoutResponse struct {
	Message string `json:"message"`
}
