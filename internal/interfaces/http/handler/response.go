package handler

import "github.com/Memoya/simfly.me-sub000/internal/interfaces/http/dto"

// APIResponse represents a generic API response for documentation
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}
