package services

import (
	"time"

	"github.com/harvestly/harvestly/internal/models"
)

// UserResponse is the public projection of a user. Credential and token
// fields are never part of it.
type UserResponse struct {
	ID             string     `json:"id"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	State          string     `json:"state"`
	Role           string     `json:"role"`
	ProfilePicture string     `json:"profilePicture"`
	IsVerified     bool       `json:"isVerified"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// AuthResponse is returned by register, login and reset
type AuthResponse struct {
	Token   string        `json:"token,omitempty"`
	User    *UserResponse `json:"user"`
	Message string        `json:"message,omitempty"`
}

// ToUserResponse converts a user model to its public projection
func ToUserResponse(user *models.User) *UserResponse {
	if user == nil {
		return nil
	}
	return &UserResponse{
		ID:             user.ID,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Email:          user.Email,
		Phone:          user.Phone,
		State:          user.State,
		Role:           user.Role,
		ProfilePicture: user.ProfilePicture,
		IsVerified:     user.IsVerified,
		LastLogin:      user.LastLogin,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
}

func toUserResponses(users []*models.User) []*UserResponse {
	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, ToUserResponse(u))
	}
	return out
}
