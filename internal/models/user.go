package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleParent = "parent"
	RoleChild  = "child"
)

type User struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Email           string         `json:"email" gorm:"uniqueIndex;not null"`
	Password        string         `json:"-"`
	AuthProvider    string         `json:"authProvider" gorm:"default:email"`
	Name            string         `json:"name"`
	DisplayName     string         `json:"displayName"`
	AvatarURL       string         `json:"avatarUrl"`
	Role            string         `json:"role" gorm:"not null;default:parent"`
	ParentID        *uuid.UUID     `json:"parentId" gorm:"type:uuid;index"`
	LinkedAccountID *uuid.UUID     `json:"linkedAccountId" gorm:"type:uuid"`
	FCMToken        string         `json:"-" gorm:"column:fcm_token"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) IsChild() bool {
	return u.Role == RoleChild
}

// Auth DTOs
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type GoogleAuthRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
	Name        *string `json:"name"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Family DTOs
type CreateChildRequest struct {
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Password        string    `json:"password"`
	LinkedAccountID uuid.UUID `json:"linkedAccountId"`
}

type UpdateChildRequest struct {
	Name            *string    `json:"name"`
	Email           *string    `json:"email"`
	LinkedAccountID *uuid.UUID `json:"linkedAccountId"`
}

type ChildSummary struct {
	User
	LinkedAccount *Account `json:"linkedAccount"`
}
