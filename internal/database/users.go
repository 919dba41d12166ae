package database

import (
	"context"
	"errors"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CreateUser stores a new account with a bcrypt password hash. Accounts are
// created by registration or seeding, so the new user is the audit actor.
func CreateUser(ctx context.Context, username, password, role string) (*models.User, error) {
	if !models.ValidRole(role) {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "unknown role %q", role)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Username: username, PasswordHash: hash, Role: role}
	err = DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return duplicate(err, "user "+username)
		}
		return Record(tx, user.ID, "create", "user", user.ID, map[string]string{
			"username": user.Username,
			"role":     user.Role,
		})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate returns the user when the password matches
func Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := DB.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, "invalid credentials")
	}
	return &user, nil
}

func GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := DB.WithContext(ctx).Order("username").Find(&users).Error
	return users, err
}

// SetUserRole changes a user's role. An admin cannot demote themselves, so
// the system always keeps at least the acting admin.
func SetUserRole(ctx context.Context, actorID, userID uint, role string) (*models.User, error) {
	if !models.ValidRole(role) {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "unknown role %q", role)
	}
	if actorID == userID && role != models.RoleAdmin {
		return nil, apperr.Wrap(apperr.ErrInvalidState, "you cannot remove your own admin role")
	}

	var user models.User
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}
		if err := tx.Model(&user).Update("role", role).Error; err != nil {
			return err
		}
		return Record(tx, actorID, "set_role", "user", user.ID, map[string]string{"role": role})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
