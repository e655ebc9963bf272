package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arnold/kumbara-api/internal/lock"
	"github.com/arnold/kumbara-api/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func findUser(tx *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// ownChild loads a child of the parent. Other users are reported as missing.
func ownChild(tx *gorm.DB, parentID, childID uuid.UUID) (*models.User, error) {
	child, err := findUser(tx, childID)
	if err != nil {
		return nil, err
	}
	if child.ParentID == nil || *child.ParentID != parentID {
		return nil, ErrUserNotFound
	}
	return child, nil
}

func requireParent(tx *gorm.DB, userID uuid.UUID) error {
	user, err := findUser(tx, userID)
	if err != nil {
		return err
	}
	if user.IsChild() {
		return ErrForbidden
	}
	return nil
}

// linkableAccount loads an account the parent can attach a child to.
func linkableAccount(tx *gorm.DB, parentID, accountID uuid.UUID, childID *uuid.UUID) (*models.Account, error) {
	acct, err := ownedAccount(tx, parentID, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.Type.Linkable() {
		return nil, fmt.Errorf("%w: %s accounts cannot be linked", ErrValidation, acct.Type)
	}
	if acct.LinkedUserID != nil && (childID == nil || *acct.LinkedUserID != *childID) {
		return nil, fmt.Errorf("%w: account is already linked", ErrValidation)
	}
	return acct, nil
}

func emailTaken(tx *gorm.DB, email string, except uuid.UUID) (bool, error) {
	var n int64
	if err := tx.Unscoped().Model(&models.User{}).Where("email = ? AND id <> ?", email, except).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return n > 0, nil
}

func setLinkedUser(tx *gorm.DB, accountID uuid.UUID, userID *uuid.UUID) error {
	if err := tx.Model(&models.Account{}).Where("id = ?", accountID).Update("linked_user_id", userID).Error; err != nil {
		return fmt.Errorf("link account: %w", err)
	}
	return nil
}

// Children lists the parent's children with the account each one is
// linked to.
func (s *LedgerService) Children(ctx context.Context, parentID uuid.UUID) ([]models.ChildSummary, error) {
	var children []models.User
	if err := s.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Find(&children).Error; err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}

	summaries := make([]models.ChildSummary, len(children))
	for i, child := range children {
		summaries[i] = models.ChildSummary{User: child}
		if child.LinkedAccountID == nil {
			continue
		}
		acct, err := findAccount(s.db.WithContext(ctx), *child.LinkedAccountID)
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		summaries[i].LinkedAccount = acct
	}
	return summaries, nil
}

// CreateChild registers a child user under the parent and links it to one
// of the parent's savings or piggy accounts. Deposits into that account are
// then distributed across the child's goals.
func (s *LedgerService) CreateChild(ctx context.Context, parentID uuid.UUID, req models.CreateChildRequest) (*models.User, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", ErrValidation)
	}
	if len(req.Password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}
	if req.LinkedAccountID == uuid.Nil {
		return nil, fmt.Errorf("%w: linked account is required", ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	child := models.User{
		ID:              uuid.New(),
		Email:           req.Email,
		Password:        string(hashed),
		Name:            req.Name,
		Role:            models.RoleChild,
		ParentID:        &parentID,
		LinkedAccountID: &req.LinkedAccountID,
	}
	keys := []string{lock.AccountKey(req.LinkedAccountID), lock.OwnerKey(child.ID)}
	err = s.locked(ctx, keys, func(tx *gorm.DB) error {
		if err := requireParent(tx, parentID); err != nil {
			return err
		}
		acct, err := linkableAccount(tx, parentID, req.LinkedAccountID, nil)
		if err != nil {
			return err
		}
		taken, err := emailTaken(tx, child.Email, child.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: email already registered", ErrValidation)
		}
		if err := tx.Create(&child).Error; err != nil {
			return fmt.Errorf("create child: %w", err)
		}
		return setLinkedUser(tx, acct.ID, &child.ID)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("child created", "parent_id", parentID, "child_id", child.ID, "account_id", req.LinkedAccountID)
	return &child, nil
}

// UpdateChild changes a child's profile. Moving the child to another
// account unlinks the old one.
func (s *LedgerService) UpdateChild(ctx context.Context, parentID, childID uuid.UUID, req models.UpdateChildRequest) (*models.User, error) {
	before, err := ownChild(s.db.WithContext(ctx), parentID, childID)
	if err != nil {
		return nil, err
	}

	keys := []string{lock.OwnerKey(childID)}
	if before.LinkedAccountID != nil {
		keys = append(keys, lock.AccountKey(*before.LinkedAccountID))
	}
	if req.LinkedAccountID != nil {
		keys = append(keys, lock.AccountKey(*req.LinkedAccountID))
	}

	var child *models.User
	err = s.locked(ctx, keys, func(tx *gorm.DB) error {
		child, err = ownChild(tx, parentID, childID)
		if err != nil {
			return err
		}
		if !sameAccountRef(before.LinkedAccountID, child.LinkedAccountID) {
			return fmt.Errorf("%w: child %s was relinked", ErrConcurrentUpdate, childID)
		}

		updates := map[string]interface{}{}
		if req.Name != nil {
			if *req.Name == "" {
				return fmt.Errorf("%w: name is required", ErrValidation)
			}
			updates["name"] = *req.Name
		}
		if req.Email != nil {
			email := strings.TrimSpace(strings.ToLower(*req.Email))
			if email == "" {
				return fmt.Errorf("%w: email is required", ErrValidation)
			}
			taken, err := emailTaken(tx, email, childID)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: email already registered", ErrValidation)
			}
			updates["email"] = email
		}
		if req.LinkedAccountID != nil && !sameAccountRef(child.LinkedAccountID, req.LinkedAccountID) {
			acct, err := linkableAccount(tx, parentID, *req.LinkedAccountID, &childID)
			if err != nil {
				return err
			}
			if child.LinkedAccountID != nil {
				if err := setLinkedUser(tx, *child.LinkedAccountID, nil); err != nil {
					return err
				}
			}
			if err := setLinkedUser(tx, acct.ID, &childID); err != nil {
				return err
			}
			updates["linked_account_id"] = acct.ID
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(child).Updates(updates).Error; err != nil {
			return fmt.Errorf("update child: %w", err)
		}
		child, err = findUser(tx, childID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// DeleteChild removes a child and unlinks its account. The child's goals
// are kept with the soft-deleted user.
func (s *LedgerService) DeleteChild(ctx context.Context, parentID, childID uuid.UUID) error {
	before, err := ownChild(s.db.WithContext(ctx), parentID, childID)
	if err != nil {
		return err
	}
	keys := []string{lock.OwnerKey(childID)}
	if before.LinkedAccountID != nil {
		keys = append(keys, lock.AccountKey(*before.LinkedAccountID))
	}

	return s.locked(ctx, keys, func(tx *gorm.DB) error {
		child, err := ownChild(tx, parentID, childID)
		if err != nil {
			return err
		}
		if !sameAccountRef(before.LinkedAccountID, child.LinkedAccountID) {
			return fmt.Errorf("%w: child %s was relinked", ErrConcurrentUpdate, childID)
		}
		if err := tx.Model(&models.Account{}).
			Where("linked_user_id = ?", childID).
			Update("linked_user_id", nil).Error; err != nil {
			return fmt.Errorf("unlink account: %w", err)
		}
		if err := tx.Delete(child).Error; err != nil {
			return fmt.Errorf("delete child: %w", err)
		}
		return nil
	})
}

func sameAccountRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
