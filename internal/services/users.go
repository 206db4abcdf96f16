package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cinelog/internal/access"
	"cinelog/internal/logger"
	"cinelog/internal/models"
	"cinelog/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type RegisterInput struct {
	Name            string `validate:"required,max=255"`
	Email           string `validate:"required,email,max=255"`
	Password        string `validate:"required,min=8,max=72"`
	PasswordConfirm string `validate:"eqfield=Password"`
}

type UserService struct {
	db    *gorm.DB
	cache *utils.GlobalCache
}

func NewUserService(conn *gorm.DB, cache *utils.GlobalCache) *UserService {
	return &UserService{db: conn, cache: cache}
}

// Register creates a regular user. Emails are stored lower-cased.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = utils.NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Email:    in.Email,
		Name:     in.Name,
		Password: hash,
		Role:     models.RoleUser,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, err
	}
	logger.For(ctx).WithField("user_id", user.ID).Info("User registered")
	return &user, nil
}

// Authenticate checks credentials. Unknown email, wrong password and inactive
// accounts all produce the same error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	invalid := fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", utils.NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive || !utils.CheckPasswordHash(password, user.Password) {
		return nil, invalid
	}
	return &user, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns all users for moderators and admins.
func (s *UserService) List(ctx context.Context, actor *models.User) ([]models.User, error) {
	if !access.Has(actor, access.ListUsers) {
		return nil, fmt.Errorf("%w: you don't have permission to view this page", ErrPermissionDenied)
	}
	var users []models.User
	err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error
	return users, err
}

// AssignRole changes target's role. Only known roles are accepted and nobody
// can make themselves admin.
func (s *UserService) AssignRole(ctx context.Context, actor *models.User, targetID uint, roleName string) (*models.User, error) {
	if !access.Has(actor, access.AssignRoles) {
		return nil, fmt.Errorf("%w: you don't have permission to assign roles", ErrPermissionDenied)
	}
	role, ok := models.ParseRole(roleName)
	if !ok {
		return nil, fmt.Errorf("%w: invalid role %q", ErrInvalidArgument, roleName)
	}
	target, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !access.CanAssignRole(actor, target, role) {
		return nil, fmt.Errorf("%w: you cannot assign the admin role to yourself", ErrPermissionDenied)
	}

	if err := s.db.WithContext(ctx).Model(target).Update("role", role).Error; err != nil {
		return nil, err
	}
	target.Role = role
	logger.For(ctx).WithFields(logrus.Fields{"target_id": target.ID, "role": role}).Info("Role assigned")
	return target, nil
}

// Delete removes a user together with their comments (and replies to them) and
// their votes. Counters of comments the user had voted on are recounted in the
// same transaction.
func (s *UserService) Delete(ctx context.Context, actor *models.User, targetID uint) error {
	if !access.Has(actor, access.DeleteUsers) {
		return fmt.Errorf("%w: you don't have permission to delete users", ErrPermissionDenied)
	}
	target, err := s.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if !access.CanDeleteUser(actor, target) {
		return fmt.Errorf("%w: you cannot delete your own account", ErrPermissionDenied)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var voted []uint
		if err := tx.Model(&models.Vote{}).Where("user_id = ?", target.ID).Pluck("comment_id", &voted).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", target.ID).Delete(&models.Vote{}).Error; err != nil {
			return err
		}

		var own []uint
		if err := tx.Model(&models.Comment{}).Where("author_id = ?", target.ID).Pluck("id", &own).Error; err != nil {
			return err
		}
		if len(own) > 0 {
			var replies []uint
			if err := tx.Model(&models.Comment{}).Where("parent_id IN ?", own).Pluck("id", &replies).Error; err != nil {
				return err
			}
			doomed := append(own, replies...)
			if err := tx.Where("comment_id IN ?", doomed).Delete(&models.Vote{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ? AND parent_id IS NOT NULL", doomed).Delete(&models.Comment{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", doomed).Delete(&models.Comment{}).Error; err != nil {
				return err
			}
		}

		for _, id := range voted {
			if _, err := Recompute(ctx, tx, id); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		return tx.Delete(&models.User{}, target.ID).Error
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.DeletePrefix("comments:")
		s.cache.DeletePrefix(movieCachePfx)
	}
	logger.For(ctx).WithField("target_id", target.ID).Info("User deleted")
	return nil
}
