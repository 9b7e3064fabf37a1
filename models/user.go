package models

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/btpflow/worksite_backend/config"
	"github.com/btpflow/worksite_backend/utils"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100;not null;unique" json:"email" binding:"required"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      UserRole  `gorm:"size:10;not null;default:Chef" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginInfo struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

/*
caches:
	User:$email
	User:$id
	UserList
*/

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + user.Email)
}

func (result *User) PrepareGive() {
	result.Password = ""
}

func (input *NewUser) validate(ctx context.Context) error {
	if !utils.IsValidEmail(input.Email) {
		return errors.New("invalid email")
	}
	if len(input.Password) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	if err := utils.ValidateUnique[User](ctx, "email", input.Email, 0); err != nil {
		return errors.New("a user with this email already exists")
	}
	return nil
}

func createUser(ctx context.Context, input *NewUser, role UserRole) (*User, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Name:     html.EscapeString(strings.TrimSpace(input.Name)),
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Password: string(hashed),
		Role:     role,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisList[User](); err != nil {
		return nil, err
	}

	user.PrepareGive()
	return &user, nil
}

// RegisterUser handles public self-registration; new accounts always get the
// Chef role. Admin accounts exist only through seeding or SetUserRole.
func RegisterUser(ctx context.Context, input *NewUser) (*User, error) {
	return createUser(ctx, input, UserRoleChef)
}

// RegisterChef lets an admin provision a chef account.
func RegisterChef(ctx context.Context, input *NewUser) (*User, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() {
		return nil, utils.ErrorForbidden
	}
	return createUser(ctx, input, UserRoleChef)
}

func Login(ctx context.Context, email string, password string) (*LoginInfo, error) {

	db := config.GetDB()
	email = strings.ToLower(strings.TrimSpace(email))

	user := User{}
	exists, err := config.GetRedisObject("User:"+email, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Take(&user).Error; err != nil {
			return nil, errors.New("invalid email or password")
		}
		if err := config.SetRedisObject("User:"+user.Email, &user, utils.GetCacheLifespan()); err != nil {
			return nil, err
		}
	}

	err = utils.ComparePassword(user.Password, password)
	if err != nil && err == bcrypt.ErrMismatchedHashAndPassword {
		return nil, errors.New("invalid email or password")
	}
	if err != nil {
		return nil, err
	}

	if user.IsActive != nil && !*user.IsActive {
		return nil, errors.New("user is disabled")
	}

	token, err := utils.JwtGenerate(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}

	return &LoginInfo{
		Token: token,
		Name:  user.Name,
		Role:  string(user.Role),
	}, nil
}

func GetMe(ctx context.Context) (*User, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.ErrorForbidden
	}

	user, err := utils.RetrieveRedis[User](userId)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = utils.FetchModel[User](ctx, userId)
		if err != nil {
			return nil, err
		}
		// caching
		if err := utils.StoreRedis[User](user, userId); err != nil {
			return nil, err
		}
	}

	user.PrepareGive()
	return user, nil
}

// GetChefs lists users holding the Chef role, ordered by name. The list is
// read-through cached; any user write drops the cached copy.
func GetChefs(ctx context.Context) ([]*User, error) {
	cached, err := utils.RetrieveRedisList[User]()
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var results []*User
	err = db.WithContext(ctx).
		Where("role = ?", UserRoleChef).
		Select("id", "name", "email").
		Order("name").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	// caching
	if err := utils.StoreRedisList[User](results); err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateUserName lets a user rename their own account, nothing else.
func UpdateUserName(ctx context.Context, id int, name string) (*User, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !CanUpdateUser(principal, id) {
		return nil, utils.ErrorForbidden
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name is required")
	}

	user, err := utils.FetchModel[User](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(user).
		Update("Name", html.EscapeString(strings.TrimSpace(name))).Error
	if err != nil {
		return nil, err
	}

	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[User](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[User](); err != nil {
		return nil, err
	}

	user.PrepareGive()
	return user, nil
}

// SetUserRole is admin-only; the role field is otherwise immutable.
func SetUserRole(ctx context.Context, id int, role UserRole) (*User, error) {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !CanSetUserRole(principal) {
		return nil, utils.ErrorForbidden
	}
	if !role.IsValid() {
		return nil, errors.New("invalid user role")
	}

	user, err := utils.FetchModel[User](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(user).Update("Role", role).Error; err != nil {
		return nil, err
	}

	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[User](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[User](); err != nil {
		return nil, err
	}

	user.PrepareGive()
	return user, nil
}
