package dto

import (
	"errors"
	"strings"

	"vfast/internal/domains/user/model"
	"vfast/shared"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	gModel "vfast/shared/model"
	"vfast/shared/timezone"

	"github.com/google/uuid"
)

var (
	ErrDepartmentRequired = errors.New("department is required for the department role")
	ErrDepartmentNotAllow = errors.New("department is only allowed for the department role")
)

type CreateUserRequest struct {
	Email      string  `json:"email"                validate:"required,email"`
	Password   string  `json:"password"             validate:"required,min=8"`
	Role       string  `json:"role"                 validate:"required,oneof=superadmin admin department vfast booking"`
	Department *string `json:"department,omitempty" validate:"omitempty,max=100"`
	FullName   *string `json:"full_name,omitempty"  validate:"omitempty,min=2,max=100"`
}

// CheckDepartment enforces that exactly the department role carries a department.
func CheckDepartment(role string, department *string) error {
	hasDept := department != nil && strings.TrimSpace(*department) != constant.Empty

	switch {
	case role == constant.RoleDepartment && !hasDept:
		return ErrDepartmentRequired
	case role != constant.RoleDepartment && hasDept:
		return ErrDepartmentNotAllow
	}

	return nil
}

func (r *CreateUserRequest) ToModel(username string, hashedPassword string) model.User {
	now := timezone.Now()

	return model.User{
		ID:         uuid.NewString(),
		Email:      strings.ToLower(r.Email),
		Password:   hashedPassword,
		Role:       r.Role,
		Department: r.Department,
		FullName:   r.FullName,
		Active:     true,
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  username,
			ModifiedBy: username,
		},
	}
}

type UserResponse struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	Department *string `json:"department,omitempty"`
	FullName   *string `json:"full_name,omitempty"`
	LastLogin  *string `json:"last_login,omitempty"`
	Active     bool    `json:"active"`
	gDto.Metadata
}

func (r *UserResponse) FromModel(model model.User) {
	r.ID = model.ID
	r.Email = model.Email
	r.Role = model.Role
	r.Department = model.Department
	r.FullName = model.FullName
	r.Active = model.Active

	if model.LastLogin != nil {
		lastLogin := timezone.Format(*model.LastLogin, constant.DateFormat)
		r.LastLogin = &lastLogin
	}

	r.Metadata.FromModel(model.Metadata)
}

// UpdateUserRequest is the superadmin edit. The db tags name the columns written.
type UpdateUserRequest struct {
	Role       *string `db:"role"       json:"role,omitempty"       validate:"omitempty,oneof=superadmin admin department vfast booking"`
	Department *string `db:"department" json:"department,omitempty" validate:"omitempty,max=100"`
	FullName   *string `db:"full_name"  json:"full_name,omitempty"  validate:"omitempty,min=2,max=100"`
	Active     *bool   `db:"active"     json:"active,omitempty"`
}

type GetUsersResponse struct {
	Users     []UserResponse `json:"users"`
	TotalPage int            `json:"total_page"`
	TotalData int            `json:"total_data"`
}

func (r *GetUsersResponse) FromModels(models []model.User, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Users = make([]UserResponse, len(models))
	for i, mod := range models {
		r.Users[i].FromModel(mod)
	}
}

func ByEmail(email string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{
				Field:    model.FieldEmail,
				Operator: gDto.FilterOperatorEq,
				Value:    strings.ToLower(email),
				Table:    model.TableName,
			},
		},
	}
}
