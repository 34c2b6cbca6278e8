package model

import (
	"time"

	"vfast/shared/model"
)

const (
	TableName  = "users"
	EntityName = "user"

	FieldID         = "id"
	FieldEmail      = "email"
	FieldPassword   = "password"
	FieldRole       = "role"
	FieldDepartment = "department"
	FieldFullName   = "full_name"
	FieldLastLogin  = "last_login"
	FieldActive     = "active"
)

// User is an account. Department is set only for the department role and
// scopes the approval queue that user sees.
type User struct {
	ID         string     `db:"id"`
	Email      string     `db:"email"`
	Password   string     `db:"password"`
	Role       string     `db:"role"`
	Department *string    `db:"department"`
	FullName   *string    `db:"full_name"`
	LastLogin  *time.Time `db:"last_login"`
	Active     bool       `db:"active"`
	model.Metadata
}

func (u User) DepartmentName() string {
	if u.Department == nil {
		return ""
	}

	return *u.Department
}
