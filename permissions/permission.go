package permissions

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"vfast/shared/failure"

	"github.com/rs/zerolog/log"
)

//go:embed permissions.json
var permissionsData []byte

// ErrNotAuthorized marks a role that may not perform the requested action.
var ErrNotAuthorized = errors.New("not authorized")

type Permission struct {
	Permissions []string `json:"permissions"`
	Path        string   `json:"path"`
	Method      string   `json:"method"`
	Skip        bool     `json:"skip"`
}

type PermissionData struct {
	Endpoints []Permission `json:"endpoints"`
	Skip      bool         `json:"skip"`
}

func (r *PermissionData) FindPermissions(path, method string) Permission {
	idx := slices.IndexFunc(r.Endpoints, func(rp Permission) bool {
		return rp.Path == path && rp.Method == method
	})

	if idx == -1 {
		return Permission{}
	}

	return r.Endpoints[idx]
}

func Get() *PermissionData {
	var permissions PermissionData

	err := json.Unmarshal(permissionsData, &permissions)
	if err != nil {
		log.Err(err).Msg("Failed to decode embedded permissions")

		return nil
	}

	log.Info().Int("endpoints", len(permissions.Endpoints)).Msg("Successfully loaded embedded permissions")

	return &permissions
}

// HasRole reports whether role is one of allowed.
func HasRole(role string, allowed ...string) bool {
	return role != "" && slices.Contains(allowed, role)
}

// Require returns a 403 failure of kind ErrNotAuthorized unless role is allowed.
func Require(role string, allowed ...string) error {
	if HasRole(role, allowed...) {
		return nil
	}

	return failure.ForbiddenOf(ErrNotAuthorized, fmt.Sprintf("role %q is not allowed to perform this action", role))
}
