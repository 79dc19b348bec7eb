package rbac

import "errors"

// Custom errors
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("resource not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrModuleDisabled   = errors.New("module not enabled for tenant")
	ErrUnknownModule    = errors.New("unknown module")
	ErrUnknownRole      = errors.New("unknown role")
	ErrNotTenantMember  = errors.New("user has no roles in tenant")
)
