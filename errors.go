package taskctl

import "github.com/cklxx/taskctl/pkg/errs"

// The engine's public error taxonomy is defined in pkg/errs so internal/*
// components can return it without importing this package back.
// These aliases are what callers of the Engine API actually see and
// errors.As against.
type (
	WorkspaceError       = errs.WorkspaceError
	NotFoundError        = errs.NotFoundError
	ConflictError        = errs.ConflictError
	CycleError           = errs.CycleError
	HasDependentsError   = errs.HasDependentsError
	BusyError            = errs.BusyError
	CorruptError         = errs.CorruptError
	SchemaMismatchError  = errs.SchemaMismatchError
	Violation            = errs.Violation
	PolicyViolationError = errs.PolicyViolationError
	HookBlockedError     = errs.HookBlockedError
	HookTimeoutError     = errs.HookTimeoutError
	HookError            = errs.HookError
	TemplateError        = errs.TemplateError
	CriteriaUnmetError   = errs.CriteriaUnmetError
	InvalidInputError    = errs.InvalidInputError
)

// IsNotFound reports whether err (or any error it wraps) is a NotFoundError.
func IsNotFound(err error) bool { return errs.IsNotFound(err) }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool { return errs.IsConflict(err) }

// IsBusy reports whether err is a BusyError, i.e. retryable.
func IsBusy(err error) bool { return errs.IsBusy(err) }
