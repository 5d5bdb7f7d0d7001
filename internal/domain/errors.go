package domain

import "errors"

var (
	// ErrNotFound covers both true absence and resources outside the caller's tenant.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized signals a missing or invalid session/API token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden signals an authenticated caller without the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrNoMembership signals an authenticated user who belongs to no organization.
	ErrNoMembership = errors.New("no organization membership")
	// ErrOwnerImmutable is returned when the membership API targets the owner.
	ErrOwnerImmutable = errors.New("owner membership cannot be modified")
	// ErrInvalidInput signals malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)
