package catalog

import "errors"

var (
	// ErrEmailExists is returned when registering an email that is already taken.
	ErrEmailExists = errors.New("email already exists")

	// ErrUsersExist is returned by CreateFirstUser once any account is stored.
	ErrUsersExist = errors.New("users already exist")

	// ErrUserNotFound is returned when the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrFolderNotFound is returned when the requested folder does not exist.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrFileNotFound is returned when the requested file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrVersionNotFound is returned when a file has no stored version.
	ErrVersionNotFound = errors.New("file version not found")

	// ErrShareNotFound is returned when no share matches a token.
	ErrShareNotFound = errors.New("share not found")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")
)
