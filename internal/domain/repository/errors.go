package repository

import "errors"

var (
	// ErrNotFound indica que el registro no existe (o ya expiró).
	ErrNotFound = errors.New("not found")

	// ErrConflict indica una escritura que perdió una carrera (ej: rotación CAS).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica datos de entrada inválidos para el store.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials indica usuario/password incorrectos.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
