package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrNothingToRecycle = &WasteBinError{Message: "No waste to recycle. The bin is already empty."}
)

// ValidationError agrega todos os problemas encontrados em uma requisição
type ValidationError struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Errors, "; ")
}

// NewValidationError cria um ValidationError com uma única mensagem
func NewValidationError(message string, problems ...string) *ValidationError {
	return &ValidationError{Message: message, Errors: problems}
}

// InvalidTransitionError indica que o status atual não permite a operação
type InvalidTransitionError struct {
	Current   OrderStatus
	Requested OrderStatus
	Message   string
}

func (e *InvalidTransitionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Cannot change order status from %s to %s", e.Current, e.Requested)
}

// InsufficientStockError nomeia o item sem estoque suficiente
type InsufficientStockError struct {
	ItemName  string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d", e.ItemName, e.Available, e.Requested)
}

// WasteBinError representa regras de negócio violadas no contêiner de resíduos
type WasteBinError struct {
	Message string
}

func (e *WasteBinError) Error() string {
	return e.Message
}

// notFound embrulha ErrNotFound com a entidade ausente
func notFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}
