// Package errors provides coded domain errors shared by questworld services.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Lookup errors
	CodeNotFound     Code = "NOT_FOUND"
	CodeItemNotFound Code = "ITEM_NOT_FOUND"

	// Request shape errors
	CodeInvalidAction    Code = "INVALID_ACTION"
	CodeValidationFailed Code = "VALIDATION_FAILED"

	// Quest lifecycle errors
	CodeQuestInvalidStatusTransition Code = "QUEST_INVALID_STATUS_TRANSITION"
	CodeQuestStepsIncomplete         Code = "QUEST_STEPS_INCOMPLETE"
	CodeQuestAlreadyActive           Code = "QUEST_ALREADY_ACTIVE"

	// Inventory errors
	CodeInventoryFull Code = "INVENTORY_FULL"

	// Template errors
	CodeTemplateNotPublished            Code = "TEMPLATE_NOT_PUBLISHED"
	CodeTemplateInvalidStatusTransition Code = "TEMPLATE_INVALID_STATUS_TRANSITION"

	// Backing store errors
	CodeTransport Code = "TRANSPORT"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidAction,
		CodeValidationFailed:
		return http.StatusBadRequest

	case CodeQuestInvalidStatusTransition,
		CodeQuestStepsIncomplete,
		CodeQuestAlreadyActive,
		CodeInventoryFull,
		CodeTemplateNotPublished,
		CodeTemplateInvalidStatusTransition:
		return http.StatusConflict

	case CodeNotFound,
		CodeItemNotFound:
		return http.StatusNotFound

	case CodeTransport:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
