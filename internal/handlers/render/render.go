package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	ValidationErrorType = "validation_failed"
	DecodingErrorType   = "decoding_failed"
	ServiceErrorType    = "service_error"
)

// Requests of the API are small: account, order or payout details
const MaxBodyBytes = 64 << 10

var validate = validator.New()

func init() {
	configureValidator(validate)
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	write(w, data, http.StatusOK)
}

func JSONWithStatus(w http.ResponseWriter, data any, code int) {
	write(w, data, code)
}

// ServiceError renders domain or transport failure with human-readable message
func ServiceError(w http.ResponseWriter, message string, code int) {
	write(w, ErrorResponse{Error: ServiceErrorType, Message: message}, code)
}

// DecodeError renders request body that could not be read as JSON
func DecodeError(w http.ResponseWriter, err error) {
	var (
		typeErr *json.UnmarshalTypeError
		sizeErr *http.MaxBytesError
	)

	code := http.StatusBadRequest
	var message string

	switch {
	case errors.As(err, &typeErr):
		message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	case errors.As(err, &sizeErr):
		code = http.StatusRequestEntityTooLarge
		message = fmt.Sprintf("Request body is larger than %d bytes", sizeErr.Limit)
	case errors.Is(err, io.EOF):
		message = "Request body is empty"
	default:
		message = "Failed to parse JSON: " + err.Error()
	}

	write(w, ErrorResponse{Error: DecodingErrorType, Message: message}, code)
}

// ValidationErrors renders message per invalid field, keyed by its json name
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fieldMessage(fe)
	}

	write(w, ErrorResponse{
		Error:   ValidationErrorType,
		Message: "Request validation failed",
		Fields:  fields,
	}, http.StatusBadRequest)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "This field is required"
	case "min":
		return fmt.Sprintf("Value is too short (minimum %s)", fe.Param())
	case "max":
		return fmt.Sprintf("Value is too long (maximum %s)", fe.Param())
	case "oneof":
		return "Must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "money":
		return "Must be positive amount with at most 2 decimal places"
	default:
		return "Invalid value"
	}
}

// BindAndValidate decodes JSON request body into T and validates it with struct tags.
// On failure the error response is already written, the caller only returns.
func BindAndValidate[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&value); err != nil {
		DecodeError(w, err)
		return value, err
	}

	err := validate.Struct(value)
	var errs validator.ValidationErrors
	switch {
	case errors.As(err, &errs):
		ValidationErrors(w, errs)
		return value, err
	case err != nil:
		// T is not a struct: programming error, not client one
		ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return value, err
	}

	return value, nil
}

// write encodes data first, so encoding failure can still change the status code
func write(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
