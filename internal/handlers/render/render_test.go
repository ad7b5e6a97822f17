package render

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Every response of the package is JSON with explicit charset
func requireJSON(t *testing.T, w *httptest.ResponseRecorder, code int, body string) {
	t.Helper()

	require.Equal(t, code, w.Code, "status code, body %s", w.Body.String())
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	require.JSONEq(t, body, w.Body.String())
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, map[string]any{"external_id": "1001", "balance": decimal.RequireFromString("12.50")})

	requireJSON(t, w, http.StatusOK, `{"external_id": "1001", "balance": "12.5"}`)

	w = httptest.NewRecorder()
	JSONWithStatus(w, map[string]string{"status": "pending"}, http.StatusCreated)

	requireJSON(t, w, http.StatusCreated, `{"status": "pending"}`)
}

func TestJSON_unencodable(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, map[string]any{"ch": make(chan int)})

	require.Equal(t, http.StatusInternalServerError, w.Code, "status must not be committed before encoding")
}

func TestServiceError(t *testing.T) {
	w := httptest.NewRecorder()

	ServiceError(w, "Withdrawal request not found", http.StatusNotFound)

	requireJSON(t, w, http.StatusNotFound, `{"error": "service_error", "message": "Withdrawal request not found"}`)
}

func TestDecodeError(t *testing.T) {
	decode := func(body string) error {
		var v struct {
			ExternalID string          `json:"external_id"`
			Orders     int             `json:"orders"`
			Amount     decimal.Decimal `json:"amount"`
		}
		return json.NewDecoder(strings.NewReader(body)).Decode(&v)
	}

	tests := map[string]struct {
		err     error
		code    int
		message string
	}{
		"syntax": {
			err:     decode(`{"external_id": `),
			code:    http.StatusBadRequest,
			message: "Failed to parse JSON: unexpected EOF",
		},
		"field type": {
			err:     decode(`{"orders": "many"}`),
			code:    http.StatusBadRequest,
			message: "Invalid data type for field 'orders'",
		},
		"empty body": {
			err:     decode(``),
			code:    http.StatusBadRequest,
			message: "Request body is empty",
		},
		"too large": {
			err:     &http.MaxBytesError{Limit: MaxBodyBytes},
			code:    http.StatusRequestEntityTooLarge,
			message: "Request body is larger than 65536 bytes",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			require.Error(t, tc.err, "fixture must fail to decode")
			w := httptest.NewRecorder()

			DecodeError(w, tc.err)

			var got ErrorResponse
			require.Equal(t, tc.code, w.Code)
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			require.Equal(t, DecodingErrorType, got.Error)
			require.Equal(t, tc.message, got.Message)
			require.Empty(t, got.Fields)
		})
	}
}

func TestValidationErrors(t *testing.T) {
	type payout struct {
		ExternalID string `json:"external_id" validate:"required"`
		Username   string `json:"username" validate:"min=3"`
		Note       string `json:"note" validate:"max=5"`
		Method     string `json:"method" validate:"oneof=upi bank"`
		Email      string `json:"email" validate:"email"`
	}

	err := validate.Struct(payout{Username: "ab", Note: "too long note", Method: "cash", Email: "nope"})
	var errs validator.ValidationErrors
	require.ErrorAs(t, err, &errs)

	w := httptest.NewRecorder()
	ValidationErrors(w, errs)

	requireJSON(t, w, http.StatusBadRequest, `{
		"error": "validation_failed",
		"message": "Request validation failed",
		"fields": {
			"external_id": "This field is required",
			"username": "Value is too short (minimum 3)",
			"note": "Value is too long (maximum 5)",
			"method": "Must be one of: upi, bank",
			"email": "Invalid value"
		}
	}`)
}

func TestValidateMoney(t *testing.T) {
	type req struct {
		Amount decimal.Decimal `json:"amount" validate:"money"`
	}

	valid := []string{"1", "0.01", "499.99", "100000"}
	invalid := []string{"0", "-1", "0.001", "12.345"}

	for _, v := range valid {
		require.NoError(t, validate.Struct(req{Amount: decimal.RequireFromString(v)}), "amount %s", v)
	}
	for _, v := range invalid {
		require.Error(t, validate.Struct(req{Amount: decimal.RequireFromString(v)}), "amount %s", v)
	}
}

func TestBindAndValidate(t *testing.T) {
	type order struct {
		ExternalID string          `json:"external_id" validate:"required"`
		Amount     decimal.Decimal `json:"amount" validate:"money"`
	}

	bind := func(body io.Reader) (*httptest.ResponseRecorder, order, error) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/orders", body)
		got, err := BindAndValidate[order](w, r)
		return w, got, err
	}

	t.Run("valid", func(t *testing.T) {
		for _, body := range []string{
			`{"external_id": "1001", "amount": "299.50"}`,
			`{"external_id": "1001", "amount": 299.5}`,
		} {
			w, got, err := bind(strings.NewReader(body))

			require.NoError(t, err, "body %s", body)
			require.Equal(t, "1001", got.ExternalID)
			require.True(t, decimal.RequireFromString("299.5").Equal(got.Amount))
			require.Zero(t, w.Body.Len(), "nothing written on success")
		}
	})

	t.Run("rejected", func(t *testing.T) {
		tests := map[string]struct {
			body string
			code int
			want string
		}{
			"not json": {
				body: `invalid-json`,
				code: http.StatusBadRequest,
				want: `{"error": "decoding_failed", "message": "Failed to parse JSON: invalid character 'i' looking for beginning of value"}`,
			},
			"empty body": {
				body: ``,
				code: http.StatusBadRequest,
				want: `{"error": "decoding_failed", "message": "Request body is empty"}`,
			},
			"empty object": {
				body: `{}`,
				code: http.StatusBadRequest,
				want: `{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {
						"external_id": "This field is required",
						"amount": "Must be positive amount with at most 2 decimal places"
					}
				}`,
			},
			"paise fraction": {
				body: `{"external_id": "1001", "amount": "10.001"}`,
				code: http.StatusBadRequest,
				want: `{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {"amount": "Must be positive amount with at most 2 decimal places"}
				}`,
			},
			"body over limit": {
				body: `{"external_id": "` + strings.Repeat("1", MaxBodyBytes) + `"}`,
				code: http.StatusRequestEntityTooLarge,
				want: `{"error": "decoding_failed", "message": "Request body is larger than 65536 bytes"}`,
			},
		}

		for name, tc := range tests {
			t.Run(name, func(t *testing.T) {
				w, _, err := bind(strings.NewReader(tc.body))

				require.Error(t, err)
				requireJSON(t, w, tc.code, tc.want)
			})
		}
	})

	t.Run("not a struct", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`"just string"`))

		_, err := BindAndValidate[string](w, r)

		require.Error(t, err)
		requireJSON(t, w, http.StatusInternalServerError, `{"error": "service_error", "message": "Internal server error"}`)
	})
}
