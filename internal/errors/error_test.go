package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "searchsync/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestHasCode_FindsNestedCodes(t *testing.T) {
	inner := apperrors.New(apperrors.ErrTransport, "engine lookup failed", stderrors.New("connection reset"))
	outer := apperrors.New(apperrors.ErrProvisioning, "create document type faq", inner)
	wrapped := fmt.Errorf("job faq/FAQ@20: %w", outer)

	assert.Equal(t, apperrors.ErrProvisioning, apperrors.CodeOf(wrapped))
	assert.True(t, apperrors.HasCode(wrapped, apperrors.ErrProvisioning))
	assert.True(t, apperrors.HasCode(wrapped, apperrors.ErrTransport))
	assert.False(t, apperrors.HasCode(wrapped, apperrors.ErrSchema))
	assert.Contains(t, wrapped.Error(), "connection reset")
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, apperrors.IsPermanent(apperrors.New(apperrors.ErrSchema, "bad date", nil)))
	assert.True(t, apperrors.IsPermanent(apperrors.New(apperrors.ErrConfiguration, "no engine", nil)))
	assert.False(t, apperrors.IsPermanent(apperrors.New(apperrors.ErrTransport, "timeout", nil)))
	assert.False(t, apperrors.IsPermanent(stderrors.New("plain")))
}

func TestRespondError_MapsCodeToStatus(t *testing.T) {
	cases := map[apperrors.ErrorCode]int{
		apperrors.ErrInvalidInput:  http.StatusBadRequest,
		apperrors.ErrNotFound:      http.StatusNotFound,
		apperrors.ErrConfiguration: http.StatusConflict,
		apperrors.ErrTransport:     http.StatusBadGateway,
		apperrors.ErrInternal:      http.StatusInternalServerError,
	}

	for code, status := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/indices/faq", nil)

		apperrors.RespondError(rec, req, apperrors.New(code, "msg", nil))

		assert.Equal(t, status, rec.Code, "code %s", code)
		assert.Contains(t, rec.Body.String(), string(code))
	}
}
