package errs

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, ENOTFOUND, ErrorCode(Errorf(ENOTFOUND, "Post Not Found")))
	assert.Equal(t, EFORBIDDEN, ErrorCode(errors.Wrap(Errorf(EFORBIDDEN, "no"), "update post")))
	assert.Equal(t, EINTERNAL, ErrorCode(errors.New("boom")))

	assert.True(t, IsCode(Errorf(EINVALID, "x"), EINVALID))
	assert.False(t, IsCode(errors.New("boom"), EINVALID))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "Post Not Found", ErrorMessage(Errorf(ENOTFOUND, "Post Not Found")))
	assert.Equal(t, GenericMessage, ErrorMessage(errors.New("pq: connection refused")))
}

func TestValidation(t *testing.T) {
	var v Validation
	assert.NoError(t, v.Err())

	v.Add("name", "The name field is required.")
	assert.True(t, v.Has("name"))
	assert.False(t, v.Has("email"))
	assert.Equal(t, "The name field is required.", ErrorMessage(v.Err()))

	v.Add("email", "The email field is required.")
	assert.Equal(t, "The email field is required. (and 1 more error)", ErrorMessage(v.Err()))

	v.Add("password", "The password field is required.")
	assert.Equal(t, "The email field is required. (and 2 more errors)", ErrorMessage(v.Err()))
	assert.Equal(t, EINVALID, ErrorCode(v.Err()))
}

func TestReturnError(t *testing.T) {
	Log = logrus.New()
	Log.SetOutput(io.Discard)
	defer func() { Log = logrus.StandardLogger() }()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
		fields  bool
	}{
		{"invalid", Invalid("post", "The post field is required."), http.StatusUnprocessableEntity, "The post field is required.", true},
		{"unauthorized", Errorf(EUNAUTHORIZED, "Unauthenticated."), http.StatusUnauthorized, "Unauthenticated.", false},
		{"forbidden", Errorf(EFORBIDDEN, "This action is unauthorized."), http.StatusForbidden, "This action is unauthorized.", false},
		{"not found", Errorf(ENOTFOUND, "User Not Found"), http.StatusNotFound, "User Not Found", false},
		{"internal", errors.New("dial tcp: refused"), http.StatusInternalServerError, GenericMessage, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReturnError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body["message"])
			_, hasFields := body["errors"]
			assert.Equal(t, tt.fields, hasFields)
		})
	}
}
