package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	if id, ok := UserID(r.Context()); ok {
		w.Header().Set("X-User", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func TestInternalOnly(t *testing.T) {
	h := InternalOnly("s3cret")(http.HandlerFunc(okHandler))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"bearer", "Authorization", "Bearer s3cret", http.StatusNoContent},
		{"settlement header", HeaderSettlementSecret, "s3cret", http.StatusNoContent},
		{"cron header", HeaderCronSecret, "s3cret", http.StatusNoContent},
		{"wrong secret", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/x", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestInternalOnlyUnconfigured(t *testing.T) {
	h := InternalOnly("")(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodPost, "/internal/x", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJWTRoundTrip(t *testing.T) {
	j := JWT{Secret: []byte("signing-key"), TokenTTL: time.Minute}
	token, err := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	require.NoError(t, err)

	claims, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	_, err = JWT{Secret: []byte("other-key")}.Verify(token)
	assert.Error(t, err)
}

func TestJWTRejectsExpiredAndSubjectless(t *testing.T) {
	j := JWT{Secret: []byte("signing-key")}
	expired, err := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	require.NoError(t, err)
	_, err = j.Verify(expired)
	assert.Error(t, err)

	anon, err := j.Sign(Claims{})
	require.NoError(t, err)
	_, err = j.Verify(anon)
	assert.Error(t, err)
}

func TestRequireUser(t *testing.T) {
	j := JWT{Secret: []byte("signing-key")}
	h := RequireUser(j)(http.HandlerFunc(okHandler))
	token, err := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-7"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-7", rec.Header().Get("X-User"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
