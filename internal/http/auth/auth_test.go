package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_IssueVerify(t *testing.T) {
	a := New("s3cret")
	id := uuid.New()

	token, err := a.Issue(id, RoleAdmin, time.Hour)
	require.NoError(t, err)

	actor, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, actor.ID)
	assert.True(t, actor.Admin)
}

func TestAuthenticator_Verify_Rejects(t *testing.T) {
	a := New("s3cret")
	id := uuid.New()

	expired := New("s3cret")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.Issue(id, "", time.Hour)
	require.NoError(t, err)

	otherKey, err := New("other").Issue(id, "", 0)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).
		SignedString([]byte("s3cret"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: id.String()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "Expired", token: expiredToken},
		{name: "WrongKey", token: otherKey},
		{name: "SubjectNotUUID", token: badSubject},
		{name: "AlgNone", token: none},
		{name: "Garbage", token: "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestMiddleware(t *testing.T) {
	a := New("s3cret")
	id := uuid.New()

	member, err := a.Issue(id, "", time.Hour)
	require.NoError(t, err)

	admin, err := a.Issue(id, RoleAdmin, time.Hour)
	require.NoError(t, err)

	var seen Actor

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name    string
		header  string
		handler http.Handler
		want    int
	}{
		{name: "Missing", header: "", handler: a.Middleware(final), want: http.StatusUnauthorized},
		{name: "NotBearer", header: "Basic abc", handler: a.Middleware(final), want: http.StatusUnauthorized},
		{name: "Invalid", header: "Bearer nope", handler: a.Middleware(final), want: http.StatusUnauthorized},
		{name: "Member", header: "Bearer " + member, handler: a.Middleware(final), want: http.StatusNoContent},
		{name: "MemberOnAdminRoute", header: "Bearer " + member, handler: a.Middleware(RequireAdmin(final)), want: http.StatusForbidden},
		{name: "Admin", header: "Bearer " + admin, handler: a.Middleware(RequireAdmin(final)), want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = Actor{}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)

			if tt.want == http.StatusNoContent {
				assert.Equal(t, id, seen.ID)
			}
		})
	}
}
