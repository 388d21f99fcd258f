package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/shourk/messaging/backend/internal/model/chat"
)

func TestIssueAndVerify(t *testing.T) {
	req := require.New(t)
	issuer := NewIssuer("test-secret", time.Hour)

	token, err := issuer.Issue("E1", chat.RoleExpert)
	req.NoError(err)

	caller, err := issuer.Verify(token)
	req.NoError(err)
	req.Equal(chat.Caller{ID: "E1", Role: chat.RoleExpert}, caller)
}

func TestVerify_Expired(t *testing.T) {
	req := require.New(t)
	issuer := NewIssuer("test-secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := issuer.Issue("U1", chat.RoleUser)
	req.NoError(err)

	issuer.now = time.Now
	_, err = issuer.Verify(token)
	req.ErrorIs(err, ErrExpiredToken)
}

func TestVerify_Shape(t *testing.T) {
	req := require.New(t)
	issuer := NewIssuer("test-secret", time.Hour)

	_, err := issuer.Verify("")
	req.ErrorIs(err, ErrMissingToken)

	_, err = issuer.Verify("not a token")
	req.ErrorIs(err, ErrMalformedToken)

	_, err = issuer.Verify("a.b")
	req.ErrorIs(err, ErrMalformedToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	req := require.New(t)
	token, err := NewIssuer("one", time.Hour).Issue("U1", chat.RoleUser)
	req.NoError(err)

	_, err = NewIssuer("two", time.Hour).Verify(token)
	req.ErrorIs(err, ErrInvalidToken)
}

func TestVerify_UnknownRole(t *testing.T) {
	req := require.New(t)
	claims := &Claims{
		ID:   "A1",
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	req.NoError(err)

	_, err = NewIssuer("s", time.Hour).Verify(token)
	req.ErrorIs(err, ErrInvalidToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	req := require.New(t)
	claims := &Claims{ID: "U1", Role: chat.RoleUser}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)
	req.True(strings.HasSuffix(token, "."))

	_, err = NewIssuer("s", time.Hour).Verify(token)
	req.ErrorIs(err, ErrInvalidToken)
}

func TestIssue_RejectsUnknownRole(t *testing.T) {
	_, err := NewIssuer("s", time.Hour).Issue("X", "admin")
	require.ErrorIs(t, err, ErrInvalidToken)
}
