package turntoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueThenVerify_Succeeds(t *testing.T) {
	svc := New("test-secret", time.Minute)
	token, err := svc.Issue("conv-1", "turn-1", "call-1")
	require.NoError(t, err)
	require.NoError(t, svc.Verify(token, "conv-1", "turn-1", "call-1"))
}

func TestVerify_MismatchedToolCallIsRejected(t *testing.T) {
	svc := New("test-secret", time.Minute)
	token, err := svc.Issue("conv-1", "turn-1", "call-1")
	require.NoError(t, err)
	err = svc.Verify(token, "conv-1", "turn-1", "call-2")
	require.ErrorIs(t, err, ErrMismatch)
}

func TestVerify_MismatchedConversationIsRejected(t *testing.T) {
	svc := New("test-secret", time.Minute)
	token, err := svc.Issue("conv-1", "turn-1", "call-1")
	require.NoError(t, err)
	err = svc.Verify(token, "conv-2", "turn-1", "call-1")
	require.ErrorIs(t, err, ErrMismatch)
}

func TestVerify_ExpiredTokenIsRejected(t *testing.T) {
	svc := New("test-secret", time.Millisecond)
	token, err := svc.Issue("conv-1", "turn-1", "call-1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	err = svc.Verify(token, "conv-1", "turn-1", "call-1")
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerify_WrongSigningKeyIsRejected(t *testing.T) {
	issuer := New("key-a", time.Minute)
	verifier := New("key-b", time.Minute)
	token, err := issuer.Issue("conv-1", "turn-1", "call-1")
	require.NoError(t, err)
	err = verifier.Verify(token, "conv-1", "turn-1", "call-1")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestVerify_EmptyTokenIsRejected(t *testing.T) {
	svc := New("test-secret", time.Minute)
	require.ErrorIs(t, svc.Verify("", "conv-1", "turn-1", "call-1"), ErrInvalid)
}

func TestIssue_EmptySecretIsRejected(t *testing.T) {
	svc := New("", time.Minute)
	_, err := svc.Issue("conv-1", "turn-1", "call-1")
	require.ErrorIs(t, err, ErrInvalid)
}
