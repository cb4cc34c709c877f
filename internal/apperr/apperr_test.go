package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_SurvivesWrapping(t *testing.T) {
	base := NotFound("order.get", "order %s", "o-1")
	wrapped := fmt.Errorf("handler: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindNotFound))
	assert.False(t, IsRetryable(wrapped))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestRetryableDefaults(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{Validation("op", "bad"), false},
		{Conflict("op", "raced"), true},
		{Upstream("op", errors.New("timeout")), true},
		{Exhausted("op", "sold out"), false},
		{Unauthorized("op", "no"), false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("gateway timeout")
	err := Upstream("payment.capture", cause)

	assert.Equal(t, "payment.capture: gateway timeout", err.Error())
	assert.ErrorIs(t, err, cause)

	err2 := &Error{Kind: KindUpstream, Op: "payment.void", Msg: "void failed", Err: cause}
	assert.Equal(t, "payment.void: void failed: gateway timeout", err2.Error())
}
