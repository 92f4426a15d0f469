package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

func TestInvalidScoreIsValidation(t *testing.T) {
	err := fmt.Errorf("create match: %w", svcErr.ErrInvalidScore)
	assert.True(t, errors.Is(err, svcErr.ErrInvalidScore))
	assert.True(t, errors.Is(err, svcErr.ErrValidation))
}

func TestTransientKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := svcErr.Transient("score", cause)
	assert.True(t, errors.Is(err, svcErr.ErrTransient))
	assert.True(t, errors.Is(err, cause))
}

func TestMapCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"validation", svcErr.Validation("bad"), codes.InvalidArgument},
		{"invalid score", svcErr.ErrInvalidScore, codes.InvalidArgument},
		{"not found", svcErr.NotFound("match 1"), codes.NotFound},
		{"gorm not found", gorm.ErrRecordNotFound, codes.NotFound},
		{"conflict", svcErr.Conflict("dup"), codes.AlreadyExists},
		{"transition", svcErr.InvalidTransition("matched", "rejected"), codes.FailedPrecondition},
		{"forbidden", svcErr.Forbidden("not a participant"), codes.PermissionDenied},
		{"transient", svcErr.Transient("redis", errors.New("down")), codes.Unavailable},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"canceled", context.Canceled, codes.Canceled},
		{"unknown", errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, status.Code(svcErr.Map(tc.err)))
		})
	}

	assert.Nil(t, svcErr.Map(nil))

	already := status.Error(codes.PermissionDenied, "nope")
	assert.Equal(t, already, svcErr.Map(already))
}
