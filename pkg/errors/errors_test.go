package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfUsesOutermostError(t *testing.T) {
	inner := New(CodeUnavailable, "s3 list failed")
	outer := Wrap(inner, CodeStore, "failed to list deployment files")

	assert.Equal(t, CodeStore, CodeOf(outer))
	assert.True(t, IsCode(outer, CodeStore))
	assert.False(t, IsCode(outer, CodeUnavailable))
	assert.True(t, HasCode(outer, CodeUnavailable))
	assert.Equal(t, "failed to list deployment files", MessageOf(outer))
}

func TestCodeOfPlainError(t *testing.T) {
	err := fmt.Errorf("boom")
	assert.Equal(t, CodeUnknown, CodeOf(err))
	assert.False(t, HasCode(err, CodeStore))
	assert.Equal(t, "boom", MessageOf(err))
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(fmt.Errorf("exit status 1"), CodeExec, "terraform apply failed")
	assert.Equal(t, "exec_error: terraform apply failed: exit status 1", err.Error())
	assert.Equal(t, "not_found: gone", Newf(CodeNotFound, "%s", "gone").Error())
}
