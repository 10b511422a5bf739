package common

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfClassifies(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validationf("bad %s", "input")))
	assert.Equal(t, KindNotFound, KindOf(NotFoundf("missing")))
	assert.Equal(t, KindUnauthenticated, KindOf(Unauthenticated("no key")))
	assert.Equal(t, KindForbidden, KindOf(Forbidden("wrong key")))
	assert.Equal(t, KindConflict, KindOf(Conflictf("dup")))
	assert.Equal(t, KindRemote, KindOf(Remotef(io.EOF, "ssh died")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("while deploying: %w", NotFoundf("app %q not found", "api"))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestErrorPreservesCause(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := Remotef(cause, "upload interrupted")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "upload interrupted: unexpected EOF", err.Error())

	bare := Validationf("port out of range")
	assert.Equal(t, "port out of range", bare.Error())
}
