package validation

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFieldName(t *testing.T) {
	assert.NoError(t, ValidateFieldName("total_revenue"))
	assert.NoError(t, ValidateFieldName("Revenue.Q4-2023"))

	assert.ErrorIs(t, ValidateFieldName(""), ErrValidationFailed)
	assert.ErrorIs(t, ValidateFieldName("bad field"), ErrValidationFailed)
	assert.ErrorIs(t, ValidateFieldName("semi;colon"), ErrValidationFailed)

	long := string(bytes.Repeat([]byte("a"), MaxFieldNameLength+1))
	assert.ErrorIs(t, ValidateFieldName(long), ErrValidationFailed)
}

func TestValidateUploadContentType(t *testing.T) {
	assert.NoError(t, ValidateUploadContentType("application/json"))
	assert.NoError(t, ValidateUploadContentType("text/csv; charset=utf-8"))
	assert.ErrorIs(t, ValidateUploadContentType("application/pdf"), ErrValidationFailed)
}

func TestValidateExpressionSize(t *testing.T) {
	assert.NoError(t, ValidateExpressionSize([]byte(`{"value":1}`)))
	assert.ErrorIs(t, ValidateExpressionSize(bytes.Repeat([]byte("x"), MaxExpressionBytes+1)), ErrValidationFailed)
}

func TestStripUnprintable(t *testing.T) {
	assert.Equal(t, "hello\tworld\n", StripUnprintable("hello\t\x00world\x1b\n"))
}
