package serverutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	SessionID string `validate:"required"`
	TopK      int    `validate:"omitempty,min=1,max=50"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(&sampleRequest{SessionID: "s1", TopK: 5}))
	assert.NoError(t, ValidateRequest(&sampleRequest{SessionID: "s1"}))

	err := ValidateRequest(&sampleRequest{})
	require.Error(t, err)
	apiErr, ok := err.(*ApiError)
	require.True(t, ok)
	assert.Equal(t, 400, apiErr.Status)
	assert.Contains(t, apiErr.Message, "SessionID")

	err = ValidateRequest(&sampleRequest{SessionID: "s1", TopK: 500})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max")
}
