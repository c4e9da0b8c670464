package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type signRequest struct {
	Token   string `json:"token" validate:"required"`
	FieldID string `json:"field_id" validate:"required,uuid4"`
	Value   string `json:"value" validate:"omitempty,max=4096"`
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(signRequest{})
	require.Error(t, err)

	failures, ok := err.(ValidationErrors)
	require.True(t, ok)

	fields := make([]string, 0, len(failures))
	for _, f := range failures {
		fields = append(fields, f.Field)
	}
	require.Contains(t, fields, "token")
	require.Contains(t, fields, "field_id")
}

func TestValidateStructAcceptsValidPayload(t *testing.T) {
	err := ValidateStruct(signRequest{
		Token:   "abc",
		FieldID: "2b8e5e5e-55a1-4b6e-9c70-94cf149cb9e4",
		Value:   "John Doe",
	})
	require.NoError(t, err)
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{{Field: "value", Tag: "max", Param: "4096"}}
	require.Equal(t, "value failed on max=4096", errs.Error())
}
