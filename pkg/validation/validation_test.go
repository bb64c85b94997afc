package validation

import (
	"testing"

	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/stretchr/testify/require"
)

type contactPayload struct {
	Contact  string `json:"contact" validate:"required,len=10,numeric"`
	Quantity int    `json:"quantity" validate:"gt=0"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

func TestStructReportsFieldDetails(t *testing.T) {
	err := Struct(contactPayload{Contact: "12345abcde", Quantity: 0, Email: "nope"})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must contain digits only", details["contact"])
	require.Equal(t, "must be greater than 0", details["quantity"])
	require.Equal(t, "must be a valid email", details["email"])
}

func TestStructAcceptsValidPayload(t *testing.T) {
	require.NoError(t, Struct(contactPayload{Contact: "9876543210", Quantity: 2}))
}

func TestVarUsesFieldName(t *testing.T) {
	err := Var("contact", "123", "len=10,numeric")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details := typed.Details().(map[string]string)
	require.Equal(t, "must be exactly 10 characters", details["contact"])

	require.NoError(t, Var("contact", "0123456789", "len=10,numeric"))
}
