package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name     string    `json:"name" validate:"required"`
	Kind     string    `json:"kind" validate:"oneof=a b"`
	Currency string    `json:"currency" validate:"omitempty,iso4217"`
	From     time.Time `json:"from" validate:"required"`
}

func TestStructCollectsFieldErrors(t *testing.T) {
	err := Struct(sampleRequest{Kind: "c", Currency: "XXXX", From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	var verr *Error
	require.True(t, errors.As(err, &verr))
	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "this field is required", fields["name"])
	assert.Contains(t, fields, "kind")
	assert.Contains(t, fields, "currency")
	assert.NotContains(t, fields, "from")
}

func TestStructAcceptsValidRequest(t *testing.T) {
	err := Struct(sampleRequest{Name: "x", Kind: "a", Currency: "USD", From: time.Now()})
	assert.NoError(t, err)
}
