package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookRegistry_RunsInOrderAndStopsOnError(t *testing.T) {
	r := NewHookRegistry[string]()
	var seen []string

	r.On(AfterValidate, func(ctx context.Context, number string) error {
		seen = append(seen, "first:"+number)
		return nil
	})
	r.On(AfterValidate, func(ctx context.Context, number string) error {
		return errors.New("boom")
	})
	r.On(AfterValidate, func(ctx context.Context, number string) error {
		seen = append(seen, "third")
		return nil
	})

	err := r.Run(context.Background(), AfterValidate, "FAC-2024-00001")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"first:FAC-2024-00001"}, seen)
	assert.NoError(t, r.Run(context.Background(), AfterCancel, "x"))
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, Page{Limit: 50}, Page{}.Normalize())
	assert.Equal(t, Page{Limit: 500, Offset: 0}, Page{Limit: 9000, Offset: -3}.Normalize())
}
