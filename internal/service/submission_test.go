package service

import (
	"testing"

	"portal/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestEditsFor(t *testing.T) {
	t.Run("optional fields are trimmed and may be blank", func(t *testing.T) {
		fields, err := editsFor(model.RequestTypeActivityPlan, ResubmitRequest{
			Title:       strPtr("  Robotics fair "),
			Venue:       strPtr("   "),
			Description: strPtr(" Two days "),
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{
			"title":       "Robotics fair",
			"venue":       "",
			"description": "Two days",
		}, fields)
	})

	t.Run("required field cannot be blanked", func(t *testing.T) {
		_, err := editsFor(model.RequestTypeBudgetRequest, ResubmitRequest{Title: strPtr(" ")})
		assert.ErrorIs(t, err, ErrValidation)

		_, err = editsFor(model.RequestTypeEquipment, ResubmitRequest{Purpose: strPtr("")})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("fields of another type are rejected", func(t *testing.T) {
		_, err := editsFor(model.RequestTypeBudgetRequest, ResubmitRequest{Venue: strPtr("Gym")})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("single date edit maps to its column", func(t *testing.T) {
		end := at(1)
		fields, err := editsFor(model.RequestTypeActivityPlan, ResubmitRequest{End: &end})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"end_date": end}, fields)
	})

	t.Run("amount must be positive", func(t *testing.T) {
		zero := decimal.Zero
		_, err := editsFor(model.RequestTypeBudgetRequest, ResubmitRequest{Amount: &zero})
		assert.ErrorIs(t, err, ErrValidation)
	})
}
