package service

import (
	"context"
	"testing"
	"time"

	"merch-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCreateProductValidation(t *testing.T) {
	cs := &CatalogService{}
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateProductRequest
	}{
		{"negative price", CreateProductRequest{
			MerchantID: "m1", Title: "Tee", Price: -1, Sizes: []string{"M"},
		}},
		{"empty size label", CreateProductRequest{
			MerchantID: "m1", Title: "Tee", Price: 1000, Sizes: []string{"M", ""},
		}},
		{"duplicate size label", CreateProductRequest{
			MerchantID: "m1", Title: "Tee", Price: 1000, Sizes: []string{"M", "M"},
		}},
		{"stock for undeclared size", CreateProductRequest{
			MerchantID: "m1", Title: "Tee", Price: 1000, Sizes: []string{"M"},
			Stock: map[string]int{"L": 5},
		}},
		{"negative stock", CreateProductRequest{
			MerchantID: "m1", Title: "Tee", Price: 1000, Sizes: []string{"M"},
			Stock: map[string]int{"M": -1},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cs.CreateProduct(ctx, &tc.req)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestCreateEventValidation(t *testing.T) {
	cs := &CatalogService{}
	now := time.Now()

	_, err := cs.CreateEvent(context.Background(), &CreateEventRequest{
		Name:     "Arena Night",
		Venue:    "Arena",
		StartsAt: now,
		EndsAt:   now, // zero-length window
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = cs.CreateEvent(context.Background(), &CreateEventRequest{
		Name:     "Arena Night",
		Venue:    "Arena",
		StartsAt: now,
		EndsAt:   now.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestUpdateEventValidation(t *testing.T) {
	cs := &CatalogService{}
	now := time.Now()

	err := cs.UpdateEvent(context.Background(), &models.Event{
		ID:       "e1",
		StartsAt: now,
		EndsAt:   now.Add(-time.Minute),
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
