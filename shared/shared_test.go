package shared_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"vfast/shared"
	cacheMocks "vfast/shared/cache/mocks"
	"vfast/shared/constant"
	"vfast/shared/dto"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestConvertStringToBool(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *bool
	}{
		{name: "true", input: "true", expected: boolPtr(true)},
		{name: "one", input: "1", expected: boolPtr(true)},
		{name: "false", input: "false", expected: boolPtr(false)},
		{name: "empty", input: "", expected: nil},
		{name: "garbage", input: "maybe", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shared.ConvertStringToBool(tt.input))
		})
	}
}

func TestConvertStringToInt(t *testing.T) {
	got, err := shared.ConvertStringToInt(" 4 ")
	assert.NoError(t, err)
	assert.Equal(t, 4, got)

	_, err = shared.ConvertStringToInt("four")
	assert.Error(t, err)
}

func TestCalculateTotalPage(t *testing.T) {
	tests := []struct {
		total, limit, expected int
	}{
		{total: 0, limit: 10, expected: 1},
		{total: 10, limit: 0, expected: 1},
		{total: 10, limit: 10, expected: 1},
		{total: 11, limit: 10, expected: 2},
		{total: 95, limit: 20, expected: 5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, shared.CalculateTotalPage(tt.total, tt.limit))
	}
}

func TestTransformFields(t *testing.T) {
	type roomPatch struct {
		Type     string  `db:"type"`
		Floor    *int    `db:"floor"`
		Notes    *string `db:"reservation_notes"`
		Untagged string
	}

	floor := 0

	result := shared.TransformFields(roomPatch{Type: "DELUXE", Floor: &floor, Untagged: "x"}, "staff-1")

	assert.Equal(t, "DELUXE", result["type"])
	assert.Equal(t, 0, result["floor"])
	assert.NotContains(t, result, "reservation_notes")
	assert.NotContains(t, result, "Untagged")
	assert.Equal(t, "staff-1", result[constant.FieldModifiedBy])
	assert.IsType(t, time.Time{}, result[constant.FieldModifiedAt])
}

func TestFilterByID(t *testing.T) {
	filter := shared.FilterByID("b-1", "id", "bookings")
	where, args := filter.GetWhereClause()

	assert.Equal(t, "(bookings.id = :id)", where)
	assert.Equal(t, map[string]any{"id": "b-1"}, args)
}

func TestBuildCacheKey(t *testing.T) {
	assert.Equal(t, "room:get", shared.BuildCacheKey("room:get"))
	assert.Equal(t, "room:get:R01", shared.BuildCacheKey("room:get", "R01"))
	assert.Equal(t, "limiter:10.0.0.1:curl", shared.BuildCacheKey("limiter", "10.0.0.1", "curl"))
}

func TestBuildCacheKeyWithQuery(t *testing.T) {
	params := dto.QueryParams{Page: 1, Limit: 10}
	pending := dto.FilterGroup{Filters: []any{dto.Filter{Field: "status", Value: "APPROVED", Operator: dto.FilterOperatorEq}}}
	rejected := dto.FilterGroup{Filters: []any{dto.Filter{Field: "status", Value: "REJECTED", Operator: dto.FilterOperatorEq}}}

	first := shared.BuildCacheKeyWithQuery("booking:gets", params, pending)
	again := shared.BuildCacheKeyWithQuery("booking:gets", params, pending)
	other := shared.BuildCacheKeyWithQuery("booking:gets", params, rejected)

	assert.True(t, strings.HasPrefix(first, "booking:gets:"))
	assert.Equal(t, first, again)
	assert.NotEqual(t, first, other)
}

func TestInvalidateCaches(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCache := cacheMocks.NewMockRedisCache(ctrl)

	mockCache.EXPECT().Clear(gomock.Any(), "room:gets:*").Return(nil)
	shared.InvalidateCaches(context.Background(), mockCache, "room:gets")

	mockCache.EXPECT().Clear(gomock.Any(), "room:count:*").Return(errors.New("redis down"))
	shared.InvalidateCaches(context.Background(), mockCache, "room:count")
}

func TestActorFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "u-1")
	ctx = context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleDepartment)
	ctx = context.WithValue(ctx, constant.ContextKeyUserDept, "Finance")

	id, role, dept := shared.ActorFromContext(ctx)

	assert.Equal(t, "u-1", id)
	assert.Equal(t, constant.RoleDepartment, role)
	assert.Equal(t, "Finance", dept)
}

func boolPtr(b bool) *bool {
	return &b
}
