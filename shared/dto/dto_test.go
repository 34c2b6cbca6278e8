package dto_test

import (
	"net/http"
	"net/url"
	"testing"

	"vfast/shared/constant"
	"vfast/shared/dto"

	"github.com/stretchr/testify/assert"
)

func TestQueryParams_FromRequest(t *testing.T) {
	tests := []struct {
		name           string
		query          url.Values
		defaultRequest bool
		expected       dto.QueryParams
	}{
		{
			name:     "all parameters",
			query:    url.Values{"page": {"2"}, "limit": {"20"}, "sort_by": {"check_in_date"}, "sort_dir": {"asc"}},
			expected: dto.QueryParams{Page: 2, Limit: 20, SortBy: "check_in_date", SortDir: dto.SortDirAsc},
		},
		{
			name:           "defaults applied",
			query:          url.Values{},
			defaultRequest: true,
			expected:       dto.QueryParams{Page: constant.DefaultValuePage, Limit: constant.DefaultValueLimit},
		},
		{
			name:     "invalid values ignored",
			query:    url.Values{"page": {"-1"}, "limit": {"abc"}, "sort_dir": {"sideways"}},
			expected: dto.QueryParams{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &http.Request{URL: &url.URL{RawQuery: tt.query.Encode()}}

			params := dto.QueryParams{}
			params.FromRequest(req, tt.defaultRequest)

			assert.Equal(t, tt.expected, params)
		})
	}
}

func TestQueryParams_RestrictSort(t *testing.T) {
	tests := []struct {
		name    string
		params  dto.QueryParams
		wantBy  string
		wantDir string
	}{
		{name: "allowed column keeps direction", params: dto.QueryParams{SortBy: "CHECK_IN_DATE", SortDir: dto.SortDirAsc}, wantBy: "check_in_date", wantDir: dto.SortDirAsc},
		{name: "allowed column gets default direction", params: dto.QueryParams{SortBy: "status"}, wantBy: "status", wantDir: constant.DefaultValueSortDir},
		{name: "unknown column replaced", params: dto.QueryParams{SortBy: "id; DROP TABLE bookings", SortDir: dto.SortDirAsc}, wantBy: constant.DefaultValueSortBy, wantDir: constant.DefaultValueSortDir},
		{name: "empty untouched", params: dto.QueryParams{}, wantBy: "", wantDir: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.RestrictSort("check_in_date", "status", "created_at")

			assert.Equal(t, tt.wantBy, tt.params.SortBy)
			assert.Equal(t, tt.wantDir, tt.params.SortDir)
		})
	}
}

func TestFilter_GetWhereClause(t *testing.T) {
	tests := []struct {
		name      string
		filter    dto.Filter
		wantWhere string
		wantArgs  map[string]any
	}{
		{
			name:      "eq with table",
			filter:    dto.Filter{Field: "status", Value: "APPROVED", Operator: dto.FilterOperatorEq, Table: "bookings"},
			wantWhere: "bookings.status = :status",
			wantArgs:  map[string]any{"status": "APPROVED"},
		},
		{
			name:      "arg name avoids collisions",
			filter:    dto.Filter{ArgName: "expected_status", Field: "status", Value: "APPROVED", Operator: dto.FilterOperatorEq},
			wantWhere: "status = :expected_status",
			wantArgs:  map[string]any{"expected_status": "APPROVED"},
		},
		{
			name:      "in with slice",
			filter:    dto.Filter{Field: "id", Value: []string{"r1", "r2"}, Operator: dto.FilterOperatorIn},
			wantWhere: "id IN (:id_0, :id_1) ",
			wantArgs:  map[string]any{"id_0": "r1", "id_1": "r2"},
		},
		{
			name:      "greater or equal",
			filter:    dto.Filter{Field: "check_in_date", Value: "2025-01-10", Operator: dto.FilterOperatorGreaterEq},
			wantWhere: "check_in_date >= :check_in_date",
			wantArgs:  map[string]any{"check_in_date": "2025-01-10"},
		},
		{
			name:      "is null",
			filter:    dto.Filter{Field: "released_at", Operator: dto.FilterIsNull, Table: "booking_rooms"},
			wantWhere: "booking_rooms.released_at IS NULL",
			wantArgs:  map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := tt.filter.GetWhereClause()

			assert.Equal(t, tt.wantWhere, where)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestFilterGroup_GetWhereClause(t *testing.T) {
	group := dto.FilterGroup{
		Operator: dto.FilterGroupOperatorAnd,
		Filters: []any{
			dto.Filter{Field: "is_deleted", Value: false, Operator: dto.FilterOperatorEq},
			dto.FilterGroup{
				Operator: dto.FilterGroupOperatorOr,
				Filters: []any{
					dto.Filter{ArgName: "s0", Field: "status", Value: "APPROVED", Operator: dto.FilterOperatorEq},
					dto.Filter{ArgName: "s1", Field: "status", Value: "PENDING_RECONSIDERATION", Operator: dto.FilterOperatorEq},
				},
			},
		},
	}

	where, args := group.GetWhereClause()

	assert.Equal(t, "(is_deleted = :is_deleted AND (status = :s0 OR status = :s1))", where)
	assert.Len(t, args, 3)

	empty := dto.FilterGroup{}
	where, _ = empty.GetWhereClause()
	assert.Empty(t, where)
}
