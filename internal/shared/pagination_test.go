package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	cases := []struct {
		name                 string
		page, perPage, total int
		want                 Pagination
	}{
		{"defaults", 0, 0, 45, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3, HasNext: true}},
		{"capped", 2, 500, 150, Pagination{Page: 2, PerPage: 100, Total: 150, TotalPages: 2}},
		{"empty", 1, 10, 0, Pagination{Page: 1, PerPage: 10}},
		{"exact", 3, 10, 30, Pagination{Page: 3, PerPage: 10, Total: 30, TotalPages: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NewPagination(tc.page, tc.perPage, tc.total))
		})
	}
	assert.Equal(t, 20, NewPagination(2, 10, 100).Offset())
}
