package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindListFilter(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		expectErr     bool
		expectedPage  int
		expectedSize  int
		expectedOrder string
		expectedDir   string
	}{
		{
			name:          "defaults when nothing is set",
			query:         "",
			expectedPage:  1,
			expectedSize:  20,
			expectedOrder: "created_at",
			expectedDir:   "desc",
		},
		{
			name:          "explicit values pass through",
			query:         "page=3&page_size=50&order_by=updated_at&order_dir=asc",
			expectedPage:  3,
			expectedSize:  50,
			expectedOrder: "updated_at",
			expectedDir:   "asc",
		},
		{
			name:          "oversized page size falls back to default",
			query:         "page_size=500",
			expectedPage:  1,
			expectedSize:  20,
			expectedOrder: "created_at",
			expectedDir:   "desc",
		},
		{
			name:          "negative page falls back to first",
			query:         "page=-1",
			expectedPage:  1,
			expectedSize:  20,
			expectedOrder: "created_at",
			expectedDir:   "desc",
		},
		{
			name:      "rejects an unknown order direction",
			query:     "order_dir=sideways",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/?"+tt.query, nil)

			filter, err := bindListFilter(c)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedPage, filter.Page)
			assert.Equal(t, tt.expectedSize, filter.PageSize)
			assert.Equal(t, tt.expectedOrder, filter.OrderBy)
			assert.Equal(t, tt.expectedDir, filter.OrderDir)
			assert.NotNil(t, filter.Filters)
		})
	}
}
