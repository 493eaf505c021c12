package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/payably/backend/internal/domain/shared"
)

// listQuery carries the common pagination query parameters
type listQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// bindListFilter binds the common pagination query parameters into a
// repository filter, applying defaults for absent values
func bindListFilter(c *gin.Context) (shared.Filter, error) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return shared.Filter{}, err
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.OrderBy == "" {
		q.OrderBy = "created_at"
	}
	if q.OrderDir == "" {
		q.OrderDir = "desc"
	}
	return shared.Filter{
		Page:     q.Page,
		PageSize: q.PageSize,
		OrderBy:  q.OrderBy,
		OrderDir: q.OrderDir,
		Filters:  make(map[string]interface{}),
	}, nil
}
