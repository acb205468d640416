package audit

import (
	"context"
	"fmt"

	"github.com/praxis-crm/praxis/internal/shared"
)

// Repository provides the history query the service needs.
type Repository interface {
	Window(ctx context.Context, arg WindowParams) ([]Record, error)
}

// WindowParams selects one descending page of audit records. LimitRows is
// expected to be pageSize+1 so the service can detect a next page.
type WindowParams struct {
	Filters    Filters
	OffsetRows int
	LimitRows  int
}

// Result wraps one history page with paging metadata.
type Result struct {
	Rows   []Record
	Paging shared.PagingInfo
}

// Service coordinates audit history retrieval.
type Service struct {
	repo Repository
}

// NewService builds a history service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

const maxPageSize = 50

// History returns audit records matching the filters, newest first, with
// restartable window paging.
func (s *Service) History(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	page, pageSize := shared.ClampPage(filters.Page, filters.PageSize, maxPageSize)
	rows, err := s.repo.Window(ctx, WindowParams{
		Filters:    filters,
		OffsetRows: (page - 1) * pageSize,
		LimitRows:  pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := shared.PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
