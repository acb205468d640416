package shared

// PagingInfo holds simple window-paging metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// ClampPage normalises page/pageSize to sane bounds.
func ClampPage(page, pageSize, maxPageSize int) (int, int) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if maxPageSize > 0 && pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return page, pageSize
}
