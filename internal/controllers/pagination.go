package controllers

// PageSize is the fixed number of videos per catalog page
const PageSize = 50

// Pagination describes the page a source view carries
type Pagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	TotalVideos int `json:"total_videos"`
	PageSize    int `json:"page_size"`
}

// NewPagination computes the pages of totalVideos, capped at maxPages when positive
func NewPagination(totalVideos, currentPage, maxPages int) Pagination {
	if totalVideos < 0 {
		totalVideos = 0
	}
	totalPages := (totalVideos + PageSize - 1) / PageSize
	if maxPages > 0 && totalPages > maxPages {
		totalPages = maxPages
	}
	if currentPage < 1 {
		currentPage = 1
	}
	return Pagination{
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		TotalVideos: totalVideos,
		PageSize:    PageSize,
	}
}

// pageBounds returns the slice bounds of page within n items
func pageBounds(page, n int) (int, int) {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * PageSize
	if start > n {
		start = n
	}
	end := start + PageSize
	if end > n {
		end = n
	}
	return start, end
}
