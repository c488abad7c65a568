package stockrequest

import (
	"sort"
	"strings"

	"pharmacy-cart-api-server/internal/models"
)

// Filter narrows a worker's request list. Empty fields match everything.
type Filter struct {
	Status       models.RequestStatus `form:"status"`
	UrgencyLevel models.UrgencyLevel  `form:"urgencyLevel"`
	Search       string               `form:"search"`
}

func (f Filter) matches(r models.StockRequest) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.UrgencyLevel != "" && r.UrgencyLevel != f.UrgencyLevel {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		fields := []string{r.RequestNumber}
		if r.Tablet != nil {
			fields = append(fields, r.Tablet.Name, r.Tablet.Brand)
		}
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

// FilterRequests returns the matching requests, pending ones first, then by
// urgency, then newest first. The input is not modified.
func FilterRequests(requests []models.StockRequest, f Filter) []models.StockRequest {
	out := make([]models.StockRequest, 0, len(requests))
	for _, r := range requests {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aPending, bPending := a.Status == models.StatusPending, b.Status == models.StatusPending
		if aPending != bPending {
			return aPending
		}
		if a.UrgencyLevel.Rank() != b.UrgencyLevel.Rank() {
			return a.UrgencyLevel.Rank() < b.UrgencyLevel.Rank()
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out
}
