package handler

import (
	"net/http"

	"github.com/quickbite/delivery-core/internal/domain/product"
)

type productResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Category     string  `json:"category,omitempty"`
	SalesCount   int64   `json:"salesCount"`
	TotalRevenue float64 `json:"totalRevenue"`
	Rating       float64 `json:"rating"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price.InexactFloat64(),
		Category:     p.Category,
		SalesCount:   p.SalesCount,
		TotalRevenue: p.TotalRevenue.InexactFloat64(),
		Rating:       p.Rating.InexactFloat64(),
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}
