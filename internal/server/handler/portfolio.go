package handler

import (
	"net/http"

	"github.com/alanyoungcy/gembot/internal/domain"
)

// Snapshotter provides a consistent read-only view of the position book.
type Snapshotter interface {
	Snapshot() domain.BookSnapshot
}

// PortfolioHandler serves the portfolio monitoring endpoint.
type PortfolioHandler struct {
	book Snapshotter
}

// NewPortfolioHandler creates a PortfolioHandler over the given book view.
func NewPortfolioHandler(book Snapshotter) *PortfolioHandler {
	return &PortfolioHandler{book: book}
}

// GetPortfolio returns the current book snapshot. The snapshot call blocks
// while a decision cycle is mutating the book, so the response never shows
// a half-applied cycle.
// GET /api/portfolio
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.book.Snapshot())
}
