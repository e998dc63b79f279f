// README: Ride handlers for recommendations, confirmation, rating, listing and deletion.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/http/middleware"
	"taxihub/internal/modules/ledger"
	"taxihub/internal/modules/matching"
	"taxihub/internal/types"
)

type RideHandler struct {
	ledger *ledger.Service
}

func NewRideHandler(svc *ledger.Service) *RideHandler {
	return &RideHandler{ledger: svc}
}

type recommendReq struct {
	Pickup  string `json:"pickup"`
	Dropoff string `json:"dropoff"`
}

type recommendationResp struct {
	DriverID       types.ID            `json:"driver_id"`
	Name           string              `json:"name"`
	Location       string              `json:"location"`
	AvgRating      float64             `json:"avg_rating"`
	CompletedRides int                 `json:"completed_rides"`
	Score          float64             `json:"score"`
	Components     matching.Components `json:"components"`
}

func (h *RideHandler) Recommend(c *gin.Context) {
	var req recommendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	sess := middleware.Session(c)
	recs, err := h.ledger.BookRide(c.Request.Context(), ledger.BookCommand{
		CustomerID: sess.ID,
		Pickup:     req.Pickup,
		Dropoff:    req.Dropoff,
	})
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	out := make([]recommendationResp, 0, len(recs))
	for _, r := range recs {
		out = append(out, recommendationResp{
			DriverID:       r.Candidate.ID,
			Name:           r.Candidate.Name,
			Location:       r.Candidate.Location,
			AvgRating:      r.Candidate.AvgRating,
			CompletedRides: r.Candidate.CompletedRides,
			Score:          r.Score,
			Components:     r.Components,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"pickup": req.Pickup, "dropoff": req.Dropoff, "drivers": out})
}

type confirmReq struct {
	DriverID string `json:"driver_id"`
	Pickup   string `json:"pickup"`
	Dropoff  string `json:"dropoff"`
}

func (h *RideHandler) Confirm(c *gin.Context) {
	var req confirmReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	sess := middleware.Session(c)
	ride, err := h.ledger.ConfirmRide(c.Request.Context(), ledger.ConfirmCommand{
		CustomerID: sess.ID,
		DriverID:   types.ID(req.DriverID),
		Pickup:     req.Pickup,
		Dropoff:    req.Dropoff,
	})
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, ride)
}

type rateReq struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

func (h *RideHandler) Rate(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	var req rateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	ctx := c.Request.Context()
	ride, err := h.ledger.GetRide(ctx, types.ID(id))
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	if sess := middleware.Session(c); ride.CustomerID != sess.ID {
		writeError(c, http.StatusForbidden, "ride belongs to another customer")
		return
	}
	rated, err := h.ledger.RateRide(ctx, ledger.RateCommand{
		RideID:   types.ID(id),
		Rating:   req.Rating,
		Feedback: req.Feedback,
	})
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rated)
}

func (h *RideHandler) List(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.ledger.ListRides(c.Request.Context()))
}

func (h *RideHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	if err := h.ledger.DeleteRide(c.Request.Context(), types.ID(id)); err != nil {
		writeLedgerError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
