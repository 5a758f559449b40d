package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/food-circles/internal/circle"
	"github.com/vasiliy-maslov/food-circles/internal/geo"
)

func (h *Handler) handleEstablishmentCircles(w http.ResponseWriter, r *http.Request) {
	establishmentID := chi.URLParam(r, "id")

	within, err := parseTimeRange(r)
	if err != nil {
		log.Warn().Err(err).Str("establishment_id", establishmentID).Msg("handler: invalid time range")
		respondWithError(w, http.StatusBadRequest, "Query parameters 'from' and 'to' must be given together as numbers")
		return
	}

	agg, err := h.circles.EstablishmentCircles(r.Context(), establishmentID, within)
	if err != nil {
		log.Error().Err(err).Str("establishment_id", establishmentID).Msg("handler: failed to aggregate circles via service")
		respondWithServiceError(w, err, "Failed to load establishment circles")
		return
	}

	if agg.IsEmpty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondWithJSON(w, http.StatusOK, agg)
}

func (h *Handler) handleCityMap(w http.ResponseWriter, r *http.Request) {
	cityID := chi.URLParam(r, "id")

	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		log.Warn().Str("city_id", cityID).Msg("handler: missing or malformed requester coordinates")
		respondWithError(w, http.StatusBadRequest, "Query parameters 'lat' and 'lon' are required numbers")
		return
	}

	projection, err := h.circles.CityMap(r.Context(), cityID, geo.NewPoint(lat, lon))
	if err != nil {
		log.Error().Err(err).Str("city_id", cityID).Msg("handler: failed to project city map via service")
		respondWithServiceError(w, err, "Failed to load city map")
		return
	}

	respondWithJSON(w, http.StatusOK, projection)
}

var errIncompleteRange = errors.New("from and to must be given together")

// parseTimeRange reads the optional from/to query parameters. Neither
// present means no range.
func parseTimeRange(r *http.Request) (*circle.TimeRange, error) {
	q := r.URL.Query()
	fromParam, toParam := q.Get("from"), q.Get("to")
	if fromParam == "" && toParam == "" {
		return nil, nil
	}
	if fromParam == "" || toParam == "" {
		return nil, errIncompleteRange
	}

	from, err := strconv.ParseFloat(fromParam, 64)
	if err != nil {
		return nil, err
	}
	to, err := strconv.ParseFloat(toParam, 64)
	if err != nil {
		return nil, err
	}
	return &circle.TimeRange{From: from, To: to}, nil
}
