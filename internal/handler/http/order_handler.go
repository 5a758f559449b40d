package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/food-circles/internal/circle"
	"github.com/vasiliy-maslov/food-circles/internal/order"
)

type SubmitOrderRequest struct {
	EstablishmentID string         `json:"establishment_id" validate:"required"`
	CityID          string         `json:"city_id"`
	UserID          string         `json:"user_id" validate:"required"`
	Lat             *float64       `json:"lat" validate:"required,latitude"`
	Lon             *float64       `json:"lon" validate:"required,longitude"`
	Items           map[string]int `json:"items" validate:"required,min=1,dive,keys,required,endkeys,gt=0"`
}

type UpdateOrderRequest struct {
	Status string `json:"status" validate:"required,oneof=pending accepted preparing completed cancelled"`
}

type OrderResponse struct {
	ID              uuid.UUID      `json:"id"`
	EstablishmentID string         `json:"establishment_id"`
	CityID          string         `json:"city_id"`
	UserID          string         `json:"user_id"`
	Lat             float64        `json:"lat"`
	Lon             float64        `json:"lon"`
	Items           map[string]int `json:"items"`
	Total           float64        `json:"total"`
	Status          order.Status   `json:"status"`
	Anchor          float64        `json:"anchor"`
	CreatedAt       float64        `json:"created_at"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	return OrderResponse{
		ID:              o.ID,
		EstablishmentID: o.EstablishmentID,
		CityID:          o.CityID,
		UserID:          o.UserID,
		Lat:             o.Lat,
		Lon:             o.Lon,
		Items:           o.Items,
		Total:           o.Total,
		Status:          o.Status,
		Anchor:          o.Anchor,
		CreatedAt:       o.CreatedAt,
	}
}

type Handler struct {
	circles  circle.Service
	orders   order.Service
	validate *validator.Validate
}

func NewHandler(circles circle.Service, orders order.Service) *Handler {
	return &Handler{
		circles:  circles,
		orders:   orders,
		validate: validator.New(),
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleSubmitOrder)
	router.Get("/orders/{id}", h.handleGetOrderByID)
	router.Patch("/orders/{id}", h.handleUpdateOrder)
	router.Get("/establishments/{id}/circles", h.handleEstablishmentCircles)
	router.Get("/cities/{id}/map", h.handleCityMap)
}

func (h *Handler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload SubmitOrderRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("handler: failed to decode order request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	created, err := h.circles.SubmitOrder(r.Context(), circle.SubmitOrderInput{
		EstablishmentID: requestPayload.EstablishmentID,
		CityID:          requestPayload.CityID,
		UserID:          requestPayload.UserID,
		Lat:             *requestPayload.Lat,
		Lon:             *requestPayload.Lon,
		Items:           requestPayload.Items,
	})
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to submit order via service")
		respondWithServiceError(w, err, "Failed to submit order")
		return
	}

	respondWithJSON(w, http.StatusCreated, toOrderResponse(created))
}

func (h *Handler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("handler: failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	found, err := h.orders.GetOrderByID(r.Context(), orderID)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to get order by id via service")
		respondWithServiceError(w, err, "Failed to get order by id")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(found))
}

func (h *Handler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("handler: failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var requestPayload UpdateOrderRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("handler: failed to decode order update body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	status := order.Status(requestPayload.Status)
	if err := h.orders.UpdateOrder(r.Context(), orderID, order.Changes{Status: &status}); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("handler: failed to update order via service")
		respondWithServiceError(w, err, "Failed to update order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
