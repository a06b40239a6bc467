package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"helpdesk-service/internal/middleware"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/services"
)

// TicketsHandler exposes the ticket CRUD and lifecycle endpoints
type TicketsHandler struct {
	tickets *services.TicketService
	logger  *logrus.Entry
}

func NewTicketsHandler(tickets *services.TicketService, logger *logrus.Logger) *TicketsHandler {
	return &TicketsHandler{
		tickets: tickets,
		logger:  logger.WithField("component", "tickets_handler"),
	}
}

// CreateTicket handles POST /api/v1/tickets
func (h *TicketsHandler) CreateTicket(c *gin.Context) {
	actorID, _ := middleware.UserID(c)

	var req models.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	ticket, err := h.tickets.CreateTicket(c.Request.Context(), actorID, &req)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create ticket")
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.TicketResponse{Success: true, Data: ticket})
}

// GetTicket handles GET /api/v1/tickets/:ticketId
func (h *TicketsHandler) GetTicket(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	ticketID, ok := parseUUIDParam(c, "ticketId")
	if !ok {
		return
	}

	ticket, err := h.tickets.GetTicket(c.Request.Context(), actorID, ticketID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TicketResponse{Success: true, Data: ticket})
}

// ListTickets handles GET /api/v1/tickets
func (h *TicketsHandler) ListTickets(c *gin.Context) {
	page, limit := parsePagination(c)

	tickets, pagination, err := h.tickets.ListTickets(c.Request.Context(), page, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list tickets")
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TicketListResponse{
		Success:    true,
		Data:       tickets,
		Pagination: pagination,
	})
}

// UpdateTicket handles PATCH /api/v1/tickets/:ticketId
func (h *TicketsHandler) UpdateTicket(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	ticketID, ok := parseUUIDParam(c, "ticketId")
	if !ok {
		return
	}

	var req models.UpdateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	ticket, err := h.tickets.UpdateTicket(c.Request.Context(), actorID, ticketID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TicketResponse{Success: true, Data: ticket})
}

// AssignTicket handles POST /api/v1/tickets/:ticketId/assign
func (h *TicketsHandler) AssignTicket(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	ticketID, ok := parseUUIDParam(c, "ticketId")
	if !ok {
		return
	}

	var req models.AssignTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	ticket, err := h.tickets.AssignTicket(c.Request.Context(), actorID, ticketID, req.AssigneeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TicketResponse{Success: true, Data: ticket})
}

// CloseTicket handles POST /api/v1/tickets/:ticketId/close
func (h *TicketsHandler) CloseTicket(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	ticketID, ok := parseUUIDParam(c, "ticketId")
	if !ok {
		return
	}

	ticket, err := h.tickets.CloseTicket(c.Request.Context(), actorID, ticketID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TicketResponse{Success: true, Data: ticket})
}
