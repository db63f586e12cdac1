package chat

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/sharefood/internal/fault"
)

var service *Service

// Use wires the handlers to a service. Called once from main.
func Use(s *Service) {
	service = s
}

// SendMessage - a participant appends to the negotiation thread
func SendMessage(c echo.Context) error {
	actorID, ok := c.Get("user_id").(string)
	if !ok || actorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	negotiationID := c.Param("id")
	if negotiationID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing negotiation id"})
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	m, err := service.Append(c.Request().Context(), negotiationID, actorID, req.Text)
	if err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, echo.Map{"message_id": m.ID, "sequence": m.Sequence})
}

// ListMessages - the ordered conversation for a negotiation
func ListMessages(c echo.Context) error {
	actorID, ok := c.Get("user_id").(string)
	if !ok || actorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	negotiationID := c.Param("id")
	if negotiationID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing negotiation id"})
	}

	msgs, err := service.List(c.Request().Context(), negotiationID, actorID)
	if err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}
