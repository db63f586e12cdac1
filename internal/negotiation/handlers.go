package negotiation

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/sharefood/internal/fault"
)

var engine *Engine

// Use wires the handlers to an engine. Called once from main.
func Use(e *Engine) {
	engine = e
}

// OpenNegotiation - either party opens (or re-opens) the conversation for
// a listing. Idempotent: repeated calls return the same negotiation.
func OpenNegotiation(c echo.Context) error {
	actorID, ok := c.Get("user_id").(string)
	if !ok || actorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		DonorID     string `json:"donor_id"`
		RecipientID string `json:"recipient_id"`
		ListingID   string `json:"listing_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	// A recipient opening a chat only supplies donor and listing.
	if req.RecipientID == "" {
		req.RecipientID = actorID
	}

	n, err := engine.GetOrCreate(c.Request().Context(), req.DonorID, req.RecipientID, req.ListingID, actorID)
	if err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, echo.Map{"negotiation_id": n.ID, "status": n.Status})
}

// GetNegotiation - fetch one negotiation, participants only
func GetNegotiation(c echo.Context) error {
	actorID, ok := c.Get("user_id").(string)
	if !ok || actorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	n, err := engine.Get(c.Request().Context(), c.Param("id"), actorID)
	if err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, n)
}

// ListNegotiations - the caller's open conversations, most recent first
func ListNegotiations(c echo.Context) error {
	actorID, ok := c.Get("user_id").(string)
	if !ok || actorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ns, err := engine.ListMine(c.Request().Context(), actorID)
	if err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"negotiations": ns})
}

// ConfirmDelivery - donor marks the food handed over
func ConfirmDelivery(c echo.Context) error {
	actorID, ok := c.Get("user_id").(string)
	if !ok || actorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	n, err := engine.ConfirmDelivery(c.Request().Context(), c.Param("id"), actorID)
	if err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": n.Status})
}

// ConfirmReceipt - recipient acknowledges the handoff
func ConfirmReceipt(c echo.Context) error {
	actorID, ok := c.Get("user_id").(string)
	if !ok || actorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	n, err := engine.ConfirmReceipt(c.Request().Context(), c.Param("id"), actorID)
	if err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": n.Status})
}
