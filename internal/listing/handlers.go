package listing

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/sharefood/internal/fault"
	"github.com/sudo-init-do/sharefood/internal/geo"
)

var (
	store           Store
	defaultRadiusKm float64 = 10
	maxRadiusKm     float64 = 50
)

// Use wires the handlers to a store and the configured search radii.
// Called once from main before routes are served.
func Use(s Store, defaultRadius, maxRadius float64) {
	store = s
	if defaultRadius > 0 {
		defaultRadiusKm = defaultRadius
	}
	if maxRadius > 0 {
		maxRadiusKm = maxRadius
	}
}

// CreateListing - donor publishes a donation offer
func CreateListing(c echo.Context) error {
	donorID, ok := c.Get("user_id").(string)
	if !ok || donorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Quantity    string  `json:"quantity"`
		ImageURL    string  `json:"image_url"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	l := &Listing{
		DonorID:     donorID,
		Name:        req.Name,
		Description: req.Description,
		Quantity:    req.Quantity,
		ImageURL:    req.ImageURL,
		Location:    geo.Point{Lat: req.Lat, Lon: req.Lon},
	}
	if err := store.Create(c.Request().Context(), l); err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, l)
}

// FindNearby - recipient discovers available listings around a position
func FindNearby(c echo.Context) error {
	actorID, ok := c.Get("user_id").(string)
	if !ok || actorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	lat, errLat := strconv.ParseFloat(c.QueryParam("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.QueryParam("lon"), 64)
	if errLat != nil || errLon != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "lat and lon are required"})
	}

	radius := defaultRadiusKm
	if v := c.QueryParam("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid radius_km"})
		}
		radius = r
	}
	if radius > maxRadiusKm {
		radius = maxRadiusKm
	}

	// A donor never sees their own listings as match targets.
	matches, err := store.FindAvailableNear(c.Request().Context(), geo.Point{Lat: lat, Lon: lon}, radius, actorID)
	if err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, echo.Map{"listings": matches})
}

// MyListings - donor's own published listings with their status
func MyListings(c echo.Context) error {
	donorID, ok := c.Get("user_id").(string)
	if !ok || donorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	listings, err := store.ListByDonor(c.Request().Context(), donorID)
	if err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": listings})
}

// WithdrawListing - donor pulls an unclaimed listing
func WithdrawListing(c echo.Context) error {
	donorID, ok := c.Get("user_id").(string)
	if !ok || donorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing listing id"})
	}

	if err := store.Withdraw(c.Request().Context(), id, donorID); err != nil {
		return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": StatusWithdrawn})
}
