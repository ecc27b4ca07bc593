package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/rewired-gh/archerstats/internal/stats"
)

// Handler serves the /api routes.
type Handler struct {
	tracker Tracker
	history History
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/api")
	group.Get("/live", h.HandleLive)
	group.Get("/rankings", h.HandleAllRankings)
	group.Get("/rankings/:metric", h.HandleRankings)
	group.Get("/streaks", h.HandleStreaks)
	group.Get("/venue", h.HandleGetVenue)
	group.Put("/venue", h.HandleSetVenue)
	group.Get("/matches", h.HandleMatches)
	group.Get("/totals", h.HandleTotals)
}

// HandleLive returns the live session.
func (h *Handler) HandleLive(c *fiber.Ctx) error {
	return c.JSON(h.tracker.LiveStats())
}

// HandleRankings ranks one metric. ?active=true limits it to archers that played.
func (h *Handler) HandleRankings(c *fiber.Ctx) error {
	metric, err := stats.ParseMetric(c.Params("metric"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	groups := h.tracker.Rankings(metric, c.QueryBool("active"))
	return c.JSON(fiber.Map{
		"metric":   metric,
		"rankings": orEmpty(groups),
	})
}

// HandleAllRankings returns the rankings for every metric.
func (h *Handler) HandleAllRankings(c *fiber.Ctx) error {
	active := c.QueryBool("active")
	out := make(map[stats.Metric][]stats.Group[float64], len(stats.Metrics))
	for _, m := range stats.Metrics {
		out[m] = orEmpty(h.tracker.Rankings(m, active))
	}
	return c.JSON(out)
}

// HandleStreaks returns the current winning streaks.
func (h *Handler) HandleStreaks(c *fiber.Ctx) error {
	return c.JSON(h.tracker.Streaks())
}

// HandleGetVenue returns the venue new matches are tagged with.
func (h *Handler) HandleGetVenue(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"venue": h.tracker.Venue()})
}

type venueRequest struct {
	Venue string `json:"venue"`
}

// HandleSetVenue tags subsequent matches with a venue. An empty venue clears it.
func (h *Handler) HandleSetVenue(c *fiber.Ctx) error {
	var req venueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	h.tracker.SetVenue(req.Venue)
	return c.JSON(fiber.Map{"venue": h.tracker.Venue()})
}

// HandleMatches returns recent stored matches, newest first.
func (h *Handler) HandleMatches(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "match database disabled"})
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and 500"})
		}
		limit = n
	}
	matches, err := h.history.RecentMatches(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(matches)
}

// HandleTotals returns all-time per-archer totals from the database.
func (h *Handler) HandleTotals(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "match database disabled"})
	}
	totals, err := h.history.ArcherTotals(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(totals)
}

func orEmpty(groups []stats.Group[float64]) []stats.Group[float64] {
	if groups == nil {
		return []stats.Group[float64]{}
	}
	return groups
}
