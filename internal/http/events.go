package http

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/jvanheule/webhook-poller/internal/repository"
)

func statsHandler(eventsRepo repository.EventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		counts, err := eventsRepo.CountByStatus(c.Request().Context())
		if err != nil {
			log.Errorf("count by status failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, counts)
	}
}

func listDeadHandler(eventsRepo repository.EventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		events, err := eventsRepo.ListDead(c.Request().Context(), limit, offset)
		if err != nil {
			log.Errorf("list dead events failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(events),
			"results": events,
		})
	}
}
