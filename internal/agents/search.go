package agents

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/shopscout/shopscout/internal/marketplace"
	"github.com/shopscout/shopscout/internal/transport"
)

// SearchService exposes one marketplace client over HTTP. The same handler
// serves both the eBay and Amazon agents; only Source and Client differ.
type SearchService struct {
	Source string
	Client marketplace.Client
}

func (s *SearchService) Routes(e *echo.Echo) {
	e.POST("/search", s.search)
}

func (s *SearchService) Run(addr string) error {
	e := newEcho(strings.ToUpper(s.Source))
	s.Routes(e)
	log.Printf("%s agent listening on %s", s.Source, addr)
	return e.Start(addr)
}

func (s *SearchService) search(c echo.Context) error {
	var req transport.SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	listings, err := s.Client.Search(c.Request().Context(), req.Query, req.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if listings == nil {
		listings = []marketplace.Listing{}
	}
	return c.JSON(http.StatusOK, transport.SearchResponse{
		Kind:     transport.KindListings,
		Source:   s.Source,
		Listings: listings,
	})
}
