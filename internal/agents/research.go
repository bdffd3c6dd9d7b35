package agents

import (
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shopscout/shopscout/internal/transport"
	"github.com/shopscout/shopscout/internal/verifier"
)

// ResearchService exposes product availability verification over HTTP.
type ResearchService struct {
	Verifier *verifier.Verifier
}

func (s *ResearchService) Routes(e *echo.Echo) {
	e.POST("/verify_product", s.verifyProduct)
}

func (s *ResearchService) Run(addr string) error {
	e := newEcho("RESEARCH")
	s.Routes(e)
	log.Printf("research agent listening on %s", addr)
	return e.Start(addr)
}

func (s *ResearchService) verifyProduct(c echo.Context) error {
	var req transport.VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Product == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "product is required")
	}
	referenceDate := time.Now()
	if req.ReferenceDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.ReferenceDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "reference_date must be RFC3339")
		}
		referenceDate = parsed
	}

	// The verdict is authoritative even when verification degraded; the
	// error is already reflected in the closed unknown verdict.
	verdict, _ := s.Verifier.Verify(c.Request().Context(), req.Product, referenceDate)
	return c.JSON(http.StatusOK, transport.VerifyResponse{Kind: transport.KindVerdict, Verdict: verdict})
}
