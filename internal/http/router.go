// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/events"
	"taxihub/internal/http/handlers"
	"taxihub/internal/http/middleware"
	"taxihub/internal/modules/ledger"
	"taxihub/internal/types"
)

func NewRouter(ledgerSvc *ledger.Service, hub *events.Hub, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	customerOnly := middleware.RequireRole(ledgerSvc, types.RoleCustomer)
	driverOnly := middleware.RequireRole(ledgerSvc, types.RoleDriver)

	api := r.Group("/api")

	sessionHandler := handlers.NewSessionHandler(ledgerSvc)
	api.POST("/session", sessionHandler.Login)
	api.GET("/session", sessionHandler.Get)
	api.DELETE("/session", sessionHandler.Logout)

	rideHandler := handlers.NewRideHandler(ledgerSvc)
	api.POST("/rides/recommendations", customerOnly, rideHandler.Recommend)
	api.POST("/rides", customerOnly, rideHandler.Confirm)
	api.POST("/rides/:id/rating", customerOnly, rideHandler.Rate)
	api.GET("/rides", rideHandler.List)
	api.DELETE("/rides/:id", rideHandler.Delete)

	customerHandler := handlers.NewCustomerHandler(ledgerSvc)
	api.GET("/customers/me/rides", customerOnly, customerHandler.MyRides)
	api.GET("/customers", customerHandler.List)
	api.DELETE("/customers/:id", customerHandler.Delete)

	driverHandler := handlers.NewDriverHandler(ledgerSvc)
	api.GET("/drivers/me/summary", driverOnly, driverHandler.MySummary)
	api.GET("/drivers", driverHandler.List)
	api.DELETE("/drivers/:id", driverHandler.Delete)

	eventsHandler := handlers.NewEventsHandler(ledgerSvc, hub)
	api.GET("/events", eventsHandler.Log)
	api.GET("/events/ws", eventsHandler.Stream)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ledger": ledgerSvc.Stats(c.Request.Context())})
	})

	return r
}
