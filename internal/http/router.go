// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"ridehail/internal/http/handlers"
	"ridehail/internal/http/middleware"
	"ridehail/internal/infra"
	"ridehail/internal/modules/matching"
	"ridehail/internal/modules/presence"
	"ridehail/internal/modules/pricing"
	"ridehail/internal/modules/ride"
)

type RouterDeps struct {
	Verifier infra.TokenVerifier
	Presence *presence.Service
	Rides    *ride.Service
	Matching *matching.Service
	Pricing  *pricing.Service
	// Places and Feed are optional.
	Places   handlers.PlaceSearcher
	Feed     handlers.FeedServer
	RadiusKm float64
	Log      logrus.FieldLogger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(deps.Log),
		middleware.Logging(deps.Log),
		middleware.Metrics(),
	)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	driverHandler := handlers.NewDriverHandler(deps.Presence, deps.Rides, deps.Feed, deps.RadiusKm, deps.Log)
	api.GET("/drivers/available",
		middleware.RequireRole(middleware.RoleRider, middleware.RoleAdmin), driverHandler.Available)

	drivers := api.Group("/drivers", middleware.RequireRole(middleware.RoleDriver))
	drivers.POST("/register", driverHandler.Register)
	drivers.POST("/status", driverHandler.SetStatus)
	drivers.POST("/location", driverHandler.UpdateLocation)
	drivers.POST("/presence", driverHandler.ReportPresence)
	drivers.GET("/me", driverHandler.Me)
	drivers.GET("/incoming", driverHandler.Incoming)
	drivers.POST("/rides/:id/accept", driverHandler.Accept)
	drivers.POST("/rides/:id/release", driverHandler.Release)
	drivers.POST("/rides/:id/complete", driverHandler.Complete)
	drivers.GET("/ws", driverHandler.Feed)

	rideHandler := handlers.NewRideHandler(deps.Rides, deps.Matching, deps.Pricing)
	riderOnly := middleware.RequireRole(middleware.RoleRider)
	api.POST("/rides/estimate", rideHandler.Estimate)
	api.POST("/rides", riderOnly, rideHandler.Create)
	api.GET("/rides/mine", riderOnly, rideHandler.Mine)
	api.GET("/rides/:id", rideHandler.Get)
	api.POST("/rides/:id/assign", rideHandler.Assign)
	api.POST("/rides/:id/cancel", rideHandler.Cancel)

	placeHandler := handlers.NewPlaceHandler(deps.Places, deps.Log)
	api.GET("/places/autocomplete", placeHandler.Autocomplete)

	return r
}
