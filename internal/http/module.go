package http

import (
	"github.com/gin-gonic/gin"
)

// Module is a feature area that mounts its own routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is what the router hands each module at registration.
type RouterContext struct {
	Engine *gin.Engine
	// V1 is the /api/v1 group.
	V1 *gin.RouterGroup
	// BookingRateLimit guards endpoints that create bookings. Nil when
	// rate limiting is disabled.
	BookingRateLimit gin.HandlerFunc
}
