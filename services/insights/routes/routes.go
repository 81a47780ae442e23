// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luminahr/lumina/services/insights/handlers"
	"github.com/luminahr/lumina/services/insights/middleware"
)

// SetupRoutes registers every route of the insights service. All v1 routes
// are tenant-scoped via the tenant middleware.
func SetupRoutes(router *gin.Engine, engine handlers.Engine) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.TenantMiddleware())
	{
		v1.GET("/dashboard", handlers.HandleDashboard(engine))
		v1.POST("/dashboard/refresh", handlers.HandleDashboardRefresh(engine))
		v1.GET("/turnover", handlers.HandleTurnover(engine))
		v1.POST("/chat", handlers.HandleChat(engine))
		v1.GET("/usage", handlers.HandleUsage(engine))
		v1.GET("/events/ws", handlers.HandleEventsWebSocket(engine))

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", handlers.HandleListNotifications(engine))
			notifications.POST("/:id/read", handlers.HandleMarkNotificationRead(engine))
			notifications.POST("/read-all", handlers.HandleMarkAllNotificationsRead(engine))
			notifications.GET("/unread-count", handlers.HandleUnreadCount(engine))
		}
	}
}
