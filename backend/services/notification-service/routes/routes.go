package routes

import (
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/controllers"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.Engine, controller *controllers.NotificationController) {
	// Admin only
	admin := router.Group("", middleware.AuthMiddleware(), middleware.AdminOnly())
	{
		admin.GET("/notifications/log", controller.GetNotificationLogs)
		admin.GET("/contacts/:student_id", controller.GetContact)
		admin.PUT("/contacts/:student_id", controller.PutContact)
	}
}
