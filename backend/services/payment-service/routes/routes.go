package routes

import (
	"github.com/caffeinepub/openframe-education/backend/services/common/auth"
	commonmw "github.com/caffeinepub/openframe-education/backend/services/common/middleware"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/controllers"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterPaymentRoutes(r *gin.Engine, pc *controllers.PaymentController, cc *controllers.CatalogController, rl *commonmw.RateLimiter) {
	adminOnly := middleware.RequireRole(auth.RoleAdmin)

	payments := r.Group("/payments")
	payments.Use(middleware.AuthMiddleware())
	{
		checkout := payments.Group("")
		if rl != nil {
			checkout.Use(commonmw.RateLimit(rl, func(c *gin.Context) string {
				if p := middleware.GetPrincipal(c); p != nil {
					return p.UserID
				}
				return c.ClientIP()
			}))
		}
		checkout.POST("/orders", pc.CreateOrder)
		checkout.POST("/confirm", pc.ConfirmPayment)

		payments.GET("/student/:student_id", pc.GetStudentPayments)
		payments.GET("/:payment_id", pc.GetPayment)

		payments.POST("", adminOnly, pc.CreatePayment)
		payments.GET("", adminOnly, pc.ListPayments)
		payments.DELETE("/:payment_id", adminOnly, pc.DeletePayment)
	}

	r.GET("/plans", cc.ListPlans)
	r.GET("/plans/:plan_id", cc.GetPlan)
	plans := r.Group("/plans", middleware.AuthMiddleware(), adminOnly)
	{
		plans.POST("", cc.CreatePlan)
		plans.PUT("/:plan_id", cc.UpdatePlan)
		plans.DELETE("/:plan_id", cc.DeletePlan)
	}

	students := r.Group("/students", middleware.AuthMiddleware())
	{
		students.GET("/:student_id", cc.GetStudent)
		students.POST("", adminOnly, cc.CreateStudent)
	}

	// Gateway webhooks authenticate by signature, not JWT.
	r.POST("/webhooks/:gateway", pc.Webhook)
}
