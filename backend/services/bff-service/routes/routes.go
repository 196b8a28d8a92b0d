package routes

import (
	"net/http"

	"github.com/caffeinepub/openframe-education/backend/services/bff-service/controllers"
	"github.com/caffeinepub/openframe-education/backend/services/bff-service/middleware"
	commonmw "github.com/caffeinepub/openframe-education/backend/services/common/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, bc *controllers.BFFController, cc *controllers.CheckoutController, rl *commonmw.RateLimiter) {
	// Public routes - no auth required
	public := r.Group("/bff")
	{
		public.GET("/checkout/script.js", cc.Script)
		public.GET("/checkout/status", cc.Status)

		public.GET("/plans", bc.Proxy(http.MethodGet, "/plans"))
		public.GET("/plans/:plan_id", bc.PlanByID)
	}

	// Protected routes - require authentication
	protected := r.Group("/bff")
	protected.Use(middleware.AuthMiddleware())
	{
		start := []gin.HandlerFunc{}
		if rl != nil {
			start = append(start, commonmw.RateLimit(rl, func(c *gin.Context) string {
				if p, _, err := middleware.GetPrincipal(c); err == nil {
					return p.UserID
				}
				return c.ClientIP()
			}))
		}
		protected.POST("/checkout/start", append(start, cc.Start)...)
		protected.POST("/checkout/:order_id/complete", cc.Complete)
		protected.POST("/checkout/:order_id/dismiss", cc.Dismiss)

		protected.GET("/students/:student_id/payments", bc.StudentPayments)
		protected.GET("/students/:student_id/overview", bc.StudentOverview)
	}
}
