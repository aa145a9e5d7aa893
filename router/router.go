package router

import (
	"net/http"

	"workspace-agent-backend/controller"
	"workspace-agent-backend/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Register(gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware())
	{
		api.POST("/conversations", controller.CreateConversation)
		api.GET("/conversations", controller.GetConversations)
		api.DELETE("/conversations/:id", controller.DeleteConversation)
		api.GET("/conversations/:id/messages", controller.GetConversationMessages)
		api.PUT("/conversations/:id/title", controller.UpdateConversationTitle)

		api.POST("/chat", controller.AgentChat)
		api.POST("/chat/confirm", controller.ConfirmToolCall)
	}

	return r
}
