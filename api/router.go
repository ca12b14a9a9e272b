package api

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/mbeoliero/singleton/domain/service"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(h *server.Hertz, raceService *service.RaceService) {
	handler := NewTrialHandler(raceService)

	// 健康检查
	h.GET("/health", handler.HealthCheck)

	// API v1
	v1 := h.Group("/api/v1")
	{
		// 策略
		policies := v1.Group("/policies")
		{
			policies.GET("", handler.ListPolicies)               // 列出策略
			policies.GET("/:policy/latest", handler.LatestTrial) // 最近一次试验
		}

		// 试验
		trials := v1.Group("/trials")
		{
			trials.POST("", handler.RunTrial)    // 发起试验
			trials.POST("/all", handler.RunAll)  // 全部策略各试验一次
			trials.GET("/:id", handler.GetTrial) // 查询试验
		}
	}
}
