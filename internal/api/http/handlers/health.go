// Package handlers HTTP 处理器
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weisyn/sandbox/internal/core/sandbox"
)

// LedgerStatus 健康检查所需的账本状态
type LedgerStatus interface {
	LedgerInfo() sandbox.LedgerInfo
}

// HealthHandler 健康检查端点处理器
//
// - /health: 完整健康报告
// - /health/live: 存活检查
// - /health/ready: 就绪检查，只读模式下返回 503
type HealthHandler struct {
	startTime time.Time
	ledger    LedgerStatus
	engines   []string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(ledger LedgerStatus, engines []string) *HealthHandler {
	return &HealthHandler{startTime: time.Now(), ledger: ledger, engines: engines}
}

// RegisterRoutes 注册健康检查路由
func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	health := r.Group("/health")
	health.GET("", h.GetHealth)
	health.GET("/live", h.GetLiveness)
	health.GET("/ready", h.GetReadiness)
}

// GetHealth 完整健康报告
func (h *HealthHandler) GetHealth(c *gin.Context) {
	info := h.ledger.LedgerInfo()
	status := "ok"
	if info.ReadOnly {
		status = "read_only"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"uptime":  time.Since(h.startTime).Round(time.Second).String(),
		"ledger":  info,
		"engines": h.engines,
	})
}

// GetLiveness 存活检查
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// GetReadiness 就绪检查
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	if h.ledger.LedgerInfo().ReadOnly {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "read_only"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
