package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/mbeoliero/singleton/domain/entity"
	"github.com/mbeoliero/singleton/domain/service"
	"github.com/mbeoliero/singleton/internal/once"
)

type TrialHandler struct {
	raceService *service.RaceService
}

func NewTrialHandler(raceService *service.RaceService) *TrialHandler {
	return &TrialHandler{
		raceService: raceService,
	}
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RunTrialRequest 发起一次竞争试验
type RunTrialRequest struct {
	Policy  string `json:"policy" binding:"required"`
	Threads int    `json:"threads"`
	DelayMs int64  `json:"delay_ms"`
	Rounds  int    `json:"rounds"` // >1 时重复试验直到出现多实例
}

// RunAllRequest 对所有策略各发起一次试验
type RunAllRequest struct {
	Threads int   `json:"threads"`
	DelayMs int64 `json:"delay_ms"`
}

// RunTrialResponse 试验结果
type RunTrialResponse struct {
	Trial  *entity.Trial `json:"trial"`
	Rounds int           `json:"rounds"`
}

// PolicyInfo 策略描述
type PolicyInfo struct {
	Name    string `json:"name"`
	Correct bool   `json:"correct"`
	Eager   bool   `json:"eager"`
}

const defaultThreads = 100

// ListPolicies 列出所有初始化策略
func (h *TrialHandler) ListPolicies(ctx context.Context, c *app.RequestContext) {
	policies := once.Policies()
	infos := make([]PolicyInfo, 0, len(policies))
	for _, p := range policies {
		infos = append(infos, PolicyInfo{Name: p.String(), Correct: p.Correct(), Eager: p.Eager()})
	}

	c.JSON(consts.StatusOK, Response{
		Code:    consts.StatusOK,
		Message: "success",
		Data:    infos,
	})
}

// RunTrial 发起试验
func (h *TrialHandler) RunTrial(ctx context.Context, c *app.RequestContext) {
	var req RunTrialRequest
	if err := c.BindAndValidate(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	policy, err := once.ParsePolicy(req.Policy)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Threads == 0 {
		req.Threads = defaultThreads
	}
	if req.Rounds <= 0 {
		req.Rounds = 1
	}
	if req.Rounds > service.MaxRounds {
		badRequest(c, fmt.Sprintf("rounds must be in [1, %d]", service.MaxRounds))
		return
	}

	trialReq := service.TrialRequest{
		Policy:  policy,
		Threads: req.Threads,
		Delay:   time.Duration(req.DelayMs) * time.Millisecond,
	}
	trial, rounds, err := h.raceService.Reproduce(ctx, trialReq, req.Rounds)
	if err != nil {
		writeError(c, "failed to run trial: ", err)
		return
	}

	c.JSON(consts.StatusOK, Response{
		Code:    consts.StatusOK,
		Message: "success",
		Data:    RunTrialResponse{Trial: trial, Rounds: rounds},
	})
}

// RunAll 对每个策略各试验一次
func (h *TrialHandler) RunAll(ctx context.Context, c *app.RequestContext) {
	var req RunAllRequest
	if err := c.BindAndValidate(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Threads == 0 {
		req.Threads = defaultThreads
	}

	trials, err := h.raceService.RunAll(ctx, req.Threads, time.Duration(req.DelayMs)*time.Millisecond)
	if err != nil {
		writeError(c, "failed to run trials: ", err)
		return
	}

	c.JSON(consts.StatusOK, Response{
		Code:    consts.StatusOK,
		Message: "success",
		Data:    trials,
	})
}

// GetTrial 查询试验记录
func (h *TrialHandler) GetTrial(ctx context.Context, c *app.RequestContext) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid trial id")
		return
	}

	trial, err := h.raceService.GetTrial(ctx, id)
	if err != nil {
		writeError(c, "failed to get trial: ", err)
		return
	}

	c.JSON(consts.StatusOK, Response{
		Code:    consts.StatusOK,
		Message: "success",
		Data:    trial,
	})
}

// LatestTrial 查询某策略最近一次试验
func (h *TrialHandler) LatestTrial(ctx context.Context, c *app.RequestContext) {
	policy, err := once.ParsePolicy(c.Param("policy"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	trial, err := h.raceService.LatestTrial(ctx, policy)
	if err != nil {
		writeError(c, "failed to get latest trial: ", err)
		return
	}

	c.JSON(consts.StatusOK, Response{
		Code:    consts.StatusOK,
		Message: "success",
		Data:    trial,
	})
}

// HealthCheck 健康检查
func (h *TrialHandler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, Response{
		Code:    consts.StatusOK,
		Message: "ok",
	})
}

func badRequest(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusBadRequest, Response{
		Code:    consts.StatusBadRequest,
		Message: msg,
	})
}

// writeError 按错误类型映射状态码
func writeError(c *app.RequestContext, prefix string, err error) {
	code := consts.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrTrialNotFound):
		code = consts.StatusNotFound
	case errors.Is(err, service.ErrInvalidThreads),
		errors.Is(err, service.ErrInvalidRounds),
		errors.Is(err, once.ErrUnknownPolicy):
		code = consts.StatusBadRequest
	case errors.Is(err, service.ErrStoreUnavailable):
		code = consts.StatusServiceUnavailable
	case errors.Is(err, service.ErrTrialTimeout):
		code = consts.StatusGatewayTimeout
	}

	c.JSON(code, Response{
		Code:    code,
		Message: prefix + err.Error(),
	})
}
