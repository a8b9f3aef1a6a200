package controller

import (
	"errors"

	"turing_arena/internal/model"
	"turing_arena/internal/service"
	"turing_arena/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	Allocator *service.SessionAllocator
	Answers   *service.AnswerService
	Lifecycle *service.SessionLifecycle
	Views     *service.QuizViewService
}

func NewQuizController(
	allocator *service.SessionAllocator,
	answers *service.AnswerService,
	lifecycle *service.SessionLifecycle,
	views *service.QuizViewService,
) *QuizController {
	return &QuizController{
		Allocator: allocator,
		Answers:   answers,
		Lifecycle: lifecycle,
		Views:     views,
	}
}

type StartSessionRequest struct {
	Difficulty   string `json:"difficulty" binding:"required"`
	ChoiceCount  int    `json:"choiceCount" binding:"required"`
	NumQuestions int    `json:"numQuestions" binding:"required"`
	Restart      bool   `json:"restart"`
	// ForceNum 缺货时按 availableCount 重试
	ForceNum int `json:"forceNum"`
}

type StockQuery struct {
	Difficulty  string `form:"difficulty" binding:"required"`
	ChoiceCount int    `form:"choiceCount" binding:"required"`
}

type Phase1SubmitRequest struct {
	SelectedLetter string `json:"selectedLetter" binding:"required"`
	TimeMs         *int   `json:"timeMs"`
}

type Phase2SubmitRequest struct {
	Assignment map[string]string `json:"assignment" binding:"required"`
	TimeMs     *int              `json:"timeMs"`
}

func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrInvalidRequest):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrInvalidInput):
		util.UnprocessableEntity(ctx, err.Error())
	case errors.Is(err, util.ErrSessionNotFound), errors.Is(err, util.ErrSessionQuestionNotFound):
		util.NotFound(ctx, err.Error())
	case errors.Is(err, util.ErrAlreadyAnswered),
		errors.Is(err, util.ErrPhaseOrder),
		errors.Is(err, util.ErrNotAnswered),
		errors.Is(err, util.ErrSessionNotActive),
		errors.Is(err, util.ErrAllocationBusy):
		util.Conflict(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// sessionParams 解析 :id 和 :index，失败时已写入响应
func sessionParams(ctx *gin.Context, withIndex bool) (uint, int, bool) {
	sessionID := util.MustParseUint(ctx.Param("id"))
	if sessionID == 0 {
		util.BadRequest(ctx, "invalid session id")
		return 0, 0, false
	}
	if !withIndex {
		return sessionID, 0, true
	}
	index, ok := util.ParseIndex(ctx.Param("index"))
	if !ok {
		util.BadRequest(ctx, "invalid question index")
		return 0, 0, false
	}
	return sessionID, index, true
}

// @Summary 开始或恢复答题会话
// @Description 已有进行中的会话时直接恢复；库存不足时返回 outOfStock 和 availableCount
// @Tags 答题
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body StartSessionRequest true "会话参数"
// @Success 200 {object} util.Response{data=service.Allocation}
// @Success 201 {object} util.Response{data=service.Allocation}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/quiz/sessions [post]
func (c *QuizController) StartSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req StartSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	alloc, err := c.Allocator.StartOrResume(ctx.Request.Context(), service.StartRequest{
		UserID:       user.UserID,
		Difficulty:   model.Difficulty(req.Difficulty),
		ChoiceCount:  req.ChoiceCount,
		NumQuestions: req.NumQuestions,
		Restart:      req.Restart,
		ForceNum:     req.ForceNum,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	if alloc.Session != nil && !alloc.Resumed {
		util.Created(ctx, alloc)
		return
	}
	util.Success(ctx, alloc)
}

// @Summary 放弃答题会话
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/quiz/sessions/{id} [delete]
func (c *QuizController) AbandonSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, _, ok := sessionParams(ctx, false)
	if !ok {
		return
	}

	released, err := c.Allocator.Abandon(ctx.Request.Context(), user.UserID, sessionID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"sessionId": sessionID, "released": released})
}

// @Summary 会话总览
// @Description 每道题的作答进度，以及下一步应进入的页面
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Failure 404 {object} util.Response
// @Router /api/quiz/sessions/{id} [get]
func (c *QuizController) GetSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, _, ok := sessionParams(ctx, false)
	if !ok {
		return
	}

	view, err := c.Views.GetSession(ctx.Request.Context(), user.UserID, sessionID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 题库库存
// @Description 当前用户在某难度/题型下可抽取、已作答、已预留的题目数
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param difficulty query string true "难度"
// @Param choiceCount query int true "选项数（2 或 4）"
// @Success 200 {object} util.Response{data=service.StockView}
// @Failure 400 {object} util.Response
// @Router /api/quiz/stock [get]
func (c *QuizController) GetStock(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var q StockQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	stock, err := c.Allocator.Stock(ctx.Request.Context(), user.UserID, model.Difficulty(q.Difficulty), q.ChoiceCount)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, stock)
}

// @Summary 获取题目
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param index path int true "题目序号（从0开始）"
// @Success 200 {object} util.Response{data=service.QuestionView}
// @Failure 404 {object} util.Response
// @Router /api/quiz/sessions/{id}/questions/{index} [get]
func (c *QuizController) GetQuestion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, index, ok := sessionParams(ctx, true)
	if !ok {
		return
	}

	view, err := c.Views.GetQuestion(ctx.Request.Context(), user.UserID, sessionID, index)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 提交第一阶段（找出人类回复）
// @Tags 答题
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param index path int true "题目序号"
// @Param request body Phase1SubmitRequest true "选择的字母"
// @Success 200 {object} util.Response{data=service.Phase1Result}
// @Failure 409 {object} util.Response
// @Failure 422 {object} util.Response
// @Router /api/quiz/sessions/{id}/questions/{index}/phase1 [post]
func (c *QuizController) SubmitPhase1(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, index, ok := sessionParams(ctx, true)
	if !ok {
		return
	}

	var req Phase1SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.Answers.SubmitPhase1(ctx.Request.Context(), service.Phase1Request{
		UserID:         user.UserID,
		SessionID:      sessionID,
		OrderIndex:     index,
		SelectedLetter: req.SelectedLetter,
		TimeMs:         req.TimeMs,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 第一阶段结果
// @Description 四选一题目在第二阶段作答前不返回人类选项字母
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param index path int true "题目序号"
// @Success 200 {object} util.Response{data=service.Phase1Feedback}
// @Router /api/quiz/sessions/{id}/questions/{index}/phase1 [get]
func (c *QuizController) GetPhase1Result(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, index, ok := sessionParams(ctx, true)
	if !ok {
		return
	}

	fb, err := c.Views.GetPhase1Feedback(ctx.Request.Context(), user.UserID, sessionID, index)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, fb)
}

// @Summary 第二阶段表单
// @Description 已作答时返回第二阶段结果
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param index path int true "题目序号"
// @Success 200 {object} util.Response{data=service.Phase2Form}
// @Router /api/quiz/sessions/{id}/questions/{index}/phase2 [get]
func (c *QuizController) GetPhase2(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, index, ok := sessionParams(ctx, true)
	if !ok {
		return
	}

	form, err := c.Views.GetPhase2Form(ctx.Request.Context(), user.UserID, sessionID, index)
	if err != nil {
		if errors.Is(err, util.ErrAlreadyAnswered) {
			fb, ferr := c.Views.GetPhase2Feedback(ctx.Request.Context(), user.UserID, sessionID, index)
			if ferr == nil {
				util.Success(ctx, fb)
				return
			}
		}
		respondError(ctx, err)
		return
	}
	util.Success(ctx, form)
}

// @Summary 提交第二阶段（判断模型系列）
// @Tags 答题
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param index path int true "题目序号"
// @Param request body Phase2SubmitRequest true "AI选项ID -> 模型系列slug"
// @Success 200 {object} util.Response{data=service.Phase2Result}
// @Failure 409 {object} util.Response
// @Failure 422 {object} util.Response
// @Router /api/quiz/sessions/{id}/questions/{index}/phase2 [post]
func (c *QuizController) SubmitPhase2(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, index, ok := sessionParams(ctx, true)
	if !ok {
		return
	}

	var req Phase2SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.Answers.SubmitPhase2(ctx.Request.Context(), service.Phase2Request{
		UserID:     user.UserID,
		SessionID:  sessionID,
		OrderIndex: index,
		Assignment: model.AssignmentMap(req.Assignment),
		TimeMs:     req.TimeMs,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 会话成绩
// @Description 全部作答后会话在此时转为 finished
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionResult}
// @Failure 404 {object} util.Response
// @Router /api/quiz/sessions/{id}/result [get]
func (c *QuizController) GetResult(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, _, ok := sessionParams(ctx, false)
	if !ok {
		return
	}

	res, err := c.Lifecycle.Result(ctx.Request.Context(), user.UserID, sessionID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}
