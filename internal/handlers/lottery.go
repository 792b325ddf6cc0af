package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"choujiang/internal/lottery"
	"choujiang/internal/models"
)

type drawRequest struct {
	LotteryCode string `json:"lottery_code"`
	PrizeID     *int64 `json:"prize_id"`
}

// respondCoreError maps the redemption error taxonomy to HTTP.
func respondCoreError(c *gin.Context, err error) {
	var elig *lottery.EligibilityError
	var psum *lottery.ProbabilitySumError
	switch {
	case errors.As(err, &elig):
		c.JSON(http.StatusForbidden, gin.H{"error": "activity not eligible", "reason": elig.Reason})
	case errors.As(err, &psum):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "probability sum exceeds 1", "sum": psum.Sum})
	case errors.Is(err, lottery.ErrActivityNotFound),
		errors.Is(err, lottery.ErrCodeNotFound),
		errors.Is(err, lottery.ErrPrizeNotFound),
		errors.Is(err, lottery.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, lottery.ErrCodeAlreadyUsed),
		errors.Is(err, lottery.ErrCodeAlreadyRedeemed),
		errors.Is(err, lottery.ErrCodeAlreadyInvalid),
		errors.Is(err, lottery.ErrCodeExists),
		errors.Is(err, lottery.ErrOutOfStock),
		errors.Is(err, lottery.ErrOverRestore):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, lottery.ErrProbabilityOverflow):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, lottery.ErrInsufficientCodeSpace),
		errors.Is(err, lottery.ErrUnknownCodeFormat),
		errors.Is(err, models.ErrBadSettings):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func drawResponse(res *lottery.DrawResult) gin.H {
	out := gin.H{
		"is_winner": res.IsWinner,
		"lottery_record": gin.H{
			"id":         res.Record.ID,
			"created_at": res.Record.CreatedAt,
		},
		"lottery_code": gin.H{
			"code":             res.Code.Code,
			"participant_info": res.Code.ParticipantInfo,
		},
	}
	if res.Prize != nil {
		out["prize"] = gin.H{
			"id":          res.Prize.ID,
			"name":        res.Prize.Name,
			"description": res.Prize.Description,
		}
	}
	return out
}

// GetActivityInfo is the public view of one activity: summary, prizes
// without remaining stock, code count.
func (s *Server) GetActivityInfo(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	activity, err := s.Store.GetActivity(ctx, activityID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	prizes, err := s.Store.ListPrizes(ctx, activityID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	codeCount, err := s.Store.CountCodes(ctx, activityID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	publicPrizes := make([]gin.H, 0, len(prizes))
	for _, p := range prizes {
		publicPrizes = append(publicPrizes, gin.H{
			"id":             p.ID,
			"name":           p.Name,
			"description":    p.Description,
			"total_quantity": p.TotalQuantity,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"activity": gin.H{
			"id":          activity.ID,
			"name":        activity.Name,
			"description": activity.Description,
			"status":      activity.Status,
			"start_time":  activity.StartTime,
			"end_time":    activity.EndTime,
		},
		"prizes":              publicPrizes,
		"lottery_codes_count": codeCount,
	})
}

// Draw is the public online redemption: one code, at most one prize, ever.
func (s *Server) Draw(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.LotteryCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lottery_code required"})
		return
	}
	s.runDraw(c, lottery.DrawRequest{
		ActivityID: activityID,
		Code:       req.LotteryCode,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}

// OfflineDraw is the operator-assisted redemption. A prize_id in the body
// forces that prize instead of invoking the engine. Every offline draw is
// attributed to a concrete operator account; token-only admin identities
// cannot perform them.
func (s *Server) OfflineDraw(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	op := operatorID(c)
	if op == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "offline draws require an operator account"})
		return
	}
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.LotteryCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lottery_code required"})
		return
	}
	if !s.canManageActivity(c, activityID) {
		return
	}
	s.runDraw(c, lottery.DrawRequest{
		ActivityID:    activityID,
		Code:          req.LotteryCode,
		OperatorID:    op,
		ForcedPrizeID: req.PrizeID,
		IP:            c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
}

func (s *Server) runDraw(c *gin.Context, req lottery.DrawRequest) {
	ctx := c.Request.Context()
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	res, err := s.Coordinator.Redeem(ctx, tx, req)
	if err != nil {
		_ = tx.Rollback()
		respondCoreError(c, err)
		return
	}
	if err := tx.Commit(); err != nil {
		respondCoreError(c, err)
		return
	}
	s.bumpDraws(req.ActivityID)
	s.broadcastDraw(req.ActivityID, res)
	c.JSON(http.StatusOK, drawResponse(res))
}

// canManageActivity enforces ownership: non-super admins only touch
// activities they created.
func (s *Server) canManageActivity(c *gin.Context, activityID int64) bool {
	if role(c) == "super_admin" {
		return true
	}
	activity, err := s.Store.GetActivity(c.Request.Context(), activityID)
	if err != nil {
		respondCoreError(c, err)
		return false
	}
	uid := operatorID(c)
	if uid == nil || activity.CreatedBy == nil || *activity.CreatedBy != *uid {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your activity"})
		return false
	}
	return true
}
