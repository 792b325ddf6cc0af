package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"choujiang/internal/lottery"
	"choujiang/internal/models"
)

type activityRequest struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Status      models.ActivityStatus    `json:"status"`
	StartTime   *time.Time               `json:"start_time"`
	EndTime     *time.Time               `json:"end_time"`
	Settings    *models.ActivitySettings `json:"settings"`
}

func (s *Server) CreateActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	activity := &models.Activity{
		Name:        req.Name,
		Description: req.Description,
		Status:      models.ActivityDraft,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Settings:    models.DefaultSettings(),
		CreatedBy:   operatorID(c),
	}
	if req.Settings != nil {
		activity.Settings = *req.Settings
	}
	if err := s.Store.CreateActivity(c.Request.Context(), activity); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": activity})
}

func (s *Server) ListActivities(c *gin.Context) {
	limit, offset := pageParams(c)
	activities, err := s.Store.ListActivities(c.Request.Context(), limit, offset)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

func (s *Server) GetActivityAdmin(c *gin.Context) {
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
	stats, err := s.Store.CodeStats(ctx, activityID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": activity, "prizes": prizes, "code_stats": stats})
}

func (s *Server) UpdateActivity(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.canManageActivity(c, activityID) {
		return
	}
	ctx := c.Request.Context()
	activity, err := s.Store.GetActivity(ctx, activityID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if req.Name != "" {
		activity.Name = req.Name
	}
	if req.Description != "" {
		activity.Description = req.Description
	}
	if req.Status != "" {
		switch req.Status {
		case models.ActivityDraft, models.ActivityActive, models.ActivityEnded:
			activity.Status = req.Status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
	}
	if req.StartTime != nil {
		activity.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		activity.EndTime = req.EndTime
	}
	if req.Settings != nil {
		activity.Settings = *req.Settings
	}
	if err := s.Store.UpdateActivity(ctx, activity); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": activity})
}

func (s *Server) DeleteActivity(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.canManageActivity(c, activityID) {
		return
	}
	if err := s.Store.DeleteActivity(c.Request.Context(), activityID); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type prizeRequest struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	TotalQuantity int     `json:"total_quantity"`
	Probability   float64 `json:"probability"`
	SortOrder     int     `json:"sort_order"`
}

// prizeUpdateRequest uses pointers so absent fields leave the stored value
// alone; a prize's explicit probability never resets by omission.
type prizeUpdateRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Probability *float64 `json:"probability"`
	SortOrder   *int     `json:"sort_order"`
}

func applyPrizeUpdate(p *models.Prize, req prizeUpdateRequest) {
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Probability != nil {
		p.Probability = *req.Probability
	}
	if req.SortOrder != nil {
		p.SortOrder = *req.SortOrder
	}
}

func (s *Server) CreatePrize(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.canManageActivity(c, activityID) {
		return
	}
	var req prizeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	if req.TotalQuantity < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "total_quantity must be >= 0"})
		return
	}
	prize := &models.Prize{
		ActivityID:        activityID,
		Name:              req.Name,
		Description:       req.Description,
		TotalQuantity:     req.TotalQuantity,
		RemainingQuantity: req.TotalQuantity,
		Probability:       req.Probability,
		SortOrder:         req.SortOrder,
	}
	if err := s.Store.CreatePrize(c.Request.Context(), prize); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prize": prize})
}

func (s *Server) ListPrizesAdmin(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	prizes, err := s.Store.ListPrizes(c.Request.Context(), activityID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prizes": prizes})
}

func (s *Server) UpdatePrize(c *gin.Context) {
	prizeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	prize, err := s.Store.GetPrize(ctx, prizeID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	if !s.canManageActivity(c, prize.ActivityID) {
		return
	}
	var req prizeUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	applyPrizeUpdate(prize, req)
	if err := s.Store.UpdatePrize(ctx, prize); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prize": prize})
}

func (s *Server) DeletePrize(c *gin.Context) {
	prizeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	prize, err := s.Store.GetPrize(c.Request.Context(), prizeID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	if !s.canManageActivity(c, prize.ActivityID) {
		return
	}
	if err := s.Store.DeletePrize(c.Request.Context(), prizeID); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type stockRequest struct {
	Delta int `json:"delta"`
}

// AdjustPrizeStock applies a manual stock edit through the same guarded
// decrement/increment as redemptions.
func (s *Server) AdjustPrizeStock(c *gin.Context) {
	prizeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	prize, err := s.Store.GetPrize(c.Request.Context(), prizeID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	if !s.canManageActivity(c, prize.ActivityID) {
		return
	}
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Delta == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delta required"})
		return
	}
	if err := s.Store.AdjustStock(c.Request.Context(), prizeID, req.Delta); err != nil {
		respondCoreError(c, err)
		return
	}
	prize, err = s.Store.GetPrize(c.Request.Context(), prizeID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prize": prize})
}

func (s *Server) ValidateProbabilities(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	valid, sum, err := s.Store.ValidateProbabilitySum(c.Request.Context(), activityID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid, "sum": sum})
}

type generateCodesRequest struct {
	Count  int    `json:"count"`
	Format string `json:"format"`
}

// GenerateCodes mints a batch of unique codes for the activity. The format
// defaults to the one declared in the activity settings.
func (s *Server) GenerateCodes(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.canManageActivity(c, activityID) {
		return
	}
	var req generateCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Count <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count required"})
		return
	}
	if req.Count > s.Cfg.MaxBatchCodes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count exceeds batch limit", "limit": s.Cfg.MaxBatchCodes})
		return
	}
	ctx := c.Request.Context()
	activity, err := s.Store.GetActivity(ctx, activityID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	format := req.Format
	if format == "" {
		format = activity.Settings.CodeFormat
	}
	existing, err := s.Store.ListCodeStrings(ctx, activityID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	if len(existing)+req.Count > activity.Settings.MaxLotteryCodes {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "activity code limit reached",
			"limit": activity.Settings.MaxLotteryCodes,
		})
		return
	}
	codes, err := lottery.GenerateBatch(format, req.Count, existing)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	created, err := s.Store.InsertCodes(ctx, activityID, codes, nil)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": created, "count": len(created)})
}

func (s *Server) ListCodes(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	status := models.CodeStatus(c.Query("status"))
	codes, err := s.Store.ListCodes(c.Request.Context(), activityID, status, limit, offset)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lottery_codes": codes})
}

func (s *Server) InvalidateCode(c *gin.Context) {
	codeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := s.Store.MarkCodeInvalid(c.Request.Context(), codeID); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": true})
}

func (s *Server) ResetCode(c *gin.Context) {
	codeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := s.Store.ResetCode(c.Request.Context(), codeID); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func (s *Server) ListRecords(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	limit, offset := pageParams(c)
	winnersOnly := c.Query("winners_only") == "1" || c.Query("winners_only") == "true"
	records, err := s.Store.ListRecords(c.Request.Context(), activityID, winnersOnly, limit, offset)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// DeleteRecord is the administrative undo: restores prize stock, flips the
// code back to unused and drops the record, all in one transaction.
func (s *Server) DeleteRecord(c *gin.Context) {
	recordID, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rec, err := s.Store.GetRecord(ctx, recordID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	if !s.canManageActivity(c, rec.ActivityID) {
		return
	}
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if err := s.Coordinator.Undo(ctx, tx, recordID); err != nil {
		_ = tx.Rollback()
		respondCoreError(c, err)
		return
	}
	if err := tx.Commit(); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) GetCodeStats(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	stats, err := s.Store.CodeStats(c.Request.Context(), activityID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseDateParam(c *gin.Context, name string) (*time.Time, bool) {
	val := c.Query(name)
	if val == "" {
		return nil, true
	}
	if t, err := time.Parse("2006-01-02", val); err == nil {
		return &t, true
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return &t, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
	return nil, false
}

func (s *Server) GetWinningStats(c *gin.Context) {
	activityID, ok := paramID(c, "id")
	if !ok {
		return
	}
	from, ok := parseDateParam(c, "from")
	if !ok {
		return
	}
	to, ok := parseDateParam(c, "to")
	if !ok {
		return
	}
	if to != nil {
		end := to.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	stats, err := s.Store.WinningStats(c.Request.Context(), activityID, from, to)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) SupportedCodeFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"formats": lottery.SupportedFormats()})
}

// GetMetrics exposes recent per-activity draw rates from redis.
func (s *Server) GetMetrics(c *gin.Context) {
	activityID, _ := strconv.ParseInt(c.Query("activity_id"), 10, 64)
	if activityID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "activity_id required"})
		return
	}
	if s.Redis == nil {
		c.JSON(http.StatusOK, gin.H{"qps": []int64{}})
		return
	}
	ctx := c.Request.Context()
	nowSec := time.Now().Unix()
	out := make([]gin.H, 0, 10)
	for i := int64(9); i >= 0; i-- {
		sec := nowSec - i
		val, err := s.Redis.Get(ctx, drawQPSKey(activityID, sec)).Int64()
		if err != nil {
			val = 0
		}
		out = append(out, gin.H{"sec": sec, "draws": val})
	}
	c.JSON(http.StatusOK, gin.H{"qps": out, "listeners": s.Hub.ListenerCount(activityID)})
}
