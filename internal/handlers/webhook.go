package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"choujiang/internal/lottery"
)

type webhookCode struct {
	Code            string          `json:"code"`
	ParticipantInfo json.RawMessage `json:"participant_info"`
}

type webhookCodesRequest struct {
	Codes []webhookCode `json:"codes"`
}

// WebhookImportCodes lets an external system push codes into an activity,
// authenticated by the activity's webhook token. Codes must match the
// activity's declared format.
func (s *Server) WebhookImportCodes(c *gin.Context) {
	webhookID := c.Param("webhook_id")
	if webhookID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook_id required"})
		return
	}
	ctx := c.Request.Context()
	activity, err := s.Store.GetActivityByWebhookID(ctx, webhookID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	token := c.GetHeader("X-Webhook-Token")
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(activity.WebhookToken)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	var req webhookCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Codes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "codes required"})
		return
	}
	if len(req.Codes) > s.Cfg.MaxBatchCodes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many codes", "limit": s.Cfg.MaxBatchCodes})
		return
	}

	existing, err := s.Store.CountCodes(ctx, activity.ID)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	if existing+len(req.Codes) > activity.Settings.MaxLotteryCodes {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "activity code limit reached",
			"limit": activity.Settings.MaxLotteryCodes,
		})
		return
	}

	codes := make([]string, 0, len(req.Codes))
	infos := make([]json.RawMessage, 0, len(req.Codes))
	for _, wc := range req.Codes {
		ok, err := lottery.ValidateCodeFormat(wc.Code, activity.Settings.CodeFormat)
		if err != nil {
			respondCoreError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code does not match activity format", "code": wc.Code})
			return
		}
		codes = append(codes, wc.Code)
		infos = append(infos, wc.ParticipantInfo)
	}

	created, err := s.Store.InsertCodes(ctx, activity.ID, codes, infos)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(created)})
}
