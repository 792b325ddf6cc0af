package lottery

import (
	"context"
	"errors"
	"time"

	"choujiang/internal/models"
)

// Tx is the transactional storage view one redemption runs against. The
// MySQL implementation lives in internal/store; tests use an in-memory fake.
// Every method executes inside the same transaction scope, so either all
// mutations of one redemption commit or none do.
type Tx interface {
	GetActivity(ctx context.Context, id int64) (*models.Activity, error)
	GetCodeForUpdate(ctx context.Context, activityID int64, code string) (*models.LotteryCode, error)
	GetRecordByCodeID(ctx context.Context, codeID int64) (*models.LotteryRecord, error)
	ListActivePrizes(ctx context.Context, activityID int64) ([]models.Prize, error)
	GetPrize(ctx context.Context, prizeID int64) (*models.Prize, error)
	DeductPrize(ctx context.Context, prizeID int64, n int) error
	RestorePrize(ctx context.Context, prizeID int64, n int) error
	MarkCodeUsed(ctx context.Context, codeID int64, usedAt time.Time) error
	MarkCodeUnused(ctx context.Context, codeID int64) error
	InsertRecord(ctx context.Context, rec *models.LotteryRecord) error
	GetRecord(ctx context.Context, recordID int64) (*models.LotteryRecord, error)
	DeleteRecord(ctx context.Context, recordID int64) error
}

// DrawRequest is one redemption attempt. OperatorID set means an offline
// operator-assisted draw; ForcedPrizeID additionally bypasses the engine.
type DrawRequest struct {
	ActivityID    int64
	Code          string
	OperatorID    *int64
	ForcedPrizeID *int64
	IP            string
	UserAgent     string
}

type DrawResult struct {
	IsWinner bool
	Prize    *models.Prize
	Record   *models.LotteryRecord
	Code     *models.LotteryCode
}

// Coordinator runs the redemption state machine. It owns no storage; the
// caller opens the transaction, passes it in, and commits after a nil error.
type Coordinator struct {
	rng Rand
	now func() time.Time
}

func NewCoordinator(rng Rand) *Coordinator {
	if rng == nil {
		rng = NewLockedRand(NewRand())
	}
	return &Coordinator{rng: rng, now: time.Now}
}

// checkEligibility applies the activity window rules: active status, started,
// not yet ended. Unset bounds are open.
func (c *Coordinator) checkEligibility(a *models.Activity, now time.Time) error {
	if a.Status != models.ActivityActive {
		return &EligibilityError{Reason: ReasonNotActive}
	}
	if a.StartTime != nil && now.Before(*a.StartTime) {
		return &EligibilityError{Reason: ReasonNotStarted}
	}
	if a.EndTime != nil && now.After(*a.EndTime) {
		return &EligibilityError{Reason: ReasonEnded}
	}
	return nil
}

// Redeem executes one atomic redemption attempt against tx. On error the
// caller must roll back; nothing observable may survive a failed attempt.
func (c *Coordinator) Redeem(ctx context.Context, tx Tx, req DrawRequest) (*DrawResult, error) {
	now := c.now()

	activity, err := tx.GetActivity(ctx, req.ActivityID)
	if err != nil {
		return nil, err
	}
	if err := c.checkEligibility(activity, now); err != nil {
		return nil, err
	}

	code, err := tx.GetCodeForUpdate(ctx, req.ActivityID, req.Code)
	if err != nil {
		return nil, err
	}
	if code.Status != models.CodeUnused {
		return nil, ErrCodeAlreadyUsed
	}
	// Second guard beyond the status check. The record table also carries
	// a unique key on lottery_code_id, so two transactions racing on the
	// same code cannot both commit.
	existing, err := tx.GetRecordByCodeID(ctx, code.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrCodeAlreadyRedeemed
	}

	var selected *models.Prize
	if req.ForcedPrizeID != nil {
		selected, err = c.forcePrize(ctx, tx, req.ActivityID, *req.ForcedPrizeID)
		if err != nil {
			return nil, err
		}
	} else {
		selected, err = c.drawPrize(ctx, tx, activity)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.MarkCodeUsed(ctx, code.ID, now); err != nil {
		return nil, err
	}
	code.Status = models.CodeUsed
	code.UsedAt = &now

	rec := &models.LotteryRecord{
		ActivityID:    req.ActivityID,
		LotteryCodeID: code.ID,
		IsWinner:      selected != nil,
		OperatorID:    req.OperatorID,
		IPAddress:     req.IP,
		UserAgent:     req.UserAgent,
		CreatedAt:     now,
	}
	if selected != nil {
		rec.PrizeID = &selected.ID
	}
	if err := tx.InsertRecord(ctx, rec); err != nil {
		return nil, err
	}

	return &DrawResult{
		IsWinner: selected != nil,
		Prize:    selected,
		Record:   rec,
		Code:     code,
	}, nil
}

// drawPrize lets the engine pick over in-stock prizes, then commits the
// deduction. Losing a stock race between selection and deduction downgrades
// to a no-win instead of failing the redemption.
func (c *Coordinator) drawPrize(ctx context.Context, tx Tx, activity *models.Activity) (*models.Prize, error) {
	prizes, err := tx.ListActivePrizes(ctx, activity.ID)
	if err != nil {
		return nil, err
	}
	selected, err := SelectPrize(prizes, activity.Settings.Strategy, c.rng)
	if err != nil {
		return nil, err
	}
	if selected == nil {
		return nil, nil
	}
	if err := tx.DeductPrize(ctx, selected.ID, 1); err != nil {
		if errors.Is(err, ErrOutOfStock) {
			return nil, nil
		}
		return nil, err
	}
	selected.RemainingQuantity--
	return selected, nil
}

// forcePrize awards a caller-chosen prize on an offline draw. The stock check
// is not downgraded here: an operator forcing an empty prize gets the error.
func (c *Coordinator) forcePrize(ctx context.Context, tx Tx, activityID, prizeID int64) (*models.Prize, error) {
	prize, err := tx.GetPrize(ctx, prizeID)
	if err != nil {
		return nil, err
	}
	if prize.ActivityID != activityID {
		return nil, ErrPrizeNotFound
	}
	if !prize.HasStock() {
		return nil, ErrOutOfStock
	}
	if err := tx.DeductPrize(ctx, prize.ID, 1); err != nil {
		return nil, err
	}
	prize.RemainingQuantity--
	return prize, nil
}

// Undo reverses one committed redemption: restore stock if a prize was
// awarded, flip the code back to unused, drop the record. Runs in one
// transaction like Redeem.
func (c *Coordinator) Undo(ctx context.Context, tx Tx, recordID int64) error {
	rec, err := tx.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.PrizeID != nil {
		if err := tx.RestorePrize(ctx, *rec.PrizeID, 1); err != nil {
			return err
		}
	}
	if err := tx.MarkCodeUnused(ctx, rec.LotteryCodeID); err != nil {
		return err
	}
	return tx.DeleteRecord(ctx, recordID)
}
