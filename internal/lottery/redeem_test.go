package lottery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"choujiang/internal/models"
)

// memStore is an in-memory stand-in for the MySQL store. Begin takes the
// store lock for the whole transaction, which serializes transactions the
// way row locks serialize redemptions of one code.
type memStore struct {
	mu         sync.Mutex
	activities map[int64]models.Activity
	prizes     map[int64]models.Prize
	codes      map[int64]models.LotteryCode
	records    map[int64]models.LotteryRecord
	nextRecord int64
}

func newMemStore() *memStore {
	return &memStore{
		activities: map[int64]models.Activity{},
		prizes:     map[int64]models.Prize{},
		codes:      map[int64]models.LotteryCode{},
		records:    map[int64]models.LotteryRecord{},
		nextRecord: 1,
	}
}

type memTx struct {
	store *memStore
	// working copies, written back on commit
	activities map[int64]models.Activity
	prizes     map[int64]models.Prize
	codes      map[int64]models.LotteryCode
	records    map[int64]models.LotteryRecord
	nextRecord int64
	done       bool
}

func (s *memStore) Begin() *memTx {
	s.mu.Lock()
	tx := &memTx{
		store:      s,
		activities: cloneMap(s.activities),
		prizes:     cloneMap(s.prizes),
		codes:      cloneMap(s.codes),
		records:    cloneMap(s.records),
		nextRecord: s.nextRecord,
	}
	return tx
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t *memTx) Commit() {
	if t.done {
		return
	}
	t.store.activities = t.activities
	t.store.prizes = t.prizes
	t.store.codes = t.codes
	t.store.records = t.records
	t.store.nextRecord = t.nextRecord
	t.done = true
	t.store.mu.Unlock()
}

func (t *memTx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.store.mu.Unlock()
}

func (t *memTx) GetActivity(_ context.Context, id int64) (*models.Activity, error) {
	a, ok := t.activities[id]
	if !ok {
		return nil, ErrActivityNotFound
	}
	return &a, nil
}

func (t *memTx) GetCodeForUpdate(_ context.Context, activityID int64, code string) (*models.LotteryCode, error) {
	for _, c := range t.codes {
		if c.ActivityID == activityID && c.Code == code {
			cc := c
			return &cc, nil
		}
	}
	return nil, ErrCodeNotFound
}

func (t *memTx) GetRecordByCodeID(_ context.Context, codeID int64) (*models.LotteryRecord, error) {
	for _, r := range t.records {
		if r.LotteryCodeID == codeID {
			rr := r
			return &rr, nil
		}
	}
	return nil, nil
}

func (t *memTx) ListActivePrizes(_ context.Context, activityID int64) ([]models.Prize, error) {
	var out []models.Prize
	for _, p := range t.prizes {
		if p.ActivityID == activityID && p.RemainingQuantity > 0 {
			out = append(out, p)
		}
	}
	// stable order, like ORDER BY sort_order, id
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].SortOrder < out[i].SortOrder ||
				(out[j].SortOrder == out[i].SortOrder && out[j].ID < out[i].ID) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (t *memTx) GetPrize(_ context.Context, prizeID int64) (*models.Prize, error) {
	p, ok := t.prizes[prizeID]
	if !ok {
		return nil, ErrPrizeNotFound
	}
	return &p, nil
}

func (t *memTx) DeductPrize(_ context.Context, prizeID int64, n int) error {
	p, ok := t.prizes[prizeID]
	if !ok || p.RemainingQuantity < n {
		return ErrOutOfStock
	}
	p.RemainingQuantity -= n
	t.prizes[prizeID] = p
	return nil
}

func (t *memTx) RestorePrize(_ context.Context, prizeID int64, n int) error {
	p, ok := t.prizes[prizeID]
	if !ok {
		return ErrPrizeNotFound
	}
	if p.RemainingQuantity+n > p.TotalQuantity {
		return ErrOverRestore
	}
	p.RemainingQuantity += n
	t.prizes[prizeID] = p
	return nil
}

func (t *memTx) MarkCodeUsed(_ context.Context, codeID int64, usedAt time.Time) error {
	c, ok := t.codes[codeID]
	if !ok || c.Status != models.CodeUnused {
		return ErrCodeAlreadyUsed
	}
	c.Status = models.CodeUsed
	c.UsedAt = &usedAt
	t.codes[codeID] = c
	return nil
}

func (t *memTx) MarkCodeUnused(_ context.Context, codeID int64) error {
	c, ok := t.codes[codeID]
	if !ok {
		return ErrCodeNotFound
	}
	c.Status = models.CodeUnused
	c.UsedAt = nil
	t.codes[codeID] = c
	return nil
}

func (t *memTx) InsertRecord(_ context.Context, rec *models.LotteryRecord) error {
	for _, r := range t.records {
		if r.LotteryCodeID == rec.LotteryCodeID {
			return ErrCodeAlreadyRedeemed
		}
	}
	rec.ID = t.nextRecord
	t.nextRecord++
	t.records[rec.ID] = *rec
	return nil
}

func (t *memTx) GetRecord(_ context.Context, recordID int64) (*models.LotteryRecord, error) {
	r, ok := t.records[recordID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &r, nil
}

func (t *memTx) DeleteRecord(_ context.Context, recordID int64) error {
	if _, ok := t.records[recordID]; !ok {
		return ErrRecordNotFound
	}
	delete(t.records, recordID)
	return nil
}

// fixture builds one active activity with the given prizes and codes.
func fixture(strategy models.Strategy, prizes []models.Prize, codes ...string) *memStore {
	s := newMemStore()
	settings := models.DefaultSettings()
	settings.Strategy = strategy
	s.activities[1] = models.Activity{
		ID:       1,
		Name:     "campaign",
		Status:   models.ActivityActive,
		Settings: settings,
	}
	for _, p := range prizes {
		s.prizes[p.ID] = p
	}
	for i, code := range codes {
		id := int64(i + 1)
		s.codes[id] = models.LotteryCode{
			ID:         id,
			ActivityID: 1,
			Code:       code,
			Status:     models.CodeUnused,
		}
	}
	return s
}

func redeemOnce(t *testing.T, c *Coordinator, s *memStore, req DrawRequest) (*DrawResult, error) {
	t.Helper()
	tx := s.Begin()
	res, err := c.Redeem(context.Background(), tx, req)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	tx.Commit()
	return res, nil
}

func TestRedeemWin(t *testing.T) {
	s := fixture(models.StrategyGuaranteed, []models.Prize{prize(1, 1, 0, 0)}, "1111")
	c := NewCoordinator(NewXorShift32(1))

	res, err := redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: "1111"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsWinner || res.Prize == nil || res.Prize.ID != 1 {
		t.Fatalf("expected a win on prize 1, got %+v", res)
	}
	if res.Record == nil || !res.Record.IsWinner || res.Record.PrizeID == nil {
		t.Fatalf("record does not reflect the win: %+v", res.Record)
	}
	if got := s.prizes[1].RemainingQuantity; got != 0 {
		t.Errorf("remaining stock = %d, want 0", got)
	}
	if got := s.codes[1]; got.Status != models.CodeUsed || got.UsedAt == nil {
		t.Errorf("code not marked used: %+v", got)
	}
}

func TestRedeemNoWin(t *testing.T) {
	s := fixture(models.StrategyProbability, []models.Prize{prize(1, 5, 0.1, 0)}, "1111")
	c := NewCoordinator(&seqRand{vals: []float64{0.9}})

	res, err := redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: "1111"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsWinner || res.Prize != nil {
		t.Fatalf("expected a no-win, got %+v", res)
	}
	if res.Record == nil || res.Record.IsWinner || res.Record.PrizeID != nil {
		t.Fatalf("no-win record is wrong: %+v", res.Record)
	}
	if got := s.prizes[1].RemainingQuantity; got != 5 {
		t.Errorf("stock changed on a no-win: %d", got)
	}
	if got := s.codes[1].Status; got != models.CodeUsed {
		t.Errorf("code is consumed even on a no-win, got status %q", got)
	}
}

func TestRedeemUsedCode(t *testing.T) {
	s := fixture(models.StrategyGuaranteed, []models.Prize{prize(1, 5, 0, 0)}, "1111")
	c := NewCoordinator(NewXorShift32(1))

	if _, err := redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: "1111"}); err != nil {
		t.Fatalf("first redemption failed: %v", err)
	}
	_, err := redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: "1111"})
	if !errors.Is(err, ErrCodeAlreadyUsed) {
		t.Fatalf("expected ErrCodeAlreadyUsed, got %v", err)
	}
	if got := s.prizes[1].RemainingQuantity; got != 4 {
		t.Errorf("stock deducted more than once: %d", got)
	}
	if len(s.records) != 1 {
		t.Errorf("expected exactly one record, got %d", len(s.records))
	}
}

func TestRedeemEligibility(t *testing.T) {
	c := NewCoordinator(NewXorShift32(1))

	run := func(mutate func(a *models.Activity)) error {
		s := fixture(models.StrategyGuaranteed, []models.Prize{prize(1, 5, 0, 0)}, "1111")
		a := s.activities[1]
		mutate(&a)
		s.activities[1] = a
		_, err := redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: "1111"})
		return err
	}

	cases := []struct {
		name   string
		mutate func(a *models.Activity)
		reason string
	}{
		{"draft activity", func(a *models.Activity) { a.Status = models.ActivityDraft }, ReasonNotActive},
		{"ended activity", func(a *models.Activity) { a.Status = models.ActivityEnded }, ReasonNotActive},
		{"before start", func(a *models.Activity) {
			start := time.Now().Add(time.Hour)
			a.StartTime = &start
		}, ReasonNotStarted},
		{"after end", func(a *models.Activity) {
			end := time.Now().Add(-time.Hour)
			a.EndTime = &end
		}, ReasonEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := run(tc.mutate)
			var elig *EligibilityError
			if !errors.As(err, &elig) {
				t.Fatalf("expected EligibilityError, got %v", err)
			}
			if elig.Reason != tc.reason {
				t.Errorf("reason = %q, want %q", elig.Reason, tc.reason)
			}
		})
	}

	t.Run("open window is allowed", func(t *testing.T) {
		err := run(func(a *models.Activity) {
			start := time.Now().Add(-time.Hour)
			end := time.Now().Add(time.Hour)
			a.StartTime = &start
			a.EndTime = &end
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestRedeemUnknownCode(t *testing.T) {
	s := fixture(models.StrategyGuaranteed, []models.Prize{prize(1, 5, 0, 0)}, "1111")
	c := NewCoordinator(NewXorShift32(1))

	_, err := redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: "9999"})
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestRedeemProbabilityOverflow(t *testing.T) {
	s := fixture(models.StrategyProbability,
		[]models.Prize{prize(1, 5, 0.6, 0), prize(2, 5, 0.6, 1)}, "1111")
	c := NewCoordinator(NewXorShift32(1))

	_, err := redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: "1111"})
	if !errors.Is(err, ErrProbabilityOverflow) {
		t.Fatalf("expected ErrProbabilityOverflow, got %v", err)
	}
	// the rollback must leave the code untouched
	if got := s.codes[1].Status; got != models.CodeUnused {
		t.Errorf("code status = %q after rollback, want unused", got)
	}
}

// stockRaceTx simulates losing the stock race between selection and
// deduction.
type stockRaceTx struct {
	*memTx
}

func (t *stockRaceTx) DeductPrize(_ context.Context, _ int64, _ int) error {
	return ErrOutOfStock
}

func TestRedeemStockRaceDowngradesToNoWin(t *testing.T) {
	s := fixture(models.StrategyGuaranteed, []models.Prize{prize(1, 1, 0, 0)}, "1111")
	c := NewCoordinator(NewXorShift32(1))

	tx := s.Begin()
	res, err := c.Redeem(context.Background(), &stockRaceTx{memTx: tx}, DrawRequest{ActivityID: 1, Code: "1111"})
	if err != nil {
		tx.Rollback()
		t.Fatalf("unexpected error: %v", err)
	}
	tx.Commit()

	if res.IsWinner || res.Prize != nil {
		t.Fatalf("expected a no-win after losing the stock race, got %+v", res)
	}
	if res.Record.IsWinner || res.Record.PrizeID != nil {
		t.Fatalf("no-win record is wrong: %+v", res.Record)
	}
}

func TestRedeemForcedPrize(t *testing.T) {
	operator := int64(9)

	t.Run("awards the chosen prize", func(t *testing.T) {
		s := fixture(models.StrategyProbability,
			[]models.Prize{prize(1, 5, 0.1, 0), prize(2, 5, 0, 1)}, "1111")
		c := NewCoordinator(NewXorShift32(1))
		forced := int64(2)
		res, err := redeemOnce(t, c, s, DrawRequest{
			ActivityID: 1, Code: "1111", OperatorID: &operator, ForcedPrizeID: &forced,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.IsWinner || res.Prize == nil || res.Prize.ID != 2 {
			t.Fatalf("expected forced prize 2, got %+v", res)
		}
		if res.Record.OperatorID == nil || *res.Record.OperatorID != operator {
			t.Errorf("operator not recorded: %+v", res.Record)
		}
		if got := s.prizes[2].RemainingQuantity; got != 4 {
			t.Errorf("forced prize stock = %d, want 4", got)
		}
	})

	t.Run("empty stock is an error, not a no-win", func(t *testing.T) {
		s := fixture(models.StrategyProbability, []models.Prize{prize(1, 0, 0.1, 0)}, "1111")
		c := NewCoordinator(NewXorShift32(1))
		forced := int64(1)
		_, err := redeemOnce(t, c, s, DrawRequest{
			ActivityID: 1, Code: "1111", OperatorID: &operator, ForcedPrizeID: &forced,
		})
		if !errors.Is(err, ErrOutOfStock) {
			t.Fatalf("expected ErrOutOfStock, got %v", err)
		}
		if got := s.codes[1].Status; got != models.CodeUnused {
			t.Errorf("code consumed on a failed forced draw: %q", got)
		}
	})

	t.Run("prize of another activity is rejected", func(t *testing.T) {
		s := fixture(models.StrategyProbability, []models.Prize{prize(1, 5, 0.1, 0)}, "1111")
		other := prize(7, 5, 0, 0)
		other.ActivityID = 2
		s.prizes[7] = other
		c := NewCoordinator(NewXorShift32(1))
		forced := int64(7)
		_, err := redeemOnce(t, c, s, DrawRequest{
			ActivityID: 1, Code: "1111", OperatorID: &operator, ForcedPrizeID: &forced,
		})
		if !errors.Is(err, ErrPrizeNotFound) {
			t.Fatalf("expected ErrPrizeNotFound, got %v", err)
		}
	})
}

func TestUndoRedemption(t *testing.T) {
	s := fixture(models.StrategyGuaranteed, []models.Prize{prize(1, 1, 0, 0)}, "1111")
	c := NewCoordinator(NewXorShift32(1))

	res, err := redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: "1111"})
	if err != nil || !res.IsWinner {
		t.Fatalf("setup redemption failed: %+v err %v", res, err)
	}

	tx := s.Begin()
	if err := c.Undo(context.Background(), tx, res.Record.ID); err != nil {
		tx.Rollback()
		t.Fatalf("undo failed: %v", err)
	}
	tx.Commit()

	if got := s.prizes[1].RemainingQuantity; got != 1 {
		t.Errorf("stock not restored: %d", got)
	}
	if got := s.codes[1]; got.Status != models.CodeUnused || got.UsedAt != nil {
		t.Errorf("code not reset: %+v", got)
	}
	if len(s.records) != 0 {
		t.Errorf("record still present after undo")
	}

	// the code is redeemable again after the undo
	res, err = redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: "1111"})
	if err != nil || !res.IsWinner {
		t.Fatalf("re-redemption after undo failed: %+v err %v", res, err)
	}
}

func TestUndoMissingRecord(t *testing.T) {
	s := fixture(models.StrategyGuaranteed, []models.Prize{prize(1, 1, 0, 0)}, "1111")
	c := NewCoordinator(NewXorShift32(1))

	tx := s.Begin()
	err := c.Undo(context.Background(), tx, 42)
	tx.Rollback()
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestConcurrentRedeemSingleCode(t *testing.T) {
	s := fixture(models.StrategyGuaranteed, []models.Prize{prize(1, 10, 0, 0)}, "1111")
	c := NewCoordinator(nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: "1111"})
		}(i)
	}
	wg.Wait()

	okCount, usedCount := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, ErrCodeAlreadyUsed):
			usedCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if okCount != 1 {
		t.Errorf("exactly one redemption must succeed, got %d", okCount)
	}
	if usedCount != workers-1 {
		t.Errorf("expected %d rejections, got %d", workers-1, usedCount)
	}
	if got := s.prizes[1].RemainingQuantity; got != 9 {
		t.Errorf("stock deducted %d times", 10-got)
	}
	if len(s.records) != 1 {
		t.Errorf("expected one record, got %d", len(s.records))
	}
}

func TestConcurrentRedeemLastUnit(t *testing.T) {
	codes := make([]string, 6)
	for i := range codes {
		codes[i] = fmt.Sprintf("%04d", i)
	}
	s := fixture(models.StrategyGuaranteed, []models.Prize{prize(1, 1, 0, 0)}, codes...)
	c := NewCoordinator(nil)

	var wg sync.WaitGroup
	results := make([]*DrawResult, len(codes))
	for i, code := range codes {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			res, err := redeemOnce(t, c, s, DrawRequest{ActivityID: 1, Code: code})
			if err != nil {
				t.Errorf("redemption of %q failed: %v", code, err)
				return
			}
			results[i] = res
		}(i, code)
	}
	wg.Wait()

	winners := 0
	for _, res := range results {
		if res != nil && res.IsWinner {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("one unit of stock must produce exactly one winner, got %d", winners)
	}
	if got := s.prizes[1].RemainingQuantity; got != 0 {
		t.Errorf("remaining stock = %d, want 0", got)
	}
}
