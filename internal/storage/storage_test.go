package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"optionwatch/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage_UpsertAndLoadVolumeState(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	st := models.VolumeState{
		ContractCode: "HK.TCH250919C670000",
		TradingDay:   "2025-09-01",
		LastVolume:   350,
		SeenAt:       now,
	}
	if err := s.UpsertVolumeState(st); err != nil {
		t.Fatalf("UpsertVolumeState: %v", err)
	}

	states, err := s.LoadVolumeStates("2025-09-01")
	if err != nil {
		t.Fatalf("LoadVolumeStates: %v", err)
	}
	got, ok := states["HK.TCH250919C670000"]
	if !ok {
		t.Fatal("state not found after upsert")
	}
	if got.LastVolume != 350 {
		t.Errorf("last volume: got %d, want 350", got.LastVolume)
	}

	// Replacing the same key overwrites in place.
	st.LastVolume = 500
	if err := s.UpsertVolumeState(st); err != nil {
		t.Fatalf("UpsertVolumeState replace: %v", err)
	}
	states, _ = s.LoadVolumeStates("2025-09-01")
	if len(states) != 1 || states["HK.TCH250919C670000"].LastVolume != 500 {
		t.Errorf("expected single overwritten row with volume 500, got %+v", states)
	}
}

func TestStorage_VolumeStateKeyedByDay(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	for i, day := range []string{"2025-09-01", "2025-09-02"} {
		st := models.VolumeState{
			ContractCode: "HK.TCH250919C670000",
			TradingDay:   day,
			LastVolume:   int64(100 * (i + 1)),
			SeenAt:       now,
		}
		if err := s.UpsertVolumeState(st); err != nil {
			t.Fatalf("UpsertVolumeState: %v", err)
		}
	}

	day1, _ := s.LoadVolumeStates("2025-09-01")
	day2, _ := s.LoadVolumeStates("2025-09-02")
	if day1["HK.TCH250919C670000"].LastVolume != 100 {
		t.Errorf("day1 volume: got %d, want 100", day1["HK.TCH250919C670000"].LastVolume)
	}
	if day2["HK.TCH250919C670000"].LastVolume != 200 {
		t.Errorf("day2 volume: got %d, want 200", day2["HK.TCH250919C670000"].LastVolume)
	}

	n, err := s.PurgeVolumeStatesBefore("2025-09-02")
	if err != nil {
		t.Fatalf("PurgeVolumeStatesBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}
	day1, _ = s.LoadVolumeStates("2025-09-01")
	if len(day1) != 0 {
		t.Errorf("expected day1 purged, got %d rows", len(day1))
	}
}

func TestStorage_PushedEvents(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	pushed, err := s.IsPushed("ev-1")
	if err != nil {
		t.Fatalf("IsPushed: %v", err)
	}
	if pushed {
		t.Error("unexpected pushed before mark")
	}

	if err := s.MarkPushed("ev-1", now); err != nil {
		t.Fatalf("MarkPushed: %v", err)
	}
	pushed, _ = s.IsPushed("ev-1")
	if !pushed {
		t.Error("expected pushed after mark")
	}

	// Re-marking must not fail.
	if err := s.MarkPushed("ev-1", now.Add(time.Minute)); err != nil {
		t.Fatalf("MarkPushed twice: %v", err)
	}
}

func TestStorage_PurgePushedBefore(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	_ = s.MarkPushed("old-1", now.AddDate(0, 0, -8))
	_ = s.MarkPushed("old-2", now.AddDate(0, 0, -10))
	_ = s.MarkPushed("fresh", now.Add(-time.Hour))

	n, err := s.PurgePushedBefore(now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("PurgePushedBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d rows, want 2", n)
	}

	pushed, _ := s.IsPushed("fresh")
	if !pushed {
		t.Error("fresh record should survive purge")
	}
	pushed, _ = s.IsPushed("old-1")
	if pushed {
		t.Error("old record should be purged")
	}
}

func testTrade(code string, sampledAt time.Time, score int) models.AnalyzedTrade {
	return models.AnalyzedTrade{
		Snapshot: models.Snapshot{
			ContractCode:   code,
			UnderlyingCode: "HK.TCH",
			UnderlyingName: "Tencent",
			LastPrice:      12.5,
			Volume:         5000,
			Turnover:       decimal.RequireFromString("2500000.50"),
			SampledAt:      sampledAt,
		},
		Contract: models.ContractIdentifier{
			UnderlyingCode: "HK.TCH",
			StrikePrice:    680,
			ExpiryDate:     time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC),
			Kind:           models.Call,
			RawCode:        code,
			Valid:          true,
		},
		SpotPrice: 600,
		Analytics: models.Analytics{
			ImpliedVolatility: 32.5,
			Delta:             0.35,
			Moneyness:         models.OTM,
		},
		DaysToExpiry:    18,
		IsBigTrade:      true,
		ImportanceScore: score,
		RiskLevel:       models.RiskMedium,
		VolumeDiff:      2000,
		PrevVolume:      3000,
	}
}

func TestStorage_InsertAndRecentTrades(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		tr := testTrade(fmt.Sprintf("HK.TCH250919C%d", 670000+i), now.Add(time.Duration(i)*time.Minute), 50+i)
		if err := s.InsertTrade(tr); err != nil {
			t.Fatalf("InsertTrade %d: %v", i, err)
		}
	}

	trades, err := s.RecentTrades(2)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	// Newest first.
	if !trades[0].Snapshot.SampledAt.After(trades[1].Snapshot.SampledAt) {
		t.Error("trades not ordered newest first")
	}

	got := trades[0]
	if got.Snapshot.ContractCode != "HK.TCH250919C670002" {
		t.Errorf("contract code: got %s", got.Snapshot.ContractCode)
	}
	if !got.Snapshot.Turnover.Equal(decimal.RequireFromString("2500000.50")) {
		t.Errorf("turnover round-trip: got %s", got.Snapshot.Turnover)
	}
	if got.Contract.Kind != models.Call || !got.Contract.Valid {
		t.Errorf("contract fields lost: %+v", got.Contract)
	}
	if got.RiskLevel != models.RiskMedium || !got.IsBigTrade {
		t.Errorf("classifier fields lost: risk=%s big=%v", got.RiskLevel, got.IsBigTrade)
	}
}
