package history

import (
	"context"
	"testing"
	"time"
)

func TestSyntheticDeterministic(t *testing.T) {
	ctx := context.Background()

	a, err := NewSynthetic().Series(ctx, "INFY", 100)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	b, err := NewSynthetic().Series(ctx, "INFY", 100)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}

	if len(a) != 100 {
		t.Fatalf("series length = %d, want 100", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("series diverge at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestSyntheticDistinctSymbols(t *testing.T) {
	s := NewSynthetic()
	ctx := context.Background()

	a, _ := s.Series(ctx, "INFY", 50)
	b, _ := s.Series(ctx, "TCS", 50)

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different symbols produced identical series")
	}
}

func TestSyntheticLongerRequestKeepsPrefix(t *testing.T) {
	s := NewSynthetic()
	ctx := context.Background()

	short, _ := s.Series(ctx, "SBIN", 30)
	long, _ := s.Series(ctx, "SBIN", 120)

	for i := range short {
		if short[i] != long[i] {
			t.Fatalf("prefix changed at %d: %v != %v", i, short[i], long[i])
		}
	}
}

func TestSyntheticRejectsBadLength(t *testing.T) {
	if _, err := NewSynthetic().Series(context.Background(), "INFY", 0); err == nil {
		t.Error("length 0 accepted")
	}
}

func TestParquetRoundTrip(t *testing.T) {
	p := NewParquetProvider(t.TempDir())
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]BarRecord, 10)
	for i := range records {
		records[i] = BarRecord{
			Symbol:    "INFY",
			Timestamp: base.AddDate(0, 0, i).UnixMilli(),
			Close:     100 + float64(i),
			Volume:    1000,
		}
	}
	if err := p.WriteBars(records); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := p.Series(ctx, "INFY", 4)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	want := []float64{106, 107, 108, 109}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("close[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParquetMergeDeduplicates(t *testing.T) {
	p := NewParquetProvider(t.TempDir())

	ts := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli()
	first := []BarRecord{{Symbol: "TCS", Timestamp: ts, Close: 50}}
	second := []BarRecord{{Symbol: "TCS", Timestamp: ts, Close: 55}}

	if err := p.WriteBars(first); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	if err := p.WriteBars(second); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := p.Series(context.Background(), "TCS", 1)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if got[0] != 55 {
		t.Errorf("rewritten bar close = %v, want 55", got[0])
	}
}

func TestParquetInsufficientData(t *testing.T) {
	p := NewParquetProvider(t.TempDir())
	if _, err := p.Series(context.Background(), "GHOST", 10); err == nil {
		t.Error("expected error for symbol with no data")
	}
}
