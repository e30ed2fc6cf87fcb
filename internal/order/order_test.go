package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"qaultra-core/pkg/qtypes"
)

var baseTime = time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)

func newTestOrder(vol, price float64) *Order {
	return New("ord-1", "acct-1", "RB2405", "SHFE", qtypes.TowardsBuy, qtypes.Limit,
		decimal.NewFromFloat(vol), decimal.NewFromFloat(price), baseTime)
}

func TestNewOrderInvariants(t *testing.T) {
	t.Parallel()
	o := newTestOrder(100, 10)

	if o.Status != qtypes.StatusNew {
		t.Fatalf("expected NEW, got %v", o.Status)
	}
	if !o.VolumeLeft.Equal(o.VolumeOriginal) {
		t.Fatalf("volume_left should equal volume_original at creation")
	}
	if !o.VolumeFilled.IsZero() {
		t.Fatalf("volume_filled should start at zero")
	}
}

func TestVWAPFillAverage(t *testing.T) {
	t.Parallel()
	o := newTestOrder(150, 10)
	o.Accept(baseTime)

	o.PartialFill(decimal.NewFromInt(100), decimal.NewFromFloat(10.0), baseTime.Add(time.Second))
	o.PartialFill(decimal.NewFromInt(50), decimal.NewFromFloat(10.6), baseTime.Add(2*time.Second))

	want := decimal.NewFromInt(100).Mul(decimal.NewFromFloat(10.0)).
		Add(decimal.NewFromInt(50).Mul(decimal.NewFromFloat(10.6))).
		Div(decimal.NewFromInt(150))

	if !o.AverageFillPrice.Equal(want) {
		t.Fatalf("average_fill_price = %s, want %s", o.AverageFillPrice, want)
	}
	if o.Status != qtypes.StatusFilled {
		t.Fatalf("expected FILLED after full volume consumed, got %v", o.Status)
	}
	if !o.VolumeLeft.IsZero() {
		t.Fatalf("expected volume_left zero, got %s", o.VolumeLeft)
	}
}

func TestPartialFillStaysPartial(t *testing.T) {
	t.Parallel()
	o := newTestOrder(100, 10)
	o.Accept(baseTime)
	o.PartialFill(decimal.NewFromInt(40), decimal.NewFromFloat(10), baseTime)

	if o.Status != qtypes.StatusPartialFilled {
		t.Fatalf("expected PARTIAL_FILLED, got %v", o.Status)
	}
	if !o.VolumeLeft.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("volume_left = %s, want 60", o.VolumeLeft)
	}
}

func TestStatusMonotonicity(t *testing.T) {
	t.Parallel()
	o := newTestOrder(100, 10)
	o.Accept(baseTime)
	o.Cancel(baseTime)

	if o.Status != qtypes.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %v", o.Status)
	}
	if ok := o.Accept(baseTime); ok {
		t.Fatal("terminal order should reject further transitions")
	}
	if ok := o.Cancel(baseTime); ok {
		t.Fatal("cancel on an already-terminal order should be a no-op returning false")
	}
	if o.Status != qtypes.StatusCancelled {
		t.Fatal("status must not change after terminal")
	}
}

func TestCancelInvalidFromTerminal(t *testing.T) {
	t.Parallel()
	o := newTestOrder(100, 10)
	o.Accept(baseTime)
	o.PartialFill(decimal.NewFromInt(100), decimal.NewFromFloat(10), baseTime)

	if o.Status != qtypes.StatusFilled {
		t.Fatalf("expected FILLED, got %v", o.Status)
	}
	if ok := o.Cancel(baseTime); ok {
		t.Fatal("cancel on a filled order must no-op")
	}
}

func TestReject(t *testing.T) {
	t.Parallel()
	o := newTestOrder(100, 10)
	if ok := o.Reject("insufficient funds", baseTime); !ok {
		t.Fatal("expected reject to succeed from NEW")
	}
	if o.Status != qtypes.StatusRejected {
		t.Fatalf("expected REJECTED, got %v", o.Status)
	}
	if o.ErrorMessage == "" {
		t.Fatal("expected error_message to be set")
	}
}
