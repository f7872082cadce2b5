package swap

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/moneroswap/swapd/internal/contracts/swapevm"
)

func TestTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"pending to xmr_locked", StatusPending, StatusXMRLocked, false},
		{"pending to refunded", StatusPending, StatusRefunded, false},
		{"pending to completed", StatusPending, StatusCompleted, true},
		{"pending to ready", StatusPending, StatusReady, true},
		{"xmr_locked to ready", StatusXMRLocked, StatusReady, false},
		{"xmr_locked to completed", StatusXMRLocked, StatusCompleted, false},
		{"xmr_locked to refunded", StatusXMRLocked, StatusRefunded, false},
		{"xmr_locked to pending", StatusXMRLocked, StatusPending, true},
		{"ready to completed", StatusReady, StatusCompleted, false},
		{"ready to refunded", StatusReady, StatusRefunded, false},
		{"ready to xmr_locked", StatusReady, StatusXMRLocked, true},
		{"completed is terminal", StatusCompleted, StatusRefunded, true},
		{"refunded is terminal", StatusRefunded, StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Swap{Status: tt.from}
			err := s.TransitionTo(tt.to)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidState) {
					t.Fatalf("err = %v, want ErrInvalidState", err)
				}
				if s.Status != tt.from {
					t.Errorf("status changed to %s on rejected transition", s.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("TransitionTo: %v", err)
			}
			if s.Status != tt.to {
				t.Errorf("status = %s, want %s", s.Status, tt.to)
			}
		})
	}
}

func TestTransitionFromUnknownStatus(t *testing.T) {
	s := &Swap{Status: Status("bogus")}
	if err := s.TransitionTo(StatusReady); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestIsTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusPending:   false,
		StatusXMRLocked: false,
		StatusReady:     false,
		StatusCompleted: true,
		StatusRefunded:  true,
	} {
		s := &Swap{Status: status}
		if got := s.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestTimeoutAccessors(t *testing.T) {
	t1 := time.Unix(1_700_000_000, 0)
	t2 := time.Unix(1_700_003_600, 0)
	s := &Swap{Contract: &swapevm.ContractSwap{
		Timeout1: big.NewInt(t1.Unix()),
		Timeout2: big.NewInt(t2.Unix()),
	}}
	if !s.Timeout1().Equal(t1) {
		t.Errorf("Timeout1 = %s, want %s", s.Timeout1(), t1)
	}
	if !s.Timeout2().Equal(t2) {
		t.Errorf("Timeout2 = %s, want %s", s.Timeout2(), t2)
	}
}

func TestIDHex(t *testing.T) {
	s := &Swap{ID: [32]byte{0xab, 0xcd}}
	want := "0xabcd000000000000000000000000000000000000000000000000000000000000"
	if got := s.IDHex(); got != want {
		t.Errorf("IDHex = %q, want %q", got, want)
	}
}
