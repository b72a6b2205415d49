package subscription

import (
	"net"
	"testing"
	"time"

	"bankrpc/protocol"
)

type decodedUpdate struct {
	updateType uint16
	accountNo  int32
	currency   uint16
	newBalance float64
	info       string
}

func decodeForTest(raw []byte) (decodedUpdate, error) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		return decodedUpdate{}, err
	}
	r := protocol.NewReader(msg.Body)
	var d decodedUpdate
	if d.updateType, err = r.U16(); err != nil {
		return d, err
	}
	if d.accountNo, err = r.I32(); err != nil {
		return d, err
	}
	if d.currency, err = r.U16(); err != nil {
		return d, err
	}
	if d.newBalance, err = r.Double(); err != nil {
		return d, err
	}
	if d.info, err = r.String(); err != nil {
		return d, err
	}
	return d, nil
}

func addr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
}

func TestAddAndBroadcast(t *testing.T) {
	r := NewInMemory()
	now := time.Now()
	r.Add(addr(9001), 10*time.Second, now)
	r.Add(addr(9002), 10*time.Second, now)

	var got []int
	r.Broadcast([]byte("hi"), func(peer *net.UDPAddr, body []byte) error {
		got = append(got, peer.Port)
		return nil
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(got))
	}
	if got[0] != 9001 || got[1] != 9002 {
		t.Errorf("fan-out order = %v, want [9001 9002] (insertion order)", got)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	r := NewInMemory()
	now := time.Now()
	r.Add(addr(9001), 1*time.Second, now)
	r.Add(addr(9002), 100*time.Second, now)

	r.Sweep(now.Add(2 * time.Second))
	if r.Len() != 1 {
		t.Fatalf("expected 1 survivor, got %d", r.Len())
	}

	var got []int
	r.Broadcast(nil, func(peer *net.UDPAddr, body []byte) error {
		got = append(got, peer.Port)
		return nil
	})
	if len(got) != 1 || got[0] != 9002 {
		t.Errorf("survivors = %v, want [9002]", got)
	}
}

func TestBroadcastFailureDoesNotAbortOthersOrMutateRegistry(t *testing.T) {
	r := NewInMemory()
	now := time.Now()
	r.Add(addr(9001), 10*time.Second, now)
	r.Add(addr(9002), 10*time.Second, now)

	var got []int
	r.Broadcast([]byte("x"), func(peer *net.UDPAddr, body []byte) error {
		got = append(got, peer.Port)
		if peer.Port == 9001 {
			return &net.AddrError{Err: "simulated failure", Addr: peer.String()}
		}
		return nil
	})

	if len(got) != 2 {
		t.Fatalf("expected both recipients attempted, got %d", len(got))
	}
	if r.Len() != 2 {
		t.Errorf("registry mutated after send failure: Len() = %d, want 2", r.Len())
	}
}

func TestBuildUpdateRoundTrips(t *testing.T) {
	body := BuildUpdate(1, 10001, 0, 125.5, "OPEN by alice")

	decoded, err := decodeForTest(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.updateType != 1 || decoded.accountNo != 10001 || decoded.currency != 0 {
		t.Errorf("unexpected decode: %+v", decoded)
	}
	if decoded.newBalance != 125.5 {
		t.Errorf("newBalance = %v, want 125.5", decoded.newBalance)
	}
	if decoded.info != "OPEN by alice" {
		t.Errorf("info = %q, want %q", decoded.info, "OPEN by alice")
	}
}
