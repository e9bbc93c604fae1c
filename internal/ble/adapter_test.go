package ble

import (
	"context"
	"sync"
	"testing"
	"time"

	"watchkit/internal/protocol"
)

func TestMatchesName(t *testing.T) {
	cases := []struct {
		name   string
		filter string
		want   bool
	}{
		{"Galaxy Watch6", "", true},
		{"Galaxy Watch6", "watch", true},
		{"Galaxy Watch6", "WATCH6", true},
		{"Galaxy Watch6", "pixel", false},
		{"", "", true},
		{"", "watch", false},
	}
	for _, tc := range cases {
		if got := MatchesName(tc.name, tc.filter); got != tc.want {
			t.Errorf("MatchesName(%q, %q) = %v, want %v", tc.name, tc.filter, got, tc.want)
		}
	}
}

func TestSyntheticScanRespectsFilter(t *testing.T) {
	a := NewSyntheticAdapter("Synthetic Watch")

	dev, err := a.Scan(context.Background(), InteractionServiceUUID, "synthetic")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if dev.ID != "synthetic" {
		t.Errorf("device id = %q, want synthetic", dev.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := a.Scan(ctx, InteractionServiceUUID, "pixel"); err != ErrNoDeviceFound {
		t.Errorf("scan with non-matching filter: got %v, want ErrNoDeviceFound", err)
	}
}

func TestSyntheticStreamsDecodableUpdates(t *testing.T) {
	a := NewSyntheticAdapter("")
	conn, err := a.Connect(context.Background(), "synthetic")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Disconnect()

	out, err := conn.DiscoverCharacteristic(ProtobufServiceUUID, ProtobufOutputUUID)
	if err != nil {
		t.Fatalf("discover output: %v", err)
	}

	var mu sync.Mutex
	reasm := &protocol.Reassembler{}
	var updates []*protocol.Update
	err = out.Subscribe(func(chunk []byte) {
		mu.Lock()
		defer mu.Unlock()
		frames, _ := reasm.Feed(chunk)
		for _, f := range frames {
			u, err := protocol.Decode(f)
			if err != nil {
				t.Errorf("decode streamed frame: %v", err)
				continue
			}
			updates = append(updates, u)
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	conn.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	if len(updates) < 2 {
		t.Fatalf("received %d updates, want at least 2", len(updates))
	}

	first := updates[0]
	if len(first.Signals) != 1 || first.Signals[0] != protocol.SignalConnectApproved {
		t.Errorf("first update signals = %v, want [connection approved]", first.Signals)
	}
	if !first.Info.HasInfo || !first.Info.HapticsAvailable {
		t.Errorf("first update info = %+v, want populated device info", first.Info)
	}

	sensorFrames := 0
	for _, u := range updates[1:] {
		sensorFrames += len(u.SensorFrames)
	}
	if sensorFrames == 0 {
		t.Error("no sensor frames received after the announcement")
	}
}

func TestSyntheticInputAcceptsWrites(t *testing.T) {
	conn, err := NewSyntheticAdapter("").Connect(context.Background(), "synthetic")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Disconnect()

	in, err := conn.DiscoverCharacteristic(ProtobufServiceUUID, ProtobufInputUUID)
	if err != nil {
		t.Fatalf("discover input: %v", err)
	}
	if err := in.Write(protocol.EncodeHaptics(0.8, 200)); err != nil {
		t.Errorf("write haptics: %v", err)
	}

	if _, err := conn.DiscoverCharacteristic(ProtobufServiceUUID, "0000"); err == nil {
		t.Error("expected error for unknown characteristic")
	}
}
