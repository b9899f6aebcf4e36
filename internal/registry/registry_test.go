package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/danmuck/sfpctl/internal/testutil/testlog"
)

type fakeConn struct {
	closed atomic.Bool
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func TestConnectRequiresAnnouncement(t *testing.T) {
	testlog.Start(t)
	r := New(DefaultConfig())
	if _, err := r.Connect("10.0.0.9:4411", &fakeConn{}); !errors.Is(err, ErrUnrecognizedDevice) {
		t.Fatalf("expected ErrUnrecognizedDevice, got %v", err)
	}
	if len(r.Snapshot()) != 0 {
		t.Fatalf("rejected connect created an entry")
	}
}

func TestLifecycleAnnounceConnectDisconnect(t *testing.T) {
	testlog.Start(t)
	r := New(DefaultConfig())
	changed, err := r.Announce("10.0.0.2", DockingStation)
	if err != nil || !changed {
		t.Fatalf("announce: changed=%v err=%v", changed, err)
	}
	if changed, _ := r.Announce("10.0.0.2", DockingStation); changed {
		t.Fatalf("duplicate announce should be a no-op")
	}

	c1 := &fakeConn{}
	dev, err := r.Connect("10.0.0.2:5555", c1)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if dev.State != StateConnected || dev.Type != DockingStation || dev.Sessions != 1 {
		t.Fatalf("unexpected device %+v", dev)
	}
	if changed, _ := r.Announce("10.0.0.2", DockingStation); changed {
		t.Fatalf("announce while connected should be a no-op")
	}
	if _, err := r.Connect("10.0.0.2", &fakeConn{}); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	if got, ok := r.Conn("10.0.0.2"); !ok || got != c1 {
		t.Fatalf("conn lookup mismatch")
	}

	if _, ok := r.Disconnect("10.0.0.2", &fakeConn{}); ok {
		t.Fatalf("stale handle disconnected the device")
	}
	dev, ok := r.Disconnect("10.0.0.2", c1)
	if !ok || dev.State != StateDisconnected {
		t.Fatalf("disconnect: ok=%v dev=%+v", ok, dev)
	}
	if _, ok := r.Disconnect("10.0.0.2", c1); ok {
		t.Fatalf("second disconnect should report false")
	}
	if _, ok := r.Conn("10.0.0.2"); ok {
		t.Fatalf("disconnected device still has a live handle")
	}

	if _, err := r.Connect("10.0.0.2", &fakeConn{}); !errors.Is(err, ErrUnrecognizedDevice) {
		t.Fatalf("reconnect without re-announce should fail, got %v", err)
	}
	if changed, err := r.Announce("10.0.0.2", DockingStation); err != nil || !changed {
		t.Fatalf("re-announce: %v %v", changed, err)
	}
	dev, err = r.Connect("10.0.0.2", &fakeConn{})
	if err != nil || dev.Sessions != 2 {
		t.Fatalf("reconnect: %+v %v", dev, err)
	}
}

func TestTypeIsFixed(t *testing.T) {
	testlog.Start(t)
	r := New(DefaultConfig())
	if _, err := r.Announce("10.0.0.3", ProgrammerUnit); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if _, err := r.Announce("10.0.0.3", DockingStation); !errors.Is(err, ErrTypeConflict) {
		t.Fatalf("expected ErrTypeConflict, got %v", err)
	}
	dev, _ := r.Lookup("10.0.0.3")
	if dev.Type != ProgrammerUnit {
		t.Fatalf("type changed to %s", dev.Type)
	}
}

func TestPurgeOnDisconnect(t *testing.T) {
	testlog.Start(t)
	r := New(Config{RetainOnDisconnect: false})
	_, _ = r.Announce("10.0.0.4", DockingStation)
	c := &fakeConn{}
	if _, err := r.Connect("10.0.0.4", c); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, ok := r.Disconnect("10.0.0.4", c); !ok {
		t.Fatalf("disconnect failed")
	}
	if _, ok := r.Lookup("10.0.0.4"); ok {
		t.Fatalf("entry retained with RetainOnDisconnect=false")
	}
}

func TestExplicitPurge(t *testing.T) {
	testlog.Start(t)
	r := New(DefaultConfig())
	_, _ = r.Announce("10.0.0.5", DockingStation)
	c := &fakeConn{}
	_, _ = r.Connect("10.0.0.5", c)
	if r.Purge("10.0.0.5") {
		t.Fatalf("purged a connected device")
	}
	r.Disconnect("10.0.0.5", c)
	if !r.Purge("10.0.0.5") {
		t.Fatalf("purge of disconnected device failed")
	}
}

func TestAtMostOneLiveSessionUnderContention(t *testing.T) {
	testlog.Start(t)
	r := New(DefaultConfig())
	_, _ = r.Announce("10.0.0.6", DockingStation)

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Connect("10.0.0.6", &fakeConn{}); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	if winners.Load() != 1 {
		t.Fatalf("expected exactly one connect to win, got %d", winners.Load())
	}
	if len(r.Connected()) != 1 {
		t.Fatalf("connected table has %d entries", len(r.Connected()))
	}
}

func TestNormalizeIP(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"192.168.1.10:20100": "192.168.1.10",
		" 10.0.0.1 ":         "10.0.0.1",
		"[::1]:80":           "::1",
		"::ffff:10.0.0.7":    "10.0.0.7",
	}
	for in, want := range cases {
		got, err := NormalizeIP(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeIP(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := NormalizeIP("not-an-ip"); !errors.Is(err, ErrInvalidIP) {
		t.Fatalf("expected ErrInvalidIP, got %v", err)
	}
}

func TestSnapshotSorted(t *testing.T) {
	testlog.Start(t)
	r := New(DefaultConfig())
	for _, ip := range []string{"10.0.0.30", "10.0.0.10", "10.0.0.20"} {
		_, _ = r.Announce(ip, DockingStation)
	}
	snap := r.Snapshot()
	if len(snap) != 3 || snap[0].IP != "10.0.0.10" || snap[2].IP != "10.0.0.30" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
