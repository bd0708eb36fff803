package bus_test

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/grbsystems/indi-grbsystems/bus"
	"github.com/grbsystems/indi-grbsystems/codec"
	"github.com/grbsystems/indi-grbsystems/simulator"
)

func TestRemote(t *testing.T) {
	sim := simulator.New(codec.LayoutV1, nil)
	srv := httptest.NewServer(&bus.Handler{Transport: sim, Password: "hunter2"})
	defer srv.Close()

	remote := &bus.Remote{URL: srv.URL, Password: "hunter2", Client: srv.Client()}
	conn, err := remote.Open()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Tx([]byte{codec.SetMax.Opcode(), 0x10, 0x27}, 0); err != nil {
		t.Fatal(err)
	}
	got, err := conn.Tx([]byte{codec.GetMax.Opcode()}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x10, 0x27}, got); diff != "" {
		t.Errorf("unexpected response: %s", diff)
	}
	conn.Close()
	if _, err := conn.Tx([]byte{codec.GetMax.Opcode()}, 2); !errors.Is(err, bus.ErrClosed) {
		t.Errorf("Tx after Close: got %v, want ErrClosed", err)
	}

	// every remote transaction is its own session on the server
	if got := sim.Overlaps(); got != 0 {
		t.Errorf("%d overlapping sessions", got)
	}
	opens := 0
	for _, e := range sim.Events() {
		if e.Kind == simulator.EventOpen {
			opens++
		}
	}
	if opens != 2 {
		t.Errorf("server opened %d sessions, want 2", opens)
	}
}

func TestRemoteErrors(t *testing.T) {
	sim := simulator.New(nil, nil)
	srv := httptest.NewServer(&bus.Handler{Transport: sim, Password: "hunter2"})
	defer srv.Close()

	wrong := &bus.Remote{URL: srv.URL, Password: "nope"}
	conn, _ := wrong.Open()
	if _, err := conn.Tx([]byte{codec.GetPosition.Opcode()}, 2); err == nil {
		t.Error("wrong password accepted")
	}

	sim.FailTx(1)
	remote := &bus.Remote{URL: srv.URL, Password: "hunter2"}
	conn, _ = remote.Open()
	_, err := conn.Tx([]byte{codec.GetPosition.Opcode()}, 2)
	if err == nil || err.Error() != "tx: "+simulator.ErrInjected.Error() {
		t.Errorf("got %v, want the server's bus error", err)
	}
}
