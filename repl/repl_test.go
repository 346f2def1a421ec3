package repl_test

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/mickamy/kvstore/rdb"
	"github.com/mickamy/kvstore/repl"
	"github.com/mickamy/kvstore/store"
	"github.com/mickamy/kvstore/value"
)

func TestHandshakeTransfersSnapshot(t *testing.T) {
	t.Parallel()

	masterDBs := []*store.DB{store.NewDB()}
	masterDBs[0].Set("k", value.NewString([]byte("v")))
	masterDBs[0].Set("n", value.NewStringFromInt(7))
	master := repl.NewMaster(masterDBs, rdb.Options{})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer lis.Close()

	masterErrCh := make(chan error, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			masterErrCh <- err
			return
		}
		defer conn.Close()
		_, err = master.HandleSync(conn, 0)
		masterErrCh <- err
	}()

	host, port, err := net.SplitHostPort(lis.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	replica := repl.NewReplica(host, port, "")
	replicaDBs := []*store.DB{store.NewDB()}

	conn, err := replica.Handshake(context.Background(), func(r io.Reader, size int) error {
		return rdb.Load(io.LimitReader(r, int64(size)), replicaDBs)
	})
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	defer conn.Close()

	if err := <-masterErrCh; err != nil {
		t.Fatalf("HandleSync: %v", err)
	}
	if replica.State() != repl.Connected {
		t.Fatalf("State = %v, want Connected", replica.State())
	}

	v, ok := replicaDBs[0].Read("k", 0)
	if !ok || string(v.StringBytes()) != "v" {
		t.Fatalf("k = %v, %v", v, ok)
	}
	v, ok = replicaDBs[0].Read("n", 0)
	if !ok || string(v.StringBytes()) != "7" {
		t.Fatalf("n = %v, %v", v, ok)
	}
}

func TestFeedSkipsNonOnlineReplicas(t *testing.T) {
	t.Parallel()
	master := repl.NewMaster([]*store.DB{store.NewDB()}, rdb.Options{})
	// No replicas registered: Feed must be a no-op, not panic.
	master.Feed(0, [][]byte{[]byte("SET"), []byte("a"), []byte("b")})
	if master.ReplicaCount() != 0 {
		t.Fatalf("ReplicaCount = %d", master.ReplicaCount())
	}
}
