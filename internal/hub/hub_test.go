package hub

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/overcooked/overcooked/internal/remote"
)

const testOwner = "user-1"

// testHub starts a hub on an ephemeral port and returns a connected client
func testHub(t *testing.T) (*Server, *remote.Client) {
	t.Helper()

	server := NewServer(&Config{Addr: "127.0.0.1:0"})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Stop() failed: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := remote.Dial(ctx, "ws://"+server.Addr()+"/sync", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return server, client
}

// TestHealthEndpoint tests the liveness check
func TestHealthEndpoint(t *testing.T) {
	server, _ := testHub(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// TestSetAndDeleteTask tests mutation round trips over the wire
func TestSetAndDeleteTask(t *testing.T) {
	server, client := testHub(t)
	ctx := context.Background()

	doc := remote.Document{"title": "over the wire", "isCompleted": false}
	if err := client.SetTask(ctx, testOwner, "key-1", doc); err != nil {
		t.Fatalf("SetTask() failed: %v", err)
	}

	stored := server.Replica().Task(testOwner, "key-1")
	if stored == nil {
		t.Fatal("task not stored on the hub")
	}
	if stored["title"] != "over the wire" {
		t.Errorf("stored title = %v", stored["title"])
	}

	if err := client.DeleteTask(ctx, testOwner, "key-1"); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}
	if server.Replica().TaskCount(testOwner) != 0 {
		t.Error("task not deleted on the hub")
	}
}

// TestGroupCountsAndBalance tests the counter and wallet operations
func TestGroupCountsAndBalance(t *testing.T) {
	server, client := testHub(t)
	ctx := context.Background()

	if err := client.AddGroupCounts(ctx, "group-1", 1, 1); err != nil {
		t.Fatalf("AddGroupCounts() failed: %v", err)
	}
	counts := server.Replica().Group("group-1")
	if counts.TotalTasks != 1 || counts.CompletedTasks != 1 {
		t.Errorf("counts = %+v, want 1/1", counts)
	}

	server.Replica().SetBalance(testOwner, 90)
	balance, err := client.AdjustBalance(ctx, testOwner, 10)
	if err != nil {
		t.Fatalf("AdjustBalance() failed: %v", err)
	}
	if balance != 100 {
		t.Errorf("balance = %d, want 100", balance)
	}
}

// TestSubscribe_ReceivesSnapshots tests the push path: an initial snapshot on
// subscribe, then one per change
func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	_, client := testHub(t)
	ctx := context.Background()

	snaps, cancel, err := client.Subscribe(ctx, testOwner)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer cancel()

	// Initial full snapshot, empty collection.
	select {
	case snap := <-snaps:
		if len(snap.Tasks) != 0 {
			t.Errorf("initial snapshot has %d tasks, want 0", len(snap.Tasks))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	if err := client.SetTask(ctx, testOwner, "key-1", remote.Document{"title": "pushed"}); err != nil {
		t.Fatalf("SetTask() failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if doc, ok := snap.Tasks["key-1"]; ok {
				if doc["title"] != "pushed" {
					t.Errorf("snapshot title = %v", doc["title"])
				}
				return
			}
		case <-deadline:
			t.Fatal("change never pushed to subscriber")
		}
	}
}

// TestSubscribe_OtherOwnerInvisible tests that snapshots are scoped per owner
func TestSubscribe_OtherOwnerInvisible(t *testing.T) {
	_, client := testHub(t)
	ctx := context.Background()

	snaps, cancel, err := client.Subscribe(ctx, testOwner)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer cancel()
	<-snaps // initial

	if err := client.SetTask(ctx, "user-2", "key-1", remote.Document{"title": "theirs"}); err != nil {
		t.Fatalf("SetTask() failed: %v", err)
	}

	select {
	case snap := <-snaps:
		if len(snap.Tasks) != 0 {
			t.Errorf("received another owner's task: %v", snap.Tasks)
		}
	case <-time.After(300 * time.Millisecond):
		// No push for an unrelated owner is also correct.
	}
}

// TestPing tests liveness over the wire
func TestPing(t *testing.T) {
	_, client := testHub(t)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() failed: %v", err)
	}
}

// TestClientOfflineAfterServerStop tests that a dead connection surfaces as
// ErrOffline rather than hanging
func TestClientOfflineAfterServerStop(t *testing.T) {
	server := NewServer(&Config{Addr: "127.0.0.1:0"})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	ctx, cancelDial := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDial()
	client, err := remote.Dial(ctx, "ws://"+server.Addr()+"/sync", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer client.Close()

	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		callCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		err := client.Ping(callCtx)
		cancel()
		if errors.Is(err, remote.ErrOffline) {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("Ping error = %v, want ErrOffline", err)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// TestRedialerSurvivesHubRestart tests that a redialing replica reconnects
// on its own once the hub is back, where a bare client stays offline
func TestRedialerSurvivesHubRestart(t *testing.T) {
	server := NewServer(&Config{Addr: "127.0.0.1:0"})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	addr := server.Addr()

	replica := remote.NewRedialer("ws://"+addr+"/sync", nil)
	t.Cleanup(func() { _ = replica.Close() })

	ctx := context.Background()
	if err := replica.Ping(ctx); err != nil {
		t.Fatalf("Ping() failed: %v", err)
	}
	if err := replica.SetTask(ctx, testOwner, "key-1", remote.Document{"title": "first"}); err != nil {
		t.Fatalf("SetTask() failed: %v", err)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	offCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	err := replica.Ping(offCtx)
	cancel()
	if !errors.Is(err, remote.ErrOffline) {
		t.Fatalf("Ping with hub down = %v, want ErrOffline", err)
	}

	restarted := NewServer(&Config{Addr: addr})
	if err := restarted.Start(); err != nil {
		t.Fatalf("restart Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = restarted.Stop() })

	deadline := time.After(2 * time.Second)
	for {
		callCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		err := replica.SetTask(callCtx, testOwner, "key-2", remote.Document{"title": "after restart"})
		cancel()
		if err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("SetTask after restart = %v", err)
		case <-time.After(20 * time.Millisecond):
		}
	}
	if restarted.Replica().Task(testOwner, "key-2") == nil {
		t.Error("task not stored on the restarted hub")
	}
}

/// TestEndToEndSync tests two clients on one hub: an edit from one device
// reaches the other through its subscription
func TestEndToEndSync(t *testing.T) {
	server, deviceA := testHub(t)

	ctx, cancelDial := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDial()
	deviceB, err := remote.Dial(ctx, "ws://"+server.Addr()+"/sync", nil)
	if err != nil {
		t.Fatalf("Dial() for second device failed: %v", err)
	}
	defer deviceB.Close()

	snaps, cancel, err := deviceB.Subscribe(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer cancel()
	<-snaps // initial

	if err := deviceA.SetTask(context.Background(), testOwner, "key-1",
		remote.Document{"title": "from device A"}); err != nil {
		t.Fatalf("SetTask() failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if doc, ok := snap.Tasks["key-1"]; ok {
				if doc["title"] != "from device A" {
					t.Errorf("title = %v", doc["title"])
				}
				return
			}
		case <-deadline:
			t.Fatal("device B never saw device A's edit")
		}
	}
}
