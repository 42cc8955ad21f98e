package peer

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	router "github.com/dkeye/Mesh/internal/adapters/http"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/hub"
	"github.com/dkeye/Mesh/internal/protocol"
)

func startHub(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:       "test",
		StaticPath: t.TempDir(),
		ReadLimit:  32768,
		Secret:     "test-secret",
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(router.SetupRouter(ctx, cfg, hub.New()))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
}

func fakeEngines() (Engine, error) { return &fakeEngine{}, nil }

func stableWith(c *Client, n int) func() bool {
	return func() bool {
		peers := c.Roster().Peers()
		if len(peers) != n {
			return false
		}
		for _, id := range peers {
			s, ok := c.Roster().get(id)
			if !ok || s.State() != StateStable {
				return false
			}
		}
		return true
	}
}

// Two clients join the same channel: the later one initiates, the earlier
// one answers, both sessions reach stable, and a part empties both rosters.
func TestTwoClientsNegotiateToStable(t *testing.T) {
	url := startHub(t)
	ctx := context.Background()

	x, err := Dial(ctx, url, fakeEngines, markerPolicy)
	if err != nil {
		t.Fatal(err)
	}
	defer x.Close()

	xRoster := make(chan int, 4)
	x.OnRoster(func(r protocol.Roster) { xRoster <- len(r.Members) })

	if err := x.Join("room1", "alice"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "x roster snapshot", func() bool {
		select {
		case n := <-xRoster:
			return n == 0
		default:
			return false
		}
	})

	y, err := Dial(ctx, url, fakeEngines, markerPolicy)
	if err != nil {
		t.Fatal(err)
	}
	defer y.Close()
	if err := y.Join("room1", "bob"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "x session stable", stableWith(x, 1))
	waitFor(t, "y session stable", stableWith(y, 1))

	// join-order rule: y joined later, so only y's session initiates
	for _, id := range y.Roster().Peers() {
		s, _ := y.Roster().get(id)
		if !s.Initiator() {
			t.Fatal("later joiner is not the initiator")
		}
		if s.DisplayName() != "alice" {
			t.Fatalf("peer name = %q", s.DisplayName())
		}
	}
	for _, id := range x.Roster().Peers() {
		s, _ := x.Roster().get(id)
		if s.Initiator() {
			t.Fatal("earlier joiner initiated")
		}
	}

	if err := x.Part("room1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "x roster empty", func() bool { return x.Roster().Count() == 0 })
	waitFor(t, "y roster empty", func() bool { return y.Roster().Count() == 0 })
}

func TestClientCloseTearsDownSessions(t *testing.T) {
	url := startHub(t)
	ctx := context.Background()

	x, err := Dial(ctx, url, fakeEngines, nil)
	if err != nil {
		t.Fatal(err)
	}
	y, err := Dial(ctx, url, fakeEngines, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer y.Close()

	if err := x.Join("room1", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := y.Join("room1", "bob"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "sessions established", stableWith(y, 1))

	// x drops its hub connection; the hub's disconnect path fans departure
	// out to y, and x's own roster is emptied locally
	x.Close()
	waitFor(t, "x roster empty", func() bool { return x.Roster().Count() == 0 })
	waitFor(t, "y roster empty", func() bool { return y.Roster().Count() == 0 })
}

func TestSpeakingStatusReachesCoMembers(t *testing.T) {
	url := startHub(t)
	ctx := context.Background()

	x, err := Dial(ctx, url, fakeEngines, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer x.Close()
	y, err := Dial(ctx, url, fakeEngines, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer y.Close()

	statuses := make(chan bool, 4)
	y.OnStatus(func(s protocol.Status) { statuses <- s.Value })

	if err := x.Join("room1", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := y.Join("room1", "bob"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "sessions established", stableWith(x, 1))

	if err := x.SetSpeaking(true); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "speaking status delivered", func() bool {
		select {
		case v := <-statuses:
			return v
		default:
			return false
		}
	})
}
