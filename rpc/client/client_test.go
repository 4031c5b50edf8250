package client

import (
	"context"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/db/engines/memory"
	dbtesting "github.com/ValentinKolb/hkv/lib/db/testing"
	"github.com/ValentinKolb/hkv/lib/store"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/ValentinKolb/hkv/rpc/serializer"
	"github.com/ValentinKolb/hkv/rpc/server"
	"github.com/ValentinKolb/hkv/rpc/transport"
	"github.com/ValentinKolb/hkv/rpc/transport/http"
	"github.com/ValentinKolb/hkv/rpc/transport/tcp"
	"github.com/ValentinKolb/hkv/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Test setup
// --------------------------------------------------------------------------

// testServer is a running RPC server and the means to reach it
type testServer struct {
	config       common.ClientConfig
	newTransport func() transport.IRPCClientTransport
	serializer   serializer.IRPCSerializer
}

func (s *testServer) driver() *RPCDriver {
	return NewRPCDriver(s.config, s.newTransport(), s.serializer)
}

func (s *testServer) connectedDriver(t *testing.T) *RPCDriver {
	d := s.driver()
	require.NoError(t, d.Connect(context.Background()))
	t.Cleanup(func() { _ = d.Disconnect(context.Background()) })
	return d
}

func clientConfig(endpoint string) common.ClientConfig {
	return common.ClientConfig{
		Endpoints:              []string{endpoint},
		TimeoutSecond:          5,
		RetryCount:             2,
		ConnectionsPerEndpoint: 2,
	}
}

// startHTTP mounts the server handler in an httptest server
func startHTTP(t *testing.T, backend db.Driver, ser serializer.IRPCSerializer) *testServer {
	require.NoError(t, backend.Connect(context.Background()))
	t.Cleanup(func() { _ = backend.Disconnect(context.Background()) })

	srv := server.NewRPCServer(common.ServerConfig{Transport: "http"}, backend, nil, ser)
	ts := httptest.NewServer(http.NewHandler(srv.Handle, nil, false))
	t.Cleanup(ts.Close)

	config := clientConfig(ts.Listener.Addr().String())
	config.Transport = "http"
	return &testServer{config: config, newTransport: http.NewHttpClientTransport, serializer: ser}
}

// startSocket serves backend on a socket transport until the test ends
func startSocket(t *testing.T, network string, backend db.Driver, ser serializer.IRPCSerializer) *testServer {
	var endpoint string
	var serverTransport transport.IRPCServerTransport
	var newTransport func() transport.IRPCClientTransport

	switch network {
	case "tcp":
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		endpoint = l.Addr().String()
		require.NoError(t, l.Close())
		serverTransport = tcp.NewTCPServerTransport(4)
		newTransport = tcp.NewTCPClientTransport
	case "unix":
		endpoint = filepath.Join(t.TempDir(), "hkv.sock")
		serverTransport = unix.NewUnixServerTransport(4)
		newTransport = unix.NewUnixClientTransport
	default:
		t.Fatalf("unknown network %s", network)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := server.NewRPCServer(common.ServerConfig{
		Transport:     network,
		Endpoint:      endpoint,
		TimeoutSecond: 5,
	}, backend, serverTransport, ser)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})

	// wait until the server accepts connections
	require.Eventually(t, func() bool {
		conn, err := net.Dial(network, endpoint)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	config := clientConfig(endpoint)
	config.Transport = network
	return &testServer{config: config, newTransport: newTransport, serializer: ser}
}

func startServer(t *testing.T, network string, backend db.Driver, ser serializer.IRPCSerializer) *testServer {
	if network == "http" {
		return startHTTP(t, backend, ser)
	}
	return startSocket(t, network, backend, ser)
}

var (
	networks    = []string{"http", "tcp", "unix"}
	serializers = map[string]func() serializer.IRPCSerializer{
		"JSON": serializer.NewJSONSerializer,
		"GOB":  serializer.NewGOBSerializer,
	}
)

// noTTL hides the TTL support of the wrapped driver
type noTTL struct {
	*memory.DB
}

func (d noTTL) SupportsFeature(f db.Feature) bool {
	return f&db.FeatureTTL == 0 && d.DB.SupportsFeature(f)
}

func (d noTTL) GetInfo() db.DatabaseInfo {
	info := d.DB.GetInfo()
	info.SupportedFeatures = []db.Feature{db.FeatureInsertionOrder}
	return info
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRPCDriver(t *testing.T) {
	for _, network := range networks {
		for serName, newSer := range serializers {
			ts := startServer(t, network, memory.New(nil), newSer())
			dbtesting.RunDriverTests(t, "Remote-"+network+"-"+serName, func() db.Driver {
				return ts.driver()
			})
		}
	}
}

func TestRPCDriverInfo(t *testing.T) {
	ts := startHTTP(t, memory.New(nil), serializer.NewJSONSerializer())
	d := ts.driver()

	assert.True(t, d.SupportsFeature(db.FeatureRemote))
	assert.False(t, d.SupportsFeature(db.FeatureTTL), "backend features are unknown before connect")

	require.NoError(t, d.Connect(context.Background()))
	defer d.Disconnect(context.Background())

	assert.True(t, d.SupportsFeature(db.FeatureTTL|db.FeatureRemote))
	info := d.GetInfo()
	assert.Equal(t, db.ImplRemote, info.DbType)
	assert.Contains(t, info.SupportedFeatures, db.FeatureRemote)
	assert.Contains(t, info.SupportedFeatures, db.FeatureTTL)
	assert.Equal(t, db.ImplMemory, info.Metadata.(map[string]any)["backend"])
}

func TestRPCDriverErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("UnsupportedTTL", func(t *testing.T) {
		ts := startHTTP(t, noTTL{memory.New(nil)}, serializer.NewGOBSerializer())
		d := ts.connectedDriver(t)
		require.NoError(t, d.Prepare(ctx, "json"))

		assert.False(t, d.SupportsFeature(db.FeatureTTL))
		_, err := d.SetRowByKeyE(ctx, "json", "k", "v", false, time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, db.ErrUnsupportedOperation)
	})

	t.Run("CodeSurvivesTheWire", func(t *testing.T) {
		backend := memory.New(nil)
		ts := startHTTP(t, backend, serializer.NewJSONSerializer())
		d := ts.connectedDriver(t)

		// the backend goes away while the client is still connected
		require.NoError(t, backend.Disconnect(ctx))
		_, _, err := d.GetRowByKey(ctx, "json", "k")
		assert.ErrorIs(t, err, db.ErrNotConnected)
	})

	t.Run("ServerUnreachable", func(t *testing.T) {
		ts := startHTTP(t, memory.New(nil), serializer.NewJSONSerializer())
		d := ts.connectedDriver(t)
		require.NoError(t, d.Prepare(ctx, "json"))

		// point a second driver at an address nobody listens on
		cfg := ts.config
		cfg.Endpoints = []string{"127.0.0.1:1"}
		cfg.RetryCount = 1
		bad := NewRPCDriver(cfg, http.NewHttpClientTransport(), serializer.NewJSONSerializer())
		err := bad.Connect(ctx)
		assert.ErrorIs(t, err, db.ErrDriver)
	})
}

func TestRPCDriverWithStore(t *testing.T) {
	ctx := context.Background()
	for _, network := range networks {
		t.Run(network, func(t *testing.T) {
			ts := startServer(t, network, memory.New(nil), serializer.NewGOBSerializer())
			d := ts.connectedDriver(t)

			kv, err := store.New(d, "json")
			require.NoError(t, err)
			require.NoError(t, kv.Init(ctx))

			_, err = kv.Set(ctx, "user.name", "ada")
			require.NoError(t, err)
			_, err = kv.Push(ctx, "user.tags", "a", "b")
			require.NoError(t, err)

			v, err := kv.Get(ctx, "user")
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"name": "ada", "tags": []any{"a", "b"}}, v)

			n, err := kv.Add(ctx, "user.age", 36)
			require.NoError(t, err)
			assert.Equal(t, 36.0, n)
		})
	}
}

func TestRPCLockMgr(t *testing.T) {
	ctx := context.Background()
	ts := startHTTP(t, memory.New(nil), serializer.NewJSONSerializer())

	cfg := ts.config
	cfg.TimeoutSecond = 1
	locks, err := NewRPCLockMgr(cfg, http.NewHttpClientTransport(), ts.serializer)
	require.NoError(t, err)

	owner, err := locks.AcquireLock(ctx, "job")
	require.NoError(t, err)
	require.NotEmpty(t, owner)

	// held: a second acquire gives up with its context
	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locks.AcquireLock(waitCtx, "job")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.False(t, locks.ReleaseLock("job", "someone-else"))
	assert.True(t, locks.ReleaseLock("job", owner))

	owner2, err := locks.AcquireLock(ctx, "job")
	require.NoError(t, err)
	assert.NotEqual(t, owner, owner2)
	assert.True(t, locks.ReleaseLock("job", owner2))
}

func TestRPCLockMgrWaitsAcrossRounds(t *testing.T) {
	ctx := context.Background()
	ts := startSocket(t, "tcp", memory.New(nil), serializer.NewGOBSerializer())

	cfg := ts.config
	cfg.TimeoutSecond = 1 // rounds of 500ms
	locks, err := NewRPCLockMgr(cfg, tcp.NewTCPClientTransport(), ts.serializer)
	require.NoError(t, err)

	owner, err := locks.AcquireLock(ctx, "slow")
	require.NoError(t, err)

	acquired := make(chan string, 1)
	go func() {
		o, err := locks.AcquireLock(ctx, "slow")
		if err == nil {
			acquired <- o
		}
	}()

	time.Sleep(1200 * time.Millisecond)
	require.True(t, locks.ReleaseLock("slow", owner))

	select {
	case o := <-acquired:
		assert.True(t, locks.ReleaseLock("slow", o))
	case <-time.After(3 * time.Second):
		t.Fatal("waiting acquire did not get the lock")
	}
}

func TestRemoteKeyLocking(t *testing.T) {
	ctx := context.Background()
	ts := startSocket(t, "unix", memory.New(nil), serializer.NewGOBSerializer())

	// two "processes" sharing one backend and one lock manager
	newStore := func() store.IStore {
		locks, err := NewRPCLockMgr(ts.config, unix.NewUnixClientTransport(), ts.serializer)
		require.NoError(t, err)
		kv, err := store.New(ts.connectedDriver(t), "json", store.WithLockManager(locks))
		require.NoError(t, err)
		require.NoError(t, kv.Init(ctx))
		return kv
	}
	stores := []store.IStore{newStore(), newStore()}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(kv store.IStore) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := kv.Add(ctx, "counter.hits", 1)
				assert.NoError(t, err)
			}
		}(stores[i%2])
	}
	wg.Wait()

	v, err := stores[0].Get(ctx, "counter.hits")
	require.NoError(t, err)
	assert.Equal(t, 80.0, v)
}

func TestHTTPMetricsEndpoint(t *testing.T) {
	backend := memory.New(nil)
	require.NoError(t, backend.Connect(context.Background()))
	defer backend.Disconnect(context.Background())

	srv := server.NewRPCServer(common.ServerConfig{}, backend, nil, serializer.NewJSONSerializer())
	ts := httptest.NewServer(http.NewHandler(srv.Handle, func(w io.Writer) {
		_, _ = w.Write([]byte("hkv_up 1\n"))
	}, false))
	defer ts.Close()

	resp, err := nethttp.Get(ts.URL + http.MetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hkv_up 1")
}
