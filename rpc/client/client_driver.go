package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/ValentinKolb/hkv/rpc/serializer"
	"github.com/ValentinKolb/hkv/rpc/transport"
)

// NewRPCDriver creates a driver that forwards every operation to an RPC server.
// The transport is connected by Connect.
func NewRPCDriver(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) *RPCDriver {
	return &RPCDriver{
		rpcClientAdapter: rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}
}

// RPCDriver implements db.ExpiringDriver on top of an RPC client transport.
// Its features are the features of the remote backend plus db.FeatureRemote.
type RPCDriver struct {
	rpcClientAdapter

	mu        sync.RWMutex // guards the fields below
	connected bool
	remote    db.DatabaseInfo
	features  db.Feature
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.Driver)
// --------------------------------------------------------------------------

func (d *RPCDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return nil
	}

	if err := d.transport.Connect(d.config); err != nil {
		return db.DriverError("remote.connect", err)
	}

	// fetch the backend info, it tells which features are available
	resp, err := d.invokeRPCRequest(ctx, "remote.connect", common.NewInfoRequest())
	if err != nil {
		_ = d.transport.Close()
		return err
	}
	var info db.DatabaseInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		_ = d.transport.Close()
		return db.DriverError("remote.connect", err)
	}

	d.remote = info
	d.features = 0
	for _, f := range info.SupportedFeatures {
		d.features |= f
	}
	d.connected = true
	Logger.Infof("connected to remote %s driver at %v", info.DbType, d.config.Endpoints)
	return nil
}

func (d *RPCDriver) Disconnect(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil
	}
	d.connected = false
	if err := d.transport.Close(); err != nil {
		return db.DriverError("remote.disconnect", err)
	}
	return nil
}

func (d *RPCDriver) Prepare(ctx context.Context, table string) error {
	const op = "remote.prepare"
	if err := d.check(op, table); err != nil {
		return err
	}
	_, err := d.invokeRPCRequest(ctx, op, common.NewPrepareRequest(table))
	return err
}

func (d *RPCDriver) GetAllRows(ctx context.Context, table string) ([]db.Row, error) {
	const op = "remote.getAll"
	if err := d.check(op, table); err != nil {
		return nil, err
	}
	resp, err := d.invokeRPCRequest(ctx, op, common.NewGetAllRequest(table))
	if err != nil {
		return nil, err
	}
	rows, err := common.DecodeRows(resp.Rows)
	if err != nil {
		return nil, db.DriverError(op, err)
	}
	return rows, nil
}

func (d *RPCDriver) GetRowByKey(ctx context.Context, table, key string) (any, bool, error) {
	const op = "remote.get"
	if err := d.check(op, table); err != nil {
		return nil, false, err
	}
	resp, err := d.invokeRPCRequest(ctx, op, common.NewGetRequest(table, key))
	if err != nil || !resp.Ok {
		return nil, false, err
	}
	v, err := db.DecodeValue(resp.Value)
	if err != nil {
		return nil, false, db.DriverError(op, err)
	}
	return v, true, nil
}

func (d *RPCDriver) SetRowByKey(ctx context.Context, table, key string, value any, update bool) (any, error) {
	const op = "remote.set"
	if err := d.check(op, table); err != nil {
		return nil, err
	}
	b, err := db.EncodeValue(value)
	if err != nil {
		return nil, db.InvalidArgument(op, "value is not encodable: %v", err)
	}
	return d.set(ctx, op, common.NewSetRequest(table, key, b, update))
}

func (d *RPCDriver) SetRowByKeyE(ctx context.Context, table, key string, value any, update bool, expireAt time.Time) (any, error) {
	const op = "remote.setE"
	if err := d.check(op, table); err != nil {
		return nil, err
	}
	if !d.SupportsFeature(db.FeatureTTL) {
		return nil, db.Unsupported(op)
	}
	b, err := db.EncodeValue(value)
	if err != nil {
		return nil, db.InvalidArgument(op, "value is not encodable: %v", err)
	}
	var expireMs int64 // 0 = never expires
	if !expireAt.IsZero() {
		expireMs = expireAt.UnixMilli()
	}
	return d.set(ctx, op, common.NewSetERequest(table, key, b, update, expireMs))
}

func (d *RPCDriver) DeleteAllRows(ctx context.Context, table string) (int64, error) {
	const op = "remote.deleteAll"
	if err := d.check(op, table); err != nil {
		return 0, err
	}
	resp, err := d.invokeRPCRequest(ctx, op, common.NewDeleteAllRequest(table))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (d *RPCDriver) DeleteRowByKey(ctx context.Context, table, key string) (int64, error) {
	const op = "remote.delete"
	if err := d.check(op, table); err != nil {
		return 0, err
	}
	resp, err := d.invokeRPCRequest(ctx, op, common.NewDeleteRequest(table, key))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (d *RPCDriver) SupportsFeature(feature db.Feature) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return (d.features|db.FeatureRemote)&feature == feature
}

func (d *RPCDriver) GetInfo() db.DatabaseInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var features []db.Feature
	for _, f := range []db.Feature{db.FeatureTTL, db.FeaturePersistence, db.FeatureInsertionOrder, db.FeatureRemote} {
		if (d.features|db.FeatureRemote)&f == f {
			features = append(features, f)
		}
	}
	return db.DatabaseInfo{
		DbType:            db.ImplRemote,
		SupportedFeatures: features,
		Metadata: map[string]any{
			"transport": d.config.Transport,
			"endpoints": d.config.Endpoints,
			"backend":   d.remote.DbType,
		},
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// check fails with NotConnected or InvalidArgument before a request is sent
func (d *RPCDriver) check(op, table string) error {
	d.mu.RLock()
	connected := d.connected
	d.mu.RUnlock()
	if !connected {
		return db.NotConnected(op)
	}
	return db.ValidateTableName(op, table)
}

func (d *RPCDriver) set(ctx context.Context, op string, req *common.Message) (any, error) {
	resp, err := d.invokeRPCRequest(ctx, op, req)
	if err != nil {
		return nil, err
	}
	v, err := db.DecodeValue(resp.Value)
	if err != nil {
		return nil, db.DriverError(op, err)
	}
	return v, nil
}
