package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// NewDriverServerAdapter creates an adapter that executes driver requests against d
func NewDriverServerAdapter(d db.Driver) IRPCServerAdapter {
	return &driverServerAdapter{
		driver:   d,
		prepared: xsync.NewMapOf[string, struct{}](),
	}
}

type driverServerAdapter struct {
	driver db.Driver

	// tables that were prepared successfully, repeated prepare requests are answered from here
	prepared *xsync.MapOf[string, struct{}]
}

func (a *driverServerAdapter) Handle(ctx context.Context, req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTPrepare:
		return common.NewResponse(req.MsgType, a.prepare(ctx, req.Table))

	case common.MsgTGetAll:
		rows, err := a.driver.GetAllRows(ctx, req.Table)
		if err != nil {
			return common.NewResponse(req.MsgType, err)
		}
		resp := common.NewResponse(req.MsgType, nil)
		if resp.Rows, err = common.EncodeRows(rows); err != nil {
			return common.NewResponse(req.MsgType, db.DriverError("rpc.getAll", err))
		}
		return resp

	case common.MsgTGet:
		v, found, err := a.driver.GetRowByKey(ctx, req.Table, req.Key)
		if err != nil || !found {
			return common.NewResponse(req.MsgType, err)
		}
		return a.valueResponse(req.MsgType, v)

	case common.MsgTSet, common.MsgTSetE:
		v, err := db.DecodeValue(req.Value)
		if err != nil {
			return common.NewResponse(req.MsgType, db.InvalidArgument("rpc.set", "invalid value: %v", err))
		}
		var stored any
		if req.MsgType == common.MsgTSet {
			stored, err = a.driver.SetRowByKey(ctx, req.Table, req.Key, v, req.Update)
		} else {
			stored, err = a.setE(ctx, req, v)
		}
		if err != nil {
			return common.NewResponse(req.MsgType, err)
		}
		return a.valueResponse(req.MsgType, stored)

	case common.MsgTDeleteAll:
		n, err := a.driver.DeleteAllRows(ctx, req.Table)
		resp := common.NewResponse(req.MsgType, err)
		resp.Count = n
		return resp

	case common.MsgTDelete:
		n, err := a.driver.DeleteRowByKey(ctx, req.Table, req.Key)
		resp := common.NewResponse(req.MsgType, err)
		resp.Count = n
		return resp

	case common.MsgTInfo:
		meta, err := json.Marshal(a.driver.GetInfo())
		if err != nil {
			return common.NewResponse(req.MsgType, db.DriverError("rpc.info", err))
		}
		resp := common.NewResponse(req.MsgType, nil)
		resp.Meta = meta
		return resp

	default:
		return common.NewErrorResponse(db.RetCUnsupportedOperation,
			fmt.Sprintf("driver adapter: unsupported message type: %s", req.MsgType))
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (a *driverServerAdapter) prepare(ctx context.Context, table string) error {
	if _, ok := a.prepared.Load(table); ok {
		return nil
	}
	if err := a.driver.Prepare(ctx, table); err != nil {
		return err
	}
	a.prepared.Store(table, struct{}{})
	return nil
}

func (a *driverServerAdapter) setE(ctx context.Context, req *common.Message, v any) (any, error) {
	ed, ok := a.driver.(db.ExpiringDriver)
	if !ok || !a.driver.SupportsFeature(db.FeatureTTL) {
		return nil, db.Unsupported("rpc.setE")
	}
	var expireAt time.Time
	if req.ExpireAt != 0 {
		expireAt = time.UnixMilli(req.ExpireAt)
	}
	return ed.SetRowByKeyE(ctx, req.Table, req.Key, v, req.Update, expireAt)
}

// valueResponse creates a successful response carrying v
func (a *driverServerAdapter) valueResponse(t common.MessageType, v any) *common.Message {
	b, err := db.EncodeValue(v)
	if err != nil {
		return common.NewResponse(t, db.DriverError("rpc.encode", err))
	}
	resp := common.NewResponse(t, nil)
	resp.Ok = true
	resp.Value = b
	return resp
}
