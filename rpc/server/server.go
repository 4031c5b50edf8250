package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/ValentinKolb/hkv/rpc/serializer"
	"github.com/ValentinKolb/hkv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server exposing driver and a lock manager.
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		sqldb.New(sqldb.Options{Dialect: sqldb.SQLite, DSN: "data.db"}),
//		http.NewHttpServerTransport(nil),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	driver db.Driver,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		driver:     driver,
		transport:  transport,
		serializer: serializer,
		drivers:    NewDriverServerAdapter(driver),
		locks:      NewLockManagerServerAdapter(),
	}
}

type RPCServer struct {
	config     common.ServerConfig
	driver     db.Driver
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	drivers    IRPCServerAdapter
	locks      IRPCServerAdapter
}

// Handle decodes a serialized request, routes it to the matching adapter and
// returns the serialized response. It is the handler registered at the transport.
func (s *RPCServer) Handle(ctx context.Context, req []byte) []byte {
	var msg common.Message
	var resp *common.Message

	if err := s.serializer.Deserialize(req, &msg); err != nil {
		resp = common.NewErrorResponse(db.RetCInvalidArgument, fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		switch msg.MsgType {
		case common.MsgTLCKAcquire, common.MsgTLCKRelease:
			resp = s.locks.Handle(ctx, &msg)
		default:
			resp = s.drivers.Handle(ctx, &msg)
		}
	}

	val, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(db.RetCDriverError,
			fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// Serve connects the driver and serves requests until ctx is done.
// The driver is disconnected when Serve returns.
func (s *RPCServer) Serve(ctx context.Context) error {
	if err := s.driver.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect driver: %w", err)
	}
	defer func() {
		if err := s.driver.Disconnect(context.Background()); err != nil {
			Logger.Errorf("failed to disconnect driver: %v", err)
		}
	}()

	Logger.Infof("%s driver connected", s.driver.GetInfo().DbType)

	s.transport.RegisterHandler(s.Handle)
	return s.transport.Listen(ctx, s.config)
}
