// Package common provides the data structures shared by the RPC client and
// server: the wire message, the configuration structs and the logger factory.
//
// Key Components:
//
//   - Message: one structure for every request and response. Which fields are
//     set depends on the MessageType. Values travel in the JSON row encoding of
//     package db, errors travel as message plus db.RetCode so the client can
//     rebuild a *db.Error (see Message.AsError).
//
//   - ServerConfig / ClientConfig: settings of the server and the client,
//     both with a String method for startup logs.
//
//   - Logger: a dragonboat logger.Factory printing "LEVEL | name | message".
//     InitLoggers installs it and sets the level of the hkv loggers.
package common
