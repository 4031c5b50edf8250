// Package serializer converts RPC messages to bytes and back.
//
// Key Components:
//
//   - IRPCSerializer: the interface every serializer satisfies.
//
//   - NewJSONSerializer: JSON encoding. Human readable, handy for debugging
//     and the default of the hkv command.
//
//   - NewGOBSerializer: Go's gob encoding. Only usable between Go peers.
//
// Both implementations are stateless and safe for concurrent use. ByName
// resolves the serializer from a configuration value:
//
//	s, err := serializer.ByName("gob")
//	data, err := s.Serialize(*common.NewGetRequest("users", "alice"))
package serializer
