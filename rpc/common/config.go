package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of an RPC server.
type ServerConfig struct {
	// Backend the server exposes
	Driver string
	DSN    string

	// Transport settings
	Transport     string // http, tcp or unix
	Endpoint      string // listen address (host:port or socket path)
	Serializer    string // json or gob
	TimeoutSecond int64  // read/write deadline per request, 0 = none

	// Worker pool for socket transports
	WorkersPerConn int

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Backend
	addSection("Backend")
	addField("Driver", c.Driver)
	addField("DSN", redact(c.DSN))

	// RPC settings
	addSection("RPC Server")
	addField("Transport", c.Transport)
	addField("Endpoint", c.Endpoint)
	addField("Serializer", c.Serializer)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.Transport != "http" {
		addField("Workers per Connection", strconv.Itoa(c.WorkersPerConn))
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Transport              string
	Endpoints              []string
	Serializer             string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
	LockLeaseSecond        int // lease of locks acquired through the remote lock manager
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Transport", c.Transport)
	addField("Serializer", c.Serializer)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))
	addField("Lock Lease", fmt.Sprintf("%d sec", c.LockLeaseSecond))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

// redact hides the password of a DSN like user:secret@host
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	creds := dsn[:at]
	colon := strings.LastIndex(creds, ":")
	if colon < 0 || strings.HasSuffix(creds[:colon+1], "://") {
		return dsn
	}
	return creds[:colon+1] + "****" + dsn[at:]
}
