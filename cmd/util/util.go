package util

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/db/engines/file"
	"github.com/ValentinKolb/hkv/lib/db/engines/memory"
	"github.com/ValentinKolb/hkv/lib/db/engines/mongo"
	"github.com/ValentinKolb/hkv/lib/db/engines/sqldb"
	"github.com/ValentinKolb/hkv/lib/events"
	"github.com/ValentinKolb/hkv/rpc/client"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/ValentinKolb/hkv/rpc/serializer"
	"github.com/ValentinKolb/hkv/rpc/transport"
	"github.com/ValentinKolb/hkv/rpc/transport/http"
	"github.com/ValentinKolb/hkv/rpc/transport/tcp"
	"github.com/ValentinKolb/hkv/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and makes every flag settable as HKV_<FLAG> environment variable
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("hkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.InheritedFlags())
}

// SetupDriverFlags adds the flags selecting the backend to a command
func SetupDriverFlags(cmd *cobra.Command) {
	key := "driver"
	cmd.PersistentFlags().String(key, "memory", WrapString("The backend to use (memory, file, sqlite, postgres, mysql, mongo, remote)"))

	key = "dsn"
	cmd.PersistentFlags().String(key, "", WrapString("Connection string of the backend: file path (file, sqlite), URL (postgres, mongo) or DSN (mysql). Ignored for memory and remote"))

	key = "mongo-database"
	cmd.PersistentFlags().String(key, "hkv", WrapString("Database holding the collections (only for mongo)"))

	key = "log-events"
	cmd.PersistentFlags().Bool(key, false, WrapString("Log every driver event at debug level"))
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the hkv server. Multiple endpoints can be specified as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry the request"))

	key = "lock-lease"
	cmd.PersistentFlags().Int(key, 30, WrapString("Seconds after which the server releases a lock acquired by this client"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		Transport:              viper.GetString("transport"),
		Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
		Serializer:             viper.GetString("serializer"),
		TimeoutSecond:          viper.GetInt("timeout"),
		RetryCount:             viper.GetInt("transport-retries"),
		ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
		LockLeaseSecond:        viper.GetInt("lock-lease"),
	}
}

// --------------------------------------------------------------------------
// Factories
// --------------------------------------------------------------------------

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString("serializer"))
}

// GetClientTransport creates a client transport based on configuration
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates a server transport based on configuration.
// metrics is served by the http transport only.
func GetServerTransport(workersPerConn int, metrics func(w io.Writer)) (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(metrics), nil
	case "tcp":
		return tcp.NewTCPServerTransport(workersPerConn), nil
	case "unix":
		return unix.NewUnixServerTransport(workersPerConn), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetDriver creates the (not yet connected) driver selected by the driver flag.
// The driver publishes its events to sinks (and to the driver logger with --log-events).
func GetDriver(sinks ...events.Sink) (db.Driver, error) {
	name := viper.GetString("driver")
	dsn := viper.GetString("dsn")

	if viper.GetBool("log-events") {
		sinks = append(sinks, events.NewLogSink(logger.GetLogger("driver")))
	}
	var sink events.Sink
	if len(sinks) > 0 {
		sink = events.Multi(sinks...)
	}

	requireDSN := func() error {
		if dsn == "" {
			return fmt.Errorf("the %s driver requires --dsn", name)
		}
		return nil
	}

	switch name {
	case "memory":
		return memory.New(&memory.Options{Sink: sink}), nil
	case "file":
		if err := requireDSN(); err != nil {
			return nil, err
		}
		return file.New(file.Options{Path: dsn, Sink: sink}), nil
	case "sqlite", "postgres", "mysql":
		if err := requireDSN(); err != nil {
			return nil, err
		}
		dialect := map[string]*sqldb.Dialect{"sqlite": sqldb.SQLite, "postgres": sqldb.Postgres, "mysql": sqldb.MySQL}[name]
		return sqldb.New(sqldb.Options{Dialect: dialect, DSN: dsn, Sink: sink}), nil
	case "mongo":
		if err := requireDSN(); err != nil {
			return nil, err
		}
		return mongo.New(mongo.Options{URI: dsn, Database: viper.GetString("mongo-database"), Sink: sink}), nil
	case "remote":
		s, err := GetSerializer()
		if err != nil {
			return nil, err
		}
		t, err := GetClientTransport()
		if err != nil {
			return nil, err
		}
		return client.NewRPCDriver(GetClientConfig(), t, s), nil
	default:
		return nil, fmt.Errorf("invalid driver %s", name)
	}
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// ParseValue reads a command line argument as JSON, falling back to a plain string
func ParseValue(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

// PrintJSON writes v as indented JSON to w
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
