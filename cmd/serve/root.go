package serve

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/hkv/cmd/util"
	"github.com/ValentinKolb/hkv/lib/db/instrument"
	"github.com/ValentinKolb/hkv/lib/events"
	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/ValentinKolb/hkv/rpc/server"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Expose a backend over RPC",
		Long: `Start the hkv server. It exposes the configured driver and a lock manager to remote
clients (--driver remote). The configuration can be set via command line flags or
environment variables. The format of the environment variables is HKV_<flag>
(e.g. HKV_WORKERS_PER_CONN=8)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	util.SetupDriverFlags(ServeCmd)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", util.WrapString("The address on which the server will listen (e.g. localhost:8080, /tmp/hkv.sock, ...)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, util.WrapString("Read and write deadline per request in seconds (0 = none)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 4, util.WrapString("Requests processed concurrently per connection (ignored for http)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Driver = viper.GetString("driver")
	serveCmdConfig.DSN = viper.GetString("dsn")
	serveCmdConfig.Transport = viper.GetString("transport")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.WorkersPerConn = viper.GetInt("workers-per-conn")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the hkv server
func run(_ *cobra.Command, _ []string) error {
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	eventCounts := events.NewMetricsSink(nil)
	d, err := util.GetDriver(eventCounts)
	if err != nil {
		return err
	}

	// every driver call is measured, the http transport serves the result
	driver := instrument.Wrap(d, metrics.NewSet())
	writeMetrics := func(w io.Writer) {
		driver.WritePrometheus(w)
		writeEventCounts(w, eventCounts)
		metrics.WriteProcessMetrics(w)
	}

	t, err := util.GetServerTransport(serveCmdConfig.WorkersPerConn, writeMetrics)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.NewRPCServer(*serveCmdConfig, driver, t, s).Serve(ctx)
}

// writeEventCounts writes the number of driver events per kind in Prometheus text format
func writeEventCounts(w io.Writer, sink *events.MetricsSink) {
	for _, kind := range events.Kinds {
		fmt.Fprintf(w, "hkv_driver_events_total{kind=%q} %d\n", kind, sink.Count(kind))
	}
}
