// Package instrument provides a db.Driver decorator recording request counts,
// error counts and latencies with github.com/VictoriaMetrics/metrics.
//
// Metric names:
//
//	hkv_driver_requests_total{driver="...",op="..."}
//	hkv_driver_errors_total{driver="...",op="...",code="..."}
//	hkv_driver_request_duration_seconds{driver="...",op="..."}
//
// The metrics live in a *metrics.Set owned by the decorator, WritePrometheus
// exposes them in the Prometheus text format.
package instrument

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/VictoriaMetrics/metrics"
)

// Driver wraps another driver and records metrics for every call
type Driver struct {
	inner db.Driver
	name  string
	set   *metrics.Set
}

// Wrap instruments the driver. A nil set creates a private one.
func Wrap(inner db.Driver, set *metrics.Set) *Driver {
	if set == nil {
		set = metrics.NewSet()
	}
	return &Driver{
		inner: inner,
		name:  string(inner.GetInfo().DbType),
		set:   set,
	}
}

// Unwrap returns the decorated driver
func (d *Driver) Unwrap() db.Driver { return d.inner }

// Set returns the metric set
func (d *Driver) Set() *metrics.Set { return d.set }

// WritePrometheus writes all metrics of the decorator in Prometheus text format
func (d *Driver) WritePrometheus(w io.Writer) {
	d.set.WritePrometheus(w)
}

// observe records one call, it is used as `defer d.observe(op, time.Now(), &err)`
func (d *Driver) observe(op string, start time.Time, err *error) {
	d.set.GetOrCreateCounter(fmt.Sprintf(`hkv_driver_requests_total{driver=%q,op=%q}`, d.name, op)).Inc()
	d.set.GetOrCreateHistogram(fmt.Sprintf(`hkv_driver_request_duration_seconds{driver=%q,op=%q}`, d.name, op)).UpdateDuration(start)
	if err != nil && *err != nil {
		code := db.CodeOf(*err)
		d.set.GetOrCreateCounter(fmt.Sprintf(`hkv_driver_errors_total{driver=%q,op=%q,code=%q}`, d.name, op, code)).Inc()
	}
}

// --------------------------------------------------------------------------
// db.Driver
// --------------------------------------------------------------------------

func (d *Driver) Connect(ctx context.Context) (err error) {
	defer d.observe("connect", time.Now(), &err)
	return d.inner.Connect(ctx)
}

func (d *Driver) Disconnect(ctx context.Context) (err error) {
	defer d.observe("disconnect", time.Now(), &err)
	return d.inner.Disconnect(ctx)
}

func (d *Driver) Prepare(ctx context.Context, table string) (err error) {
	defer d.observe("prepare", time.Now(), &err)
	return d.inner.Prepare(ctx, table)
}

func (d *Driver) GetAllRows(ctx context.Context, table string) (rows []db.Row, err error) {
	defer d.observe("getAllRows", time.Now(), &err)
	return d.inner.GetAllRows(ctx, table)
}

func (d *Driver) GetRowByKey(ctx context.Context, table, key string) (v any, found bool, err error) {
	defer d.observe("getRowByKey", time.Now(), &err)
	return d.inner.GetRowByKey(ctx, table, key)
}

func (d *Driver) SetRowByKey(ctx context.Context, table, key string, value any, update bool) (stored any, err error) {
	defer d.observe("setRowByKey", time.Now(), &err)
	return d.inner.SetRowByKey(ctx, table, key, value, update)
}

// SetRowByKeyE forwards to the decorated driver if it supports expiration
func (d *Driver) SetRowByKeyE(ctx context.Context, table, key string, value any, update bool, expireAt time.Time) (stored any, err error) {
	defer d.observe("setRowByKeyE", time.Now(), &err)
	ed, ok := d.inner.(db.ExpiringDriver)
	if !ok || !d.inner.SupportsFeature(db.FeatureTTL) {
		return nil, db.Unsupported("setRowByKeyE")
	}
	return ed.SetRowByKeyE(ctx, table, key, value, update, expireAt)
}

func (d *Driver) DeleteAllRows(ctx context.Context, table string) (n int64, err error) {
	defer d.observe("deleteAllRows", time.Now(), &err)
	return d.inner.DeleteAllRows(ctx, table)
}

func (d *Driver) DeleteRowByKey(ctx context.Context, table, key string) (n int64, err error) {
	defer d.observe("deleteRowByKey", time.Now(), &err)
	return d.inner.DeleteRowByKey(ctx, table, key)
}

func (d *Driver) SupportsFeature(feature db.Feature) bool {
	return d.inner.SupportsFeature(feature)
}

func (d *Driver) GetInfo() db.DatabaseInfo {
	return d.inner.GetInfo()
}
