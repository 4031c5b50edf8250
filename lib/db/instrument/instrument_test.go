package instrument

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/db/engines/memory"
	dbtesting "github.com/ValentinKolb/hkv/lib/db/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	dbtesting.RunDriverTests(t, "InstrumentedMemory", func() db.Driver {
		return Wrap(memory.New(nil), nil)
	})
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	d := Wrap(memory.New(nil), nil)

	_, err := d.SetRowByKey(ctx, "t", "k", 1, false)
	require.True(t, errors.Is(err, db.ErrNotConnected))

	require.NoError(t, d.Connect(ctx))
	defer d.Disconnect(ctx)
	_, err = d.SetRowByKey(ctx, "t", "k", 1, false)
	require.NoError(t, err)
	_, _, err = d.GetRowByKey(ctx, "t", "k")
	require.NoError(t, err)

	var buf bytes.Buffer
	d.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `hkv_driver_requests_total{driver="memory",op="setRowByKey"} 2`)
	assert.Contains(t, out, `hkv_driver_requests_total{driver="memory",op="getRowByKey"} 1`)
	assert.Contains(t, out, `hkv_driver_errors_total{driver="memory",op="setRowByKey",code="NotConnected"} 1`)
	assert.Contains(t, out, `hkv_driver_request_duration_seconds_count{driver="memory",op="getRowByKey"} 1`)
}

// plainDriver hides the ExpiringDriver implementation of the memory driver
type plainDriver struct{ db.Driver }

func (plainDriver) SupportsFeature(db.Feature) bool { return false }

func TestSetRowByKeyEUnsupported(t *testing.T) {
	ctx := context.Background()
	inner := memory.New(nil)
	require.NoError(t, inner.Connect(ctx))
	defer inner.Disconnect(ctx)

	d := Wrap(plainDriver{inner}, nil)
	_, err := d.SetRowByKeyE(ctx, "t", "k", 1, false, time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, db.ErrUnsupportedOperation)

	d = Wrap(inner, nil)
	_, err = d.SetRowByKeyE(ctx, "t", "k", 1, false, time.Now().Add(time.Minute))
	assert.NoError(t, err)
	assert.Same(t, inner, d.Unwrap())
}
