package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestObserveLedger(t *testing.T) {
	before := testutil.ToFloat64(LedgerOperations.WithLabelValues("test_op", "error"))
	ObserveLedger("test_op", time.Now(), errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(LedgerOperations.WithLabelValues("test_op", "error")))
}

func TestAddRevenue_IgnoresNegative(t *testing.T) {
	before := testutil.ToFloat64(PlatformRevenue.WithLabelValues("test_source"))
	AddRevenue("test_source", decimal.RequireFromString("1.25"))
	AddRevenue("test_source", decimal.RequireFromString("-5"))
	assert.InDelta(t, before+1.25, testutil.ToFloat64(PlatformRevenue.WithLabelValues("test_source")), 1e-9)
}
