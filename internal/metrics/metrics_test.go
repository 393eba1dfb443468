package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTwoFactor(t *testing.T) {
	before := testutil.ToFloat64(TwoFactorEvents.WithLabelValues("verify", ResultSuccess))

	ObserveTwoFactor("verify", ResultSuccess)
	ObserveTwoFactor("verify", ResultSuccess)

	assert.Equal(t, before+2, testutil.ToFloat64(TwoFactorEvents.WithLabelValues("verify", ResultSuccess)))
}
