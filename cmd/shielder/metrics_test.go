package main

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shielder/internal/client"
	"shielder/internal/shielder"
)

func TestMetricsCollectorObservesClient(t *testing.T) {
	mc := NewMetricsCollector()
	mc.CalldataGenerated(client.OpShield, client.GeneratedCalldata{Kind: shielder.EventNewAccount, ProvingTime: 2 * time.Second})
	mc.CalldataGenerated(client.OpShield, client.GeneratedCalldata{Kind: shielder.EventDeposit, ProvingTime: time.Second})
	mc.CalldataSent(client.OpShield, common.Hash{})
	mc.NewTransaction(shielder.ShielderTransaction{Kind: shielder.EventDeposit, Block: 7})
	mc.NewTransaction(shielder.ShielderTransaction{Kind: shielder.EventNewAccount, Block: 3})
	mc.Error(errors.New("boom"), client.StageSending, client.OpWithdraw)

	generated := mc.GetMetric(MetricCalldataGenerated, map[string]string{"operation": "shield"})
	require.NotNil(t, generated)
	assert.Equal(t, float64(2), generated.Value)
	assert.Equal(t, Counter, generated.Type)

	last := mc.GetMetric(MetricLastBlock, nil)
	require.NotNil(t, last)
	assert.Equal(t, float64(7), last.Value)

	summary := mc.GetMetricsSummary()
	counters := summary["counters"].(map[string]int64)
	assert.Equal(t, int64(1), counters["error_count_operation_withdraw_stage_sending"])
	assert.Equal(t, int64(1), counters["calldata_sent_operation_shield"])

	gauges := summary["gauges"].(map[string]int64)
	assert.Equal(t, int64(7), gauges[MetricLastBlock])

	histograms := summary["histograms"].(map[string]map[string]float64)
	assert.Equal(t, float64(2000), histograms["proving_time_ms_kind_NewAccount"]["max"])
	assert.Equal(t, float64(1), histograms["proving_time_ms_kind_Deposit"]["count"])

	assert.Nil(t, mc.GetMetric("unknown", nil))
}

func TestMetricsCollectorsAreIndependent(t *testing.T) {
	a, b := NewMetricsCollector(), NewMetricsCollector()
	a.IncrementCounter(MetricCalldataSent, nil)
	a.IncrementCounter(MetricCalldataSent, nil)
	b.IncrementCounter(MetricCalldataSent, nil)

	assert.Equal(t, float64(2), a.GetMetric(MetricCalldataSent, nil).Value)
	assert.Equal(t, float64(1), b.GetMetric(MetricCalldataSent, nil).Value)
}

func TestMakeKeyIsOrderIndependent(t *testing.T) {
	a := makeKey("m", map[string]string{"x": "1", "y": "2"})
	b := makeKey("m", map[string]string{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
	assert.Equal(t, "m_x_1_y_2", a)
}
