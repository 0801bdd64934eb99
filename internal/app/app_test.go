package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BV-BRC/sheet-analyst/internal/analysis"
	"github.com/BV-BRC/sheet-analyst/internal/config"
	"github.com/BV-BRC/sheet-analyst/internal/events"
	"github.com/BV-BRC/sheet-analyst/internal/generator"
	"github.com/BV-BRC/sheet-analyst/internal/table"
)

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Model.Provider = "static"
	cfg.Plots.Dir = filepath.Join(t.TempDir(), "plots")
	cfg.Redis.Channel = events.DefaultChannel
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Metrics)
	assert.Nil(t, a.Audit)
	assert.DirExists(t, a.Charts.Dir())

	emp, _ := table.Sample(table.SampleOptions{Seed: 1, Rows: 10})
	_, err = a.Engine.Analyze(context.Background(), analysis.Request{Question: "q", Tables: []*table.Table{emp}})
	var ue *generator.UpstreamError
	assert.ErrorAs(t, err, &ue)

	resp, err := a.Engine.Execute(context.Background(), analysis.Request{Tables: []*table.Table{emp}}, "employees.length")
	require.NoError(t, err)
	assert.Equal(t, "10", resp.Result)
}

func TestNew_PublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()

	a, err := New(cfg, nil, WithGenerator(generator.Static{Code: "1 + 1"}), WithoutMetrics())
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Metrics)

	sub := mr.NewSubscriber()
	sub.Subscribe(events.DefaultChannel)

	emp, _ := table.Sample(table.SampleOptions{Seed: 1, Rows: 5})
	_, err = a.Engine.Analyze(context.Background(), analysis.Request{Question: "q", Tables: []*table.Table{emp}})
	require.NoError(t, err)

	select {
	case msg := <-sub.Messages():
		assert.Contains(t, msg.Message, events.TypeCompleted)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}

func TestNew_BadRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"
	_, err := New(cfg, nil)
	assert.Error(t, err)

	a, err := New(cfg, nil, WithoutReporting())
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}

func TestSandboxOptions(t *testing.T) {
	opts := SandboxOptions(config.SandboxConfig{Timeout: time.Second, RowLimit: 5}, nil)
	assert.Equal(t, time.Second, opts.Timeout)
	assert.Equal(t, 5, opts.RowLimit)
	assert.Equal(t, 500, opts.MaxCallStack)
}
