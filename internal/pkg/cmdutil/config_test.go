package cmdutil

import (
	"context"
	"testing"

	"github.com/endorses/mtmon/internal/pkg/config"
	"github.com/endorses/mtmon/internal/pkg/source"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlags(t *testing.T) {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("router", "192.168.88.1", "")
	fs.Duration("interval", 0, "")
	require.NoError(t, fs.Parse([]string{"--router", "10.1.1.1"}))

	v := viper.New()
	require.NoError(t, BindFlags(v, fs, map[string]string{
		"device.address": "router",
		"poll.interval":  "interval",
	}))

	assert.Equal(t, "10.1.1.1", v.GetString("device.address"))
}

func TestBindFlags_UnknownFlag(t *testing.T) {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)

	err := BindFlags(viper.New(), fs, map[string]string{"device.address": "router"})
	assert.ErrorContains(t, err, "--router")
}

func TestGetStringConfig(t *testing.T) {
	viper.Set("device.address", "from-config")
	t.Cleanup(viper.Reset)

	assert.Equal(t, "from-flag", GetStringConfig("device.address", "from-flag"))
	assert.Equal(t, "from-config", GetStringConfig("device.address", ""))
}

func TestNewSource(t *testing.T) {
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	assert.NotNil(t, NewSource(cfg))

	cfg.System.Ping = false
	_, err = NewSource(cfg).LatencyMs(context.Background())
	assert.ErrorIs(t, err, source.ErrNoData)
}
