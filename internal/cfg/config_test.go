// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg_test

import (
	"testing"
	"time"

	"github.com/cortexfs/cortexfs/internal/cfg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	d := cfg.Default()

	assert.Equal(t, 768, d.EmbeddingDim)
	assert.Equal(t, 100, d.EmbeddingQueueDepth)
	assert.Equal(t, 10*time.Minute, d.QueryTTL)
	assert.Equal(t, 500*time.Millisecond, d.DebounceWindow)
	assert.Equal(t, 100*time.Millisecond, d.DispatcherTick)
	assert.NotEmpty(t, d.DBPath)
}

func TestBindFlagsAndUnmarshal(t *testing.T) {
	viper.Reset()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	require.NoError(t, cfg.BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--query-ttl=1m", "--log-format=json"}))

	var c cfg.Config
	require.NoError(t, viper.Unmarshal(&c))

	assert.Equal(t, time.Minute, c.QueryTTL)
	assert.Equal(t, "json", c.Logging.Format)
}
