// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package xdg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		lookup func() (string, error)
		want   string
	}{
		{
			name:   "config from env",
			env:    map[string]string{"XDG_CONFIG_HOME": "/custom/config"},
			lookup: ConfigDir,
			want:   "/custom/config/tripwise",
		},
		{
			name:   "config from home",
			env:    map[string]string{"XDG_CONFIG_HOME": "", "HOME": "/home/traveler"},
			lookup: ConfigDir,
			want:   "/home/traveler/.config/tripwise",
		},
		{
			name:   "config file",
			env:    map[string]string{"XDG_CONFIG_HOME": "/etc/xdg"},
			lookup: ConfigFile,
			want:   "/etc/xdg/tripwise/config.yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got, err := tt.lookup()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigDir_NoHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")
	_, err := ConfigDir()
	require.Error(t, err)
}
