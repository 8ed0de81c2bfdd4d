package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintVersion(t *testing.T) {
	tests := []struct {
		name          string
		version       string
		build         string
		buildTime     string
		expectContain []string
	}{
		{
			name:          "dev build",
			version:       "dev",
			build:         "unknown",
			expectContain: []string{"ytexport version dev", "Go version:", "OS/Arch:"},
		},
		{
			name:          "release build with commit",
			version:       "0.1.0",
			build:         "abc1234",
			buildTime:     "2026-01-12_12:00:00",
			expectContain: []string{"ytexport version 0.1.0", "(build: abc1234)", "[2026-01-12_12:00:00]", "Go version:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origVersion, origBuild, origBuildTime := Version, Build, BuildTime
			defer func() {
				Version, Build, BuildTime = origVersion, origBuild, origBuildTime
			}()
			Version, Build, BuildTime = tt.version, tt.build, tt.buildTime

			var buf bytes.Buffer
			printVersion(&buf)
			for _, want := range tt.expectContain {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	setupConfig(t)

	code, out, _ := runCLI(t, "version")

	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "ytexport version")
}
