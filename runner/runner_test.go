package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestRunnerRequiresProjectDir(t *testing.T) {
	_, err := NewTestRunner(Config{})
	assert.Error(t, err)
}

func TestRunScriptsRequiresScripts(t *testing.T) {
	r, err := NewTestRunner(Config{ProjectDir: t.TempDir()})
	require.NoError(t, err)

	_, err = r.RunScripts(context.Background(), nil)
	assert.Error(t, err)
}

func TestResolvePython(t *testing.T) {
	venvDir := t.TempDir()
	binDir := filepath.Join(venvDir, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	venvPython := filepath.Join(binDir, "python")
	require.NoError(t, os.WriteFile(venvPython, []byte("#!/bin/sh\n"), 0o755))

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "explicit override wins",
			cfg:  Config{ProjectDir: ".", PythonBinary: "/usr/bin/python3", VenvDir: venvDir},
			want: "/usr/bin/python3",
		},
		{
			name: "venv interpreter preferred",
			cfg:  Config{ProjectDir: ".", VenvDir: venvDir},
			want: venvPython,
		},
		{
			name: "missing venv falls back to PATH",
			cfg:  Config{ProjectDir: ".", VenvDir: filepath.Join(venvDir, "absent")},
			want: DefaultPythonBinary,
		},
		{
			name: "no venv configured",
			cfg:  Config{ProjectDir: "."},
			want: DefaultPythonBinary,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &pytestRunner{config: tt.cfg}
			assert.Equal(t, tt.want, r.resolvePython())
		})
	}
}
