package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/cuemby/gpubox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() RunSpec {
	return RunSpec{
		Image:       "ubuntu:latest",
		Memory:      "2g",
		CPUs:        2,
		GPUs:        "none",
		Name:        "alice-20240101120000-1a2b3c4d",
		UserID:      42,
		SSHPort:     20001,
		JupyterPort: 20002,
		Password:    "Ab3dE6gH",
	}
}

func countFlag(args []string, flag string) (int, []string) {
	n := 0
	var values []string
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			n++
			values = append(values, args[i+1])
		}
	}
	return n, values
}

func TestBuildRunArgsGPUFlag(t *testing.T) {
	tests := []struct {
		gpus      string
		wantFlags int
	}{
		{"none", 0},
		{"None", 0},
		{"NONE", 0},
		{"all", 1},
		{"2", 1},
		{"device=0", 1},
		{"device=0,1", 1},
		{"device=GPU-3a9c2f1e", 1},
	}

	for _, tt := range tests {
		t.Run(tt.gpus, func(t *testing.T) {
			spec := validSpec()
			spec.GPUs = tt.gpus

			args, err := BuildRunArgs(spec, BuildOptions{})
			require.NoError(t, err)

			n, values := countFlag(args, "--gpus")
			assert.Equal(t, tt.wantFlags, n)
			if tt.wantFlags == 1 {
				assert.Equal(t, tt.gpus, values[0])
			}
		})
	}
}

func TestBuildRunArgsRejectsUnsafeGPU(t *testing.T) {
	for _, gpus := range []string{"all; rm -rf /", `"device=0"`, "device=", "--privileged", ""} {
		t.Run(gpus, func(t *testing.T) {
			spec := validSpec()
			spec.GPUs = gpus
			_, err := BuildRunArgs(spec, BuildOptions{})
			assert.True(t, errors.Is(err, types.ErrValidation))
		})
	}
}

func TestBuildRunArgsLayout(t *testing.T) {
	spec := validSpec()
	args, err := BuildRunArgs(spec, BuildOptions{DNSServers: []string{"8.8.8.8", "1.1.1.1"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"run", "-d"}, args[:2])

	_, names := countFlag(args, "--name")
	assert.Equal(t, []string{spec.Name}, names)

	_, labels := countFlag(args, "--label")
	assert.Equal(t, []string{"gpubox.user=42", "gpubox.managed=true"}, labels)

	_, dns := countFlag(args, "--dns")
	assert.Equal(t, []string{"8.8.8.8", "1.1.1.1"}, dns)

	_, env := countFlag(args, "-e")
	assert.Equal(t, []string{"ROOT_USER=root", "ROOT_PASSWORD=Ab3dE6gH"}, env)

	_, ports := countFlag(args, "-p")
	assert.Equal(t, []string{"20001:22", "20002:8888"}, ports)

	_, cpus := countFlag(args, "--cpus")
	assert.Equal(t, []string{"2"}, cpus)

	_, mem := countFlag(args, "--memory")
	assert.Equal(t, []string{"2g"}, mem)

	// image, then the bootstrap command
	tail := args[len(args)-4:]
	assert.Equal(t, "ubuntu:latest", tail[0])
	assert.Equal(t, []string{"bash", "-c"}, tail[1:3])
	script := tail[3]
	assert.Contains(t, script, "sshd")
	assert.Contains(t, script, "PermitRootLogin yes")
	assert.Contains(t, script, "--ip=0.0.0.0")
	assert.Contains(t, script, "--no-browser")
	assert.Contains(t, script, "--allow-root")
	assert.NotContains(t, script, spec.Password)
}

func TestBuildRunArgsFractionalCPU(t *testing.T) {
	spec := validSpec()
	spec.CPUs = 1.5
	args, err := BuildRunArgs(spec, BuildOptions{})
	require.NoError(t, err)
	_, cpus := countFlag(args, "--cpus")
	assert.Equal(t, []string{"1.5"}, cpus)
}

func TestRunSpecValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunSpec)
	}{
		{"missing image", func(s *RunSpec) { s.Image = "" }},
		{"flag as image", func(s *RunSpec) { s.Image = "--rm" }},
		{"image with space", func(s *RunSpec) { s.Image = "ubuntu latest" }},
		{"missing memory", func(s *RunSpec) { s.Memory = "" }},
		{"bad memory", func(s *RunSpec) { s.Memory = "lots" }},
		{"tiny memory", func(s *RunSpec) { s.Memory = "1m" }},
		{"zero cpus", func(s *RunSpec) { s.CPUs = 0 }},
		{"bad name", func(s *RunSpec) { s.Name = "a b" }},
		{"same ports", func(s *RunSpec) { s.JupyterPort = s.SSHPort }},
		{"port out of range", func(s *RunSpec) { s.SSHPort = 70000 }},
		{"empty password", func(s *RunSpec) { s.Password = "" }},
		{"multiline password", func(s *RunSpec) { s.Password = "a\nb" }},
	}

	require.NoError(t, validSpec().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)
			err := spec.Validate()
			assert.True(t, errors.Is(err, types.ErrValidation), "got %v", err)
		})
	}
}

func TestRunSpecFor(t *testing.T) {
	c := &types.Container{
		Name: "bob-1", ImageName: "pytorch/pytorch:latest", SSHPort: 20010, JupyterPort: 20011,
		Password: "pw123456", CPU: 4, RAM: "8g", GPU: "all", UserID: 9,
	}
	spec := RunSpecFor(c)
	args, err := BuildRunArgs(spec, BuildOptions{})
	require.NoError(t, err)
	assert.True(t, strings.Contains(joined(args), "--gpus all"))
	assert.Equal(t, c.ImageName, spec.Image)
	assert.Equal(t, c.UserID, spec.UserID)
}
