package engine

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/cuemby/gpubox/pkg/types"
	"github.com/docker/go-units"
)

// Container-side service ports
const (
	ContainerSSHPort     = 22
	ContainerJupyterPort = 8888
)

// Environment variables read by the bootstrap script
const (
	EnvRootUser     = "ROOT_USER"
	EnvRootPassword = "ROOT_PASSWORD"
)

// minMemoryBytes is the smallest memory limit the engine accepts
const minMemoryBytes = 6 * 1024 * 1024

var (
	imagePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/:@-]*$`)
	namePattern  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	// all | <count> | device=<id>[,<id>...]
	gpuPattern = regexp.MustCompile(`^(all|[0-9]+|device=[a-zA-Z0-9-]+(,[a-zA-Z0-9-]+)*)$`)
)

// bootstrapScript installs and starts sshd, then runs Jupyter in the
// foreground. Credentials come from the environment, never from the script text.
const bootstrapScript = `if ! command -v sshd >/dev/null 2>&1; then
  apt-get update && DEBIAN_FRONTEND=noninteractive apt-get install -y openssh-server
fi
mkdir -p /run/sshd
echo "${ROOT_USER}:${ROOT_PASSWORD}" | chpasswd
sed -i 's/^#\?PermitRootLogin.*/PermitRootLogin yes/' /etc/ssh/sshd_config
sed -i 's/^#\?PasswordAuthentication.*/PasswordAuthentication yes/' /etc/ssh/sshd_config
/usr/sbin/sshd
if ! command -v jupyter >/dev/null 2>&1; then
  pip install --no-cache-dir notebook || (apt-get install -y python3-pip && pip3 install --no-cache-dir notebook)
fi
exec jupyter notebook --ip=0.0.0.0 --port=8888 --no-browser --allow-root`

// RunSpec describes a container to create
type RunSpec struct {
	Image       string
	Memory      string
	CPUs        float64
	GPUs        string
	Name        string
	UserID      uint64
	SSHPort     int
	JupyterPort int
	Password    string
}

// RunSpecFor rebuilds the creation parameters of a persisted container
func RunSpecFor(c *types.Container) RunSpec {
	return RunSpec{
		Image:       c.ImageName,
		Memory:      c.RAM,
		CPUs:        c.CPU,
		GPUs:        c.GPU,
		Name:        c.Name,
		UserID:      c.UserID,
		SSHPort:     c.SSHPort,
		JupyterPort: c.JupyterPort,
		Password:    c.Password,
	}
}

// BuildOptions carries configuration applied to every container
type BuildOptions struct {
	DNSServers []string
}

// Validate checks every field of the spec without touching the engine
func (s RunSpec) Validate() error {
	if err := ValidateImage(s.Image); err != nil {
		return err
	}
	if err := ValidateMemory(s.Memory); err != nil {
		return err
	}
	if s.CPUs <= 0 {
		return types.Validationf("cpus must be positive")
	}
	if err := ValidateGPU(s.GPUs); err != nil {
		return err
	}
	if !namePattern.MatchString(s.Name) {
		return types.Validationf("invalid container name %q", s.Name)
	}
	if !validPort(s.SSHPort) || !validPort(s.JupyterPort) {
		return types.Validationf("invalid host ports %d/%d", s.SSHPort, s.JupyterPort)
	}
	if s.SSHPort == s.JupyterPort {
		return types.Validationf("ssh and jupyter ports must differ")
	}
	if s.Password == "" || strings.ContainsAny(s.Password, "\r\n") {
		return types.Validationf("invalid password")
	}
	return nil
}

// ValidateImage checks an image reference for characters the engine would
// interpret as flags or that could never form a reference
func ValidateImage(image string) error {
	if image == "" {
		return types.Validationf("image is required")
	}
	if len(image) > 255 || !imagePattern.MatchString(image) {
		return types.Validationf("invalid image reference %q", image)
	}
	return nil
}

// ValidateMemory checks an engine memory limit such as "2g" or "512m"
func ValidateMemory(memory string) error {
	if memory == "" {
		return types.Validationf("memoryLimit is required")
	}
	n, err := units.RAMInBytes(memory)
	if err != nil {
		return types.Validationf("invalid memoryLimit %q", memory)
	}
	if n < minMemoryBytes {
		return types.Validationf("memoryLimit %q is below the 6MB minimum", memory)
	}
	return nil
}

// ValidateGPU checks a GPU specification. "none" in any case disables GPUs.
func ValidateGPU(gpus string) error {
	if gpus == "" {
		return types.Validationf("gpus is required")
	}
	if types.GPUDisabled(gpus) {
		return nil
	}
	if !gpuPattern.MatchString(gpus) {
		return types.Validationf("invalid gpus %q: expected none, all, a count or device=<id>[,<id>]", gpus)
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// BuildRunArgs returns the engine argument vector that creates the container
// described by spec. The vector is passed to the engine without a shell.
func BuildRunArgs(spec RunSpec, opts BuildOptions) ([]string, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	args := []string{
		"run", "-d", "--quiet",
		"--name", spec.Name,
		"--label", LabelUser + "=" + strconv.FormatUint(spec.UserID, 10),
		"--label", LabelManaged + "=true",
	}
	for _, dns := range opts.DNSServers {
		args = slices.Concat(args, []string{"--dns", dns})
	}
	args = slices.Concat(args, []string{
		"-e", EnvRootUser + "=root",
		"-e", EnvRootPassword + "=" + spec.Password,
		"-p", strconv.Itoa(spec.SSHPort) + ":" + strconv.Itoa(ContainerSSHPort),
		"-p", strconv.Itoa(spec.JupyterPort) + ":" + strconv.Itoa(ContainerJupyterPort),
		"--cpus", strconv.FormatFloat(spec.CPUs, 'f', -1, 64),
		"--memory", spec.Memory,
	})
	if !types.GPUDisabled(spec.GPUs) {
		args = slices.Concat(args, []string{"--gpus", spec.GPUs})
	}
	args = slices.Concat(args, []string{spec.Image, "bash", "-c", bootstrapScript})
	return args, nil
}
