package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/gpubox/pkg/log"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/docker/go-units"
)

// inspectFormat prints one colon-delimited record per container
const inspectFormat = "{{.Name}}:{{.State.Status}}:{{.State.Pid}}"

// jsonFormat prints one JSON object per line
const jsonFormat = "{{json .}}"

// statsLine is one line of the engine stats output
type statsLine struct {
	BlockIO   string `json:"BlockIO"`
	CPUPerc   string `json:"CPUPerc"`
	Container string `json:"Container"`
	ID        string `json:"ID"`
	MemPerc   string `json:"MemPerc"`
	MemUsage  string `json:"MemUsage"`
	Name      string `json:"Name"`
	NetIO     string `json:"NetIO"`
	PIDs      string `json:"PIDs"`
}

// searchLine is one line of the engine image search output
type searchLine struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`
	StarCount   string `json:"StarCount"`
	IsOfficial  string `json:"IsOfficial"`
}

// lines splits output into trimmed non-empty lines
func lines(b []byte) [][]byte {
	var out [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(b))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) > 0 {
			out = append(out, append([]byte(nil), line...))
		}
	}
	return out
}

// parseStatsLine decodes one stats record
func parseStatsLine(line []byte) (types.StatsSnapshot, error) {
	var raw statsLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return types.StatsSnapshot{}, err
	}
	name := raw.Name
	if name == "" {
		name = raw.Container
	}
	if name == "" {
		return types.StatsSnapshot{}, fmt.Errorf("stats record without a name")
	}

	snap := types.StatsSnapshot{
		Name:     name,
		ID:       raw.ID,
		CPUPerc:  raw.CPUPerc,
		MemUsage: raw.MemUsage,
		MemPerc:  raw.MemPerc,
		NetIO:    raw.NetIO,
		BlockIO:  raw.BlockIO,
		PIDs:     raw.PIDs,
	}
	// "1.5MiB / 7.7GiB"
	if used, limit, ok := strings.Cut(raw.MemUsage, "/"); ok {
		if n, err := units.RAMInBytes(strings.TrimSpace(used)); err == nil {
			snap.MemBytes = n
		}
		if n, err := units.RAMInBytes(strings.TrimSpace(limit)); err == nil {
			snap.MemLimitB = n
		}
	}
	return snap, nil
}

// parseStats decodes stats output, skipping records that do not parse
func parseStats(out []byte) map[string]types.StatsSnapshot {
	logger := log.WithComponent("engine")
	result := make(map[string]types.StatsSnapshot)
	for _, line := range lines(out) {
		snap, err := parseStatsLine(line)
		if err != nil {
			logger.Warn().Err(err).Str("line", string(line)).Msg("Skipping unparsable stats record")
			continue
		}
		result[snap.Name] = snap
	}
	return result
}

// parseInspectLine decodes "/name:state:pid"
func parseInspectLine(line string) (types.StatusSnapshot, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 3 {
		return types.StatusSnapshot{}, fmt.Errorf("expected name:state:pid, got %d fields", len(parts))
	}
	name := strings.TrimPrefix(parts[0], "/")
	if name == "" {
		return types.StatusSnapshot{}, fmt.Errorf("inspect record without a name")
	}
	if parts[1] == "" {
		return types.StatusSnapshot{}, fmt.Errorf("inspect record without a state")
	}
	pid, err := strconv.Atoi(parts[2])
	if err != nil {
		return types.StatusSnapshot{}, fmt.Errorf("invalid pid %q", parts[2])
	}
	return types.StatusSnapshot{
		Name:  name,
		State: types.ContainerState(parts[1]),
		Pid:   pid,
	}, nil
}

// parseInspect decodes inspect output, skipping records that do not parse
func parseInspect(out []byte) map[string]types.StatusSnapshot {
	logger := log.WithComponent("engine")
	result := make(map[string]types.StatusSnapshot)
	for _, line := range lines(out) {
		snap, err := parseInspectLine(string(line))
		if err != nil {
			logger.Warn().Err(err).Str("line", string(line)).Msg("Skipping unparsable inspect record")
			continue
		}
		result[snap.Name] = snap
	}
	return result
}

// parseSearch decodes image search output, skipping records that do not parse
func parseSearch(out []byte) []types.ImageSearchResult {
	logger := log.WithComponent("engine")
	var results []types.ImageSearchResult
	for _, line := range lines(out) {
		var raw searchLine
		if err := json.Unmarshal(line, &raw); err != nil || raw.Name == "" {
			logger.Warn().Str("line", string(line)).Msg("Skipping unparsable search record")
			continue
		}
		results = append(results, types.ImageSearchResult{
			Name:        raw.Name,
			Description: raw.Description,
			Stars:       raw.StarCount,
			Official:    raw.IsOfficial == "[OK]" || strings.EqualFold(raw.IsOfficial, "true"),
		})
	}
	return results
}

// parseNames decodes one container name per line
func parseNames(out []byte) []string {
	var names []string
	for _, line := range lines(out) {
		names = append(names, strings.TrimPrefix(string(line), "/"))
	}
	return names
}
