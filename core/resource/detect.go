package resource

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

const (
	cgroupV2CPUMax      = "/sys/fs/cgroup/cpu.max"
	cgroupV1CPUQuota    = "/sys/fs/cgroup/cpu/cpu.cfs_quota_us"
	cgroupV1CPUPeriod   = "/sys/fs/cgroup/cpu/cpu.cfs_period_us"
	nvidiaGPUDir        = "/proc/driver/nvidia/gpus"
	gpuMemoryEnvVar     = "AUTOSTACK_GPU_MEMORY_MB"
	defaultGPUMemoryMB  = 8192
	gpuCountOverrideVar = "AUTOSTACK_GPU_COUNT"
)

// Detect probes CPU and GPU capacity. On cgroup-limited hosts the
// constrained core count is reported, not the physical count: silently
// overcounting would over-subscribe co-located jobs. If a cgroup limit
// file exists but cannot be interpreted, detection is inconclusive and a
// conservative single-core estimate is returned. Detection never blocks
// and never fails.
func Detect() Parallelism {
	return Parallelism{
		CPUCores: detectCPUs(),
		GPUs:     detectGPUs(),
	}
}

func detectCPUs() int {
	host := runtime.NumCPU()

	if quota, ok, conclusive := cgroupCPULimit(cgroupV2CPUMax, readCgroupV2); !conclusive {
		return 1
	} else if ok && quota < host {
		return quota
	}

	if quota, ok, conclusive := cgroupCPULimit(cgroupV1CPUQuota, readCgroupV1); !conclusive {
		return 1
	} else if ok && quota < host {
		return quota
	}

	return host
}

// cgroupCPULimit reads one cgroup limit file. Returns the core limit, a
// flag for whether a limit is set, and whether detection was conclusive.
// A missing file is conclusive (no cgroup of that version); a malformed
// file is not.
func cgroupCPULimit(path string, parse func(string) (int, bool, bool)) (int, bool, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, true
	}
	return parse(strings.TrimSpace(string(data)))
}

// readCgroupV2 parses the "quota period" form of cpu.max. "max" means
// unlimited.
func readCgroupV2(s string) (int, bool, bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, false, false
	}
	if fields[0] == "max" {
		return 0, false, true
	}
	quota, err1 := strconv.Atoi(fields[0])
	period, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || period <= 0 || quota <= 0 {
		return 0, false, false
	}
	return ceilDiv(quota, period), true, true
}

// readCgroupV1 parses cpu.cfs_quota_us; -1 means unlimited. The period is
// read from its sibling file.
func readCgroupV1(s string) (int, bool, bool) {
	quota, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, false
	}
	if quota < 0 {
		return 0, false, true
	}
	data, err := os.ReadFile(cgroupV1CPUPeriod)
	if err != nil {
		return 0, false, false
	}
	period, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || period <= 0 {
		return 0, false, false
	}
	return ceilDiv(quota, period), true, true
}

func ceilDiv(a, b int) int {
	n := (a + b - 1) / b
	if n < 1 {
		return 1
	}
	return n
}

// detectGPUs enumerates NVIDIA devices from procfs. The count and per
// device memory may be overridden via environment for constrained test
// environments. Absence of devices is a normal result, not an error.
func detectGPUs() []GPU {
	if v := os.Getenv(gpuCountOverrideVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil
		}
		return makeGPUs(n)
	}

	entries, err := os.ReadDir(nvidiaGPUDir)
	if err != nil {
		return nil
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			count++
		}
	}
	return makeGPUs(count)
}

func makeGPUs(n int) []GPU {
	memMB := defaultGPUMemoryMB
	if v := os.Getenv(gpuMemoryEnvVar); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m > 0 {
			memMB = m
		}
	}
	gpus := make([]GPU, n)
	for i := range gpus {
		gpus[i] = GPU{Index: i, MemoryMB: memMB}
	}
	return gpus
}
