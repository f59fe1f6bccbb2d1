package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
)

// HostCollector exports host resource usage at scrape time. A reading that
// fails is logged and left out of the scrape.
type HostCollector struct {
	diskPath string
	logger   zerolog.Logger

	cpuUsage    *prometheus.Desc
	memoryUsage *prometheus.Desc
	diskUsage   *prometheus.Desc
}

// NewHostCollector reports disk usage for the filesystem holding diskPath.
func NewHostCollector(diskPath string, logger zerolog.Logger) *HostCollector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostCollector{
		diskPath: diskPath,
		logger:   logger,
		cpuUsage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "host", "cpu_used_percent"),
			"Percentage of CPU utilization across all cores.", nil, nil),
		memoryUsage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "host", "memory_used_percent"),
			"Percentage of used virtual memory.", nil, nil),
		diskUsage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "host", "disk_used_percent"),
			"Percentage of disk space used.", []string{"path"}, nil),
	}
}

func (c *HostCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuUsage
	ch <- c.memoryUsage
	ch <- c.diskUsage
}

func (c *HostCollector) Collect(ch chan<- prometheus.Metric) {
	cpuPercentages, err := cpu.Percent(0, false)
	switch {
	case err != nil:
		c.logger.Error().Err(err).Msg("Failed to get CPU usage")
	case len(cpuPercentages) == 0:
		c.logger.Warn().Msg("CPU usage data is empty")
	default:
		ch <- prometheus.MustNewConstMetric(c.cpuUsage, prometheus.GaugeValue, cpuPercentages[0])
	}

	if memStats, err := mem.VirtualMemory(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to retrieve memory statistics")
	} else {
		ch <- prometheus.MustNewConstMetric(c.memoryUsage, prometheus.GaugeValue, memStats.UsedPercent)
	}

	if diskStats, err := disk.Usage(c.diskPath); err != nil {
		c.logger.Error().Err(err).Str("path", c.diskPath).Msg("Failed to get disk usage")
	} else {
		ch <- prometheus.MustNewConstMetric(c.diskUsage, prometheus.GaugeValue, diskStats.UsedPercent, c.diskPath)
	}
}
