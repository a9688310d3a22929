package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsReader    int64
	errorsPublisher int64
	warnsReader     int64
	warnsPublisher  int64
	frameReads      int64
	eventsDecoded   int64
	eventsSkipped   int64
	eventsPublished int64
	heartbeats      int64
	clientConnects  int64
	clientDrops     int64
	retries         int64
	channels        sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&warnsReader, 1)
	} else if strings.Contains(component, "publisher") {
		atomic.AddInt64(&warnsPublisher, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&errorsReader, 1)
	} else if strings.Contains(component, "publisher") {
		atomic.AddInt64(&errorsPublisher, 1)
	}
}

func IncrementFrameRead(size int) {
	atomic.AddInt64(&frameReads, 1)
	recordChannel("binance_ws", size)
}

func IncrementEventDecoded() {
	atomic.AddInt64(&eventsDecoded, 1)
}

func IncrementEventSkipped() {
	atomic.AddInt64(&eventsSkipped, 1)
}

func IncrementEventPublished(size int) {
	atomic.AddInt64(&eventsPublished, 1)
	recordChannel("ipc_publish", size)
}

func IncrementHeartbeat() {
	atomic.AddInt64(&heartbeats, 1)
}

func IncrementClientConnect() {
	atomic.AddInt64(&clientConnects, 1)
}

func IncrementClientDrop() {
	atomic.AddInt64(&clientDrops, 1)
}

func IncrementRetryCount() {
	atomic.AddInt64(&retries, 1)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and feed statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_reader":    atomic.LoadInt64(&errorsReader),
		"errors_publisher": atomic.LoadInt64(&errorsPublisher),
		"warns_reader":     atomic.LoadInt64(&warnsReader),
		"warns_publisher":  atomic.LoadInt64(&warnsPublisher),
		"frame_reads":      atomic.LoadInt64(&frameReads),
		"events_decoded":   atomic.LoadInt64(&eventsDecoded),
		"events_skipped":   atomic.LoadInt64(&eventsSkipped),
		"events_published": atomic.LoadInt64(&eventsPublished),
		"heartbeats":       atomic.LoadInt64(&heartbeats),
		"client_connects":  atomic.LoadInt64(&clientConnects),
		"client_drops":     atomic.LoadInt64(&clientDrops),
		"retries":          atomic.LoadInt64(&retries),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memStats.Used) / 1024 / 1024,
		"disk_mb":          int64(diskStats.Used) / 1024 / 1024,
		"channels":         channelData,
		"net_bytes_sent":   int64(bytesSent),
		"net_bytes_recv":   int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Feed-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-ErrorsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_reader"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-ErrorsPublisher"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_publisher"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-WarnsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_reader"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-WarnsPublisher"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_publisher"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-FrameReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["frame_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-EventsDecoded"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["events_decoded"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-EventsSkipped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["events_skipped"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-EventsPublished"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["events_published"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-Heartbeats"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["heartbeats"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-ClientConnects"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["client_connects"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-ClientDrops"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["client_drops"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-Retries"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["retries"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Feed-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Feed-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Feed-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
