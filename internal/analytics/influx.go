// Package analytics 把计数事件写入时序库，作为访问量的二级分析数据。
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/forumpulse/internal/service"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

const visitMeasurement = "visit"

// InfluxConfig 描述 InfluxDB 2.x 连接。
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink 实现 service.VisitSink。
type InfluxSink struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
}

// NewInfluxSink 创建写入客户端，精度为秒。
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	client.Options().SetPrecision(time.Second)
	return &InfluxSink{client: client, writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket)}
}

// RecordVisit 以 scope 为 tag 写入一个 visit 点。
func (s *InfluxSink) RecordVisit(ctx context.Context, event service.VisitEvent) error {
	p := influxdb2.NewPoint(
		visitMeasurement,
		map[string]string{"scope": event.Scope},
		map[string]interface{}{"actorId": event.ActorID, "count": event.Count},
		event.At)

	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write visit point: %w", err)
	}
	return nil
}

// Close 释放客户端。
func (s *InfluxSink) Close() {
	s.client.Close()
}
