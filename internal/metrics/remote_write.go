package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang/snappy"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"
)

// StartRemoteWrite pushes the registry to Mimir every flush interval until
// ctx is cancelled. It returns immediately when remote write is disabled.
func (c *Collector) StartRemoteWrite(ctx context.Context, logger *zap.Logger) {
	if c == nil || !c.config.Enabled || c.config.URL == "" {
		return
	}

	interval := c.config.FlushInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 30 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeToMimir(ctx, client); err != nil {
				logger.Warn("Remote write failed", zap.Error(err))
			}
		}
	}
}

func (c *Collector) writeToMimir(ctx context.Context, client *http.Client) error {
	mfs, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	series := metricsToSeries(mfs, time.Now())
	if len(series) == 0 {
		return nil
	}

	batchSize := c.config.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	for i := 0; i < len(series); i += batchSize {
		end := i + batchSize
		if end > len(series) {
			end = len(series)
		}
		if err := c.sendBatch(ctx, client, series[i:end]); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}

	return nil
}

func metricsToSeries(mfs []*dto.MetricFamily, now time.Time) []prompb.TimeSeries {
	var series []prompb.TimeSeries
	ts := now.UnixNano() / int64(time.Millisecond)

	for _, mf := range mfs {
		for _, m := range mf.Metric {
			labels := make([]prompb.Label, 0, len(m.Label)+1)
			labels = append(labels, prompb.Label{Name: "__name__", Value: mf.GetName()})
			for _, l := range m.Label {
				labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
			}

			var value float64
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				value = m.Counter.GetValue()
			case dto.MetricType_GAUGE:
				value = m.Gauge.GetValue()
			case dto.MetricType_HISTOGRAM:
				hist := m.Histogram
				for _, bucket := range hist.Bucket {
					bucketLabels := append([]prompb.Label{}, labels...)
					bucketLabels[0].Value = mf.GetName() + "_bucket"
					bucketLabels = append(bucketLabels, prompb.Label{
						Name:  "le",
						Value: fmt.Sprintf("%g", bucket.GetUpperBound()),
					})
					series = append(series, prompb.TimeSeries{
						Labels:  bucketLabels,
						Samples: []prompb.Sample{{Value: float64(bucket.GetCumulativeCount()), Timestamp: ts}},
					})
				}
				countLabels := append([]prompb.Label{}, labels...)
				countLabels[0].Value = mf.GetName() + "_count"
				sumLabels := append([]prompb.Label{}, labels...)
				sumLabels[0].Value = mf.GetName() + "_sum"
				series = append(series,
					prompb.TimeSeries{Labels: countLabels, Samples: []prompb.Sample{{Value: float64(hist.GetSampleCount()), Timestamp: ts}}},
					prompb.TimeSeries{Labels: sumLabels, Samples: []prompb.Sample{{Value: hist.GetSampleSum(), Timestamp: ts}}},
				)
				continue
			default:
				continue
			}

			series = append(series, prompb.TimeSeries{
				Labels:  labels,
				Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
			})
		}
	}

	return series
}

func (c *Collector) sendBatch(ctx context.Context, client *http.Client, series []prompb.TimeSeries) error {
	req := &prompb.WriteRequest{Timeseries: series}

	data, err := req.Marshal()
	if err != nil {
		return err
	}

	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/api/v1/push", bytes.NewReader(compressed))
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	httpReq.Header.Set(c.config.TenantHeader, c.config.OrgID)
	if c.config.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write failed: %s", resp.Status)
	}

	return nil
}
