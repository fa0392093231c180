/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tun

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// statistics are monotonically increasing traffic counters. Mutated only via
// atomic add; Snapshot reads them without further synchronization, so a
// snapshot is best-effort, not a consistent cut.
type statistics struct {
	outOctets   atomic.Int64
	outPackets  atomic.Int64
	outDiscards atomic.Int64
	inOctets    atomic.Int64
	inPackets   atomic.Int64
	inDiscards  atomic.Int64
}

// StatisticsSnapshot is a best-effort counter snapshot.
type StatisticsSnapshot struct {
	OutOctets   int64
	OutPackets  int64
	OutDiscards int64
	InOctets    int64
	InPackets   int64
	InDiscards  int64
}

func (s *statistics) snapshot() StatisticsSnapshot {
	return StatisticsSnapshot{
		OutOctets:   s.outOctets.Load(),
		OutPackets:  s.outPackets.Load(),
		OutDiscards: s.outDiscards.Load(),
		InOctets:    s.inOctets.Load(),
		InPackets:   s.inPackets.Load(),
		InDiscards:  s.inDiscards.Load(),
	}
}

// Statistics returns a best-effort snapshot of the adapter's traffic
// counters.
func (a *Adapter) Statistics() StatisticsSnapshot {
	return a.stats.snapshot()
}

var (
	descSentBytes = prometheus.NewDesc(
		"tunshm_sent_bytes_total", "Bytes written to the send ring.",
		[]string{"adapter"}, nil)
	descSentPackets = prometheus.NewDesc(
		"tunshm_sent_packets_total", "Frames written to the send ring.",
		[]string{"adapter"}, nil)
	descSentDiscards = prometheus.NewDesc(
		"tunshm_sent_discards_total", "Outbound frames dropped.",
		[]string{"adapter"}, nil)
	descRecvBytes = prometheus.NewDesc(
		"tunshm_received_bytes_total", "Bytes indicated from the receive ring.",
		[]string{"adapter"}, nil)
	descRecvPackets = prometheus.NewDesc(
		"tunshm_received_packets_total", "Frames indicated from the receive ring.",
		[]string{"adapter"}, nil)
	descRecvDiscards = prometheus.NewDesc(
		"tunshm_received_discards_total", "Inbound frames dropped.",
		[]string{"adapter"}, nil)
)

type statsCollector struct {
	a *Adapter
}

// Collector exposes the adapter's traffic counters as a prometheus
// collector.
func (a *Adapter) Collector() prometheus.Collector {
	return &statsCollector{a: a}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descSentBytes
	ch <- descSentPackets
	ch <- descSentDiscards
	ch <- descRecvBytes
	ch <- descRecvPackets
	ch <- descRecvDiscards
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.a.Statistics()
	name := c.a.name
	ch <- prometheus.MustNewConstMetric(descSentBytes, prometheus.CounterValue, float64(s.OutOctets), name)
	ch <- prometheus.MustNewConstMetric(descSentPackets, prometheus.CounterValue, float64(s.OutPackets), name)
	ch <- prometheus.MustNewConstMetric(descSentDiscards, prometheus.CounterValue, float64(s.OutDiscards), name)
	ch <- prometheus.MustNewConstMetric(descRecvBytes, prometheus.CounterValue, float64(s.InOctets), name)
	ch <- prometheus.MustNewConstMetric(descRecvPackets, prometheus.CounterValue, float64(s.InPackets), name)
	ch <- prometheus.MustNewConstMetric(descRecvDiscards, prometheus.CounterValue, float64(s.InDiscards), name)
}
