// spdm-go
// Copyright (C) 2025 the spdm-go authors
//
// This file is part of spdm-go.
//
// spdm-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// spdm-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with spdm-go. If not, see <https://www.gnu.org/licenses/>.


package metrics

import (
	"sync"
	"time"
)

// MetricsCollector collects lightweight in-process metrics for a single
// engine instance, independent of the process-wide Prometheus collectors
// registered elsewhere in this package.
type MetricsCollector struct {
	mu sync.RWMutex

	// Counters
	SignatureCount       int64
	VerificationCount    int64
	SuccessfulVerifies   int64
	FailedVerifies       int64
	CertChainLookups     int64
	CertChainCacheHits   int64
	CertChainCacheMisses int64
	TransportCalls       int64
	TransportErrors      int64

	// Timing metrics (in microseconds)
	SignatureTimes      []int64
	VerificationTimes   []int64
	TransportLatencies  []int64
	CertChainLookupTimes []int64

	// Start time for uptime calculation
	startTime time.Time

	// Configuration
	maxTimingSamples int
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime:        time.Now(),
		maxTimingSamples: 1000, // Keep last 1000 samples for each timing metric
	}
}

// RecordSignature records a signature operation
func (mc *MetricsCollector) RecordSignature(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.SignatureCount++
	mc.recordTiming(&mc.SignatureTimes, duration)
}

// RecordVerification records a verification operation
func (mc *MetricsCollector) RecordVerification(success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.VerificationCount++
	if success {
		mc.SuccessfulVerifies++
	} else {
		mc.FailedVerifies++
	}
	mc.recordTiming(&mc.VerificationTimes, duration)
}

// RecordCertChainLookup records a certificate chain lookup against a slot,
// distinguishing a cached chain from one freshly assembled from storage.
func (mc *MetricsCollector) RecordCertChainLookup(cached bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.CertChainLookups++
	if cached {
		mc.CertChainCacheHits++
	} else {
		mc.CertChainCacheMisses++
	}
	mc.recordTiming(&mc.CertChainLookupTimes, duration)
}

// RecordTransportCall records a Transport.Send/Receive round trip.
func (mc *MetricsCollector) RecordTransportCall(success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.TransportCalls++
	if !success {
		mc.TransportErrors++
	}
	mc.recordTiming(&mc.TransportLatencies, duration)
}

// recordTiming records a timing sample
func (mc *MetricsCollector) recordTiming(timings *[]int64, duration time.Duration) {
	microseconds := duration.Microseconds()
	*timings = append(*timings, microseconds)

	// Keep only last N samples
	if len(*timings) > mc.maxTimingSamples {
		*timings = (*timings)[len(*timings)-mc.maxTimingSamples:]
	}
}

// GetSnapshot returns a snapshot of current metrics
func (mc *MetricsCollector) GetSnapshot() *MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return &MetricsSnapshot{
		Timestamp:               time.Now(),
		Uptime:                  time.Since(mc.startTime),
		SignatureCount:          mc.SignatureCount,
		VerificationCount:       mc.VerificationCount,
		SuccessfulVerifies:      mc.SuccessfulVerifies,
		FailedVerifies:          mc.FailedVerifies,
		CertChainLookups:        mc.CertChainLookups,
		CertChainCacheHits:      mc.CertChainCacheHits,
		CertChainCacheMisses:    mc.CertChainCacheMisses,
		TransportCalls:          mc.TransportCalls,
		TransportErrors:         mc.TransportErrors,
		AvgSignatureTime:        calculateAverage(mc.SignatureTimes),
		AvgVerificationTime:     calculateAverage(mc.VerificationTimes),
		AvgTransportTime:        calculateAverage(mc.TransportLatencies),
		AvgCertChainLookupTime:  calculateAverage(mc.CertChainLookupTimes),
		P95SignatureTime:        calculatePercentile(mc.SignatureTimes, 95),
		P95VerificationTime:     calculatePercentile(mc.VerificationTimes, 95),
		P95TransportTime:        calculatePercentile(mc.TransportLatencies, 95),
		P95CertChainLookupTime:  calculatePercentile(mc.CertChainLookupTimes, 95),
	}
}

// Reset resets all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.SignatureCount = 0
	mc.VerificationCount = 0
	mc.SuccessfulVerifies = 0
	mc.FailedVerifies = 0
	mc.CertChainLookups = 0
	mc.CertChainCacheHits = 0
	mc.CertChainCacheMisses = 0
	mc.TransportCalls = 0
	mc.TransportErrors = 0

	mc.SignatureTimes = nil
	mc.VerificationTimes = nil
	mc.TransportLatencies = nil
	mc.CertChainLookupTimes = nil

	mc.startTime = time.Now()
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	Timestamp time.Time
	Uptime    time.Duration

	// Counters
	SignatureCount       int64
	VerificationCount    int64
	SuccessfulVerifies   int64
	FailedVerifies       int64
	CertChainLookups     int64
	CertChainCacheHits   int64
	CertChainCacheMisses int64
	TransportCalls       int64
	TransportErrors      int64

	// Timing averages (microseconds)
	AvgSignatureTime       float64
	AvgVerificationTime    float64
	AvgTransportTime       float64
	AvgCertChainLookupTime float64

	// 95th percentile timings (microseconds)
	P95SignatureTime       int64
	P95VerificationTime    int64
	P95TransportTime       int64
	P95CertChainLookupTime int64
}

// GetCertChainCacheHitRate returns the certificate chain cache hit rate as a percentage
func (ms *MetricsSnapshot) GetCertChainCacheHitRate() float64 {
	total := ms.CertChainCacheHits + ms.CertChainCacheMisses
	if total == 0 {
		return 0
	}
	return float64(ms.CertChainCacheHits) / float64(total) * 100
}

// GetVerificationSuccessRate returns the verification success rate as a percentage
func (ms *MetricsSnapshot) GetVerificationSuccessRate() float64 {
	if ms.VerificationCount == 0 {
		return 0
	}
	return float64(ms.SuccessfulVerifies) / float64(ms.VerificationCount) * 100
}

// GetTransportErrorRate returns the transport error rate as a percentage
func (ms *MetricsSnapshot) GetTransportErrorRate() float64 {
	if ms.TransportCalls == 0 {
		return 0
	}
	return float64(ms.TransportErrors) / float64(ms.TransportCalls) * 100
}

// Helper functions

func calculateAverage(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func calculatePercentile(values []int64, percentile int) int64 {
	if len(values) == 0 {
		return 0
	}

	// Simple implementation - for production, use a proper percentile algorithm
	// This is an approximation
	index := len(values) * percentile / 100
	if index >= len(values) {
		index = len(values) - 1
	}

	// Create a copy and sort (simple bubble sort for small datasets)
	sorted := make([]int64, len(values))
	copy(sorted, values)

	for i := 0; i < len(sorted)-1; i++ {
		for j := 0; j < len(sorted)-i-1; j++ {
			if sorted[j] > sorted[j+1] {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}

	return sorted[index]
}

// Global metrics collector instance
var globalCollector = NewMetricsCollector()

// GetGlobalCollector returns the global metrics collector
func GetGlobalCollector() *MetricsCollector {
	return globalCollector
}
