// Package analytics aggregates object-store usage into size, category, and
// cost figures. It is read-only and independent of the item tree.
package analytics

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/skyvault/backend/internal/objectstore"
)

const (
	topFilesLimit = 10
	bytesPerGB    = 1024 * 1024 * 1024
)

// Pricing is the fixed rate table for the cost estimate.
type Pricing struct {
	StorageGBMonth float64 // per GB-month
	PutRequest     float64 // per request
	GetRequest     float64 // per request
	TransferGB     float64 // per GB beyond the free allowance
	FreeTransferGB float64
}

// DefaultPricing mirrors S3 Standard in us-east-1.
func DefaultPricing() Pricing {
	return Pricing{
		StorageGBMonth: 0.023,
		PutRequest:     0.005 / 1000,
		GetRequest:     0.0004 / 1000,
		TransferGB:     0.09,
		FreeTransferGB: 100,
	}
}

// RequestCounts are externally supplied request totals; zero when the
// metrics source is unavailable.
type RequestCounts struct {
	Put float64
	Get float64
}

// TypeStats accumulates per-category figures.
type TypeStats struct {
	Count int64 `json:"count"`
	Size  int64 `json:"size"`
}

// CostBreakdown itemizes the monthly estimate.
type CostBreakdown struct {
	Storage      float64 `json:"storage"`
	Requests     float64 `json:"requests"`
	DataTransfer float64 `json:"dataTransfer"`
}

// StorageMetrics is the aggregation result.
type StorageMetrics struct {
	TotalSize            int64                    `json:"totalSize"`
	TotalSizeGB          float64                  `json:"totalSizeGB"`
	ObjectCount          int64                    `json:"objectCount"`
	EstimatedMonthlyCost float64                  `json:"estimatedMonthlyCost"`
	CostBreakdown        CostBreakdown            `json:"costBreakdown"`
	ByType               map[string]TypeStats     `json:"byType"`
	LargestFiles         []objectstore.ObjectInfo `json:"largestFiles"`
	StorageClass         map[string]int64         `json:"storageClass"`
}

// Aggregator scans the object store and prices the result.
type Aggregator struct {
	objects objectstore.ObjectStore
	pricing Pricing
}

// New returns an Aggregator using the given pricing table.
func New(objects objectstore.ObjectStore, pricing Pricing) *Aggregator {
	return &Aggregator{objects: objects, pricing: pricing}
}

// Collect walks every object and returns the aggregated metrics.
func (a *Aggregator) Collect(ctx context.Context, requests RequestCounts) (*StorageMetrics, error) {
	m := &StorageMetrics{
		ByType:       make(map[string]TypeStats),
		StorageClass: make(map[string]int64),
	}
	var all []objectstore.ObjectInfo

	err := a.objects.List(ctx, func(obj objectstore.ObjectInfo) error {
		m.TotalSize += obj.Size
		m.ObjectCount++

		class := obj.StorageClass
		if class == "" {
			class = "STANDARD"
		}
		m.StorageClass[class] += obj.Size

		t := fileTypeOf(obj.Key)
		stats := m.ByType[t]
		stats.Count++
		stats.Size += obj.Size
		m.ByType[t] = stats

		all = append(all, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Largest first; ties resolve by key so the output is stable.
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Size != all[j].Size {
			return all[i].Size > all[j].Size
		}
		return all[i].Key < all[j].Key
	})
	if len(all) > topFilesLimit {
		all = all[:topFilesLimit]
	}
	m.LargestFiles = all

	m.TotalSizeGB = round2(float64(m.TotalSize) / bytesPerGB)

	storageCost := float64(m.TotalSize) / bytesPerGB * a.pricing.StorageGBMonth
	requestCost := requests.Put*a.pricing.PutRequest + requests.Get*a.pricing.GetRequest
	transferGB := math.Max(0, float64(m.TotalSize)/bytesPerGB-a.pricing.FreeTransferGB)
	transferCost := transferGB * a.pricing.TransferGB

	m.CostBreakdown = CostBreakdown{
		Storage:      round2(storageCost),
		Requests:     round4(requestCost),
		DataTransfer: round2(transferCost),
	}
	m.EstimatedMonthlyCost = round2(storageCost + requestCost + transferCost)
	return m, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// fileTypeOf buckets an object key by its extension.
func fileTypeOf(key string) string {
	idx := strings.LastIndex(key, ".")
	if idx < 0 || idx == len(key)-1 {
		return "Other"
	}
	switch strings.ToLower(key[idx+1:]) {
	case "jpg", "jpeg", "png", "gif", "bmp", "svg", "webp":
		return "Images"
	case "mp4", "avi", "mov", "wmv", "flv", "mkv", "webm":
		return "Videos"
	case "mp3", "wav", "flac", "ogg", "m4a":
		return "Audio"
	case "doc", "docx", "odt", "rtf":
		return "Documents"
	case "pdf":
		return "PDFs"
	case "txt", "md", "csv", "log":
		return "Text"
	default:
		return "Other"
	}
}
