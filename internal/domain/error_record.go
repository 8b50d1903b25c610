package domain

import (
	"strings"
	"time"
)

// ErrorRecord is a single test failure for one unit.
type ErrorRecord struct {
	TrackID        string    `json:"track_id"`
	Family         string    `json:"family"`
	Process        string    `json:"process"`
	TestCode       string    `json:"test_code"`
	TestValue      *float64  `json:"test_value,omitempty"`
	LowerLimit     *float64  `json:"lower_limit,omitempty"`
	UpperLimit     *float64  `json:"upper_limit,omitempty"`
	SecondPassFail string    `json:"second_pass_fail"`
	ThirdPassFail  string    `json:"third_pass_fail"`
	Shift          Shift     `json:"shift"`
	IngestedAt     time.Time `json:"ingested_at"`
}

var collectionReplacer = strings.NewReplacer("/", "_", " ", "_")

// CollectionName maps a family to the name of the collection holding its
// records. The mapping is deterministic but lossy: "A/B" and "A B" collide.
func CollectionName(family string) string {
	return collectionReplacer.Replace(strings.TrimSpace(family))
}
