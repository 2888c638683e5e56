// Package resource defines the normalized resource envelope emitted by Kartta.
package resource

import (
	"encoding/json"
	"time"
)

// Resource is the canonical record of one discovered cloud resource.
// Identity fields are fixed by Builder.Build; only the supplementary
// configuration and the derived size fields change afterwards.
type Resource struct {
	documentID    string
	identity      string
	resourceName  string
	resourceID    string
	resourceType  string
	configuration json.RawMessage
	supplementary *Supplementary
	accountID     string
	region        string
	createdAt     *time.Time
	discoveredAt  time.Time

	sizeInBytes    *int64
	maxSizeInBytes *int64
}

// DocumentID is unique per resource and lets consumers upsert idempotently.
func (r *Resource) DocumentID() string { return r.documentID }

// Identity returns the globally unique identifier (ARN or synthesized).
func (r *Resource) Identity() string { return r.identity }

// ResourceName returns the human-readable name.
func (r *Resource) ResourceName() string { return r.resourceName }

// ResourceID returns the provider-native id.
func (r *Resource) ResourceID() string { return r.resourceID }

// ResourceType returns the taxonomy string, e.g. "AWS::EC2::Instance".
func (r *Resource) ResourceType() string { return r.resourceType }

// Configuration returns the serialized primary API response.
func (r *Resource) Configuration() json.RawMessage { return r.configuration }

// Supplementary returns the additive sub-lookup map.
func (r *Resource) Supplementary() *Supplementary { return r.supplementary }

// AccountID returns the owning account or project.
func (r *Resource) AccountID() string { return r.accountID }

// Region returns the region the resource was discovered in.
func (r *Resource) Region() string { return r.region }

// CreatedAt returns the provider creation time, nil when unknown.
func (r *Resource) CreatedAt() *time.Time { return r.createdAt }

// DiscoveredAt returns when the record was built.
func (r *Resource) DiscoveredAt() time.Time { return r.discoveredAt }

// SizeInBytes returns the derived used size, nil when absent.
func (r *Resource) SizeInBytes() *int64 { return r.sizeInBytes }

// MaxSizeInBytes returns the derived capacity, nil when absent.
func (r *Resource) MaxSizeInBytes() *int64 { return r.maxSizeInBytes }

// SetSizeInBytes records a derived used size.
func (r *Resource) SetSizeInBytes(n int64) { r.sizeInBytes = &n }

// SetMaxSizeInBytes records a derived capacity.
func (r *Resource) SetMaxSizeInBytes(n int64) { r.maxSizeInBytes = &n }

type wireResource struct {
	DocumentID                 string          `json:"documentId"`
	Identity                   string          `json:"identity"`
	ResourceName               string          `json:"resourceName,omitempty"`
	ResourceID                 string          `json:"resourceId,omitempty"`
	ResourceType               string          `json:"resourceType"`
	Configuration              json.RawMessage `json:"configuration,omitempty"`
	SupplementaryConfiguration *Supplementary  `json:"supplementaryConfiguration"`
	AccountID                  string          `json:"accountId,omitempty"`
	Region                     string          `json:"region,omitempty"`
	CreatedAt                  *time.Time      `json:"createdAt"`
	DiscoveredAt               time.Time       `json:"discoveredAt"`
	SizeInBytes                *int64          `json:"sizeInBytes"`
	MaxSizeInBytes             *int64          `json:"maxSizeInBytes"`
}

// MarshalJSON renders the stable wire shape consumed downstream.
func (r *Resource) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireResource{
		DocumentID:                 r.documentID,
		Identity:                   r.identity,
		ResourceName:               r.resourceName,
		ResourceID:                 r.resourceID,
		ResourceType:               r.resourceType,
		Configuration:              r.configuration,
		SupplementaryConfiguration: r.supplementary,
		AccountID:                  r.accountID,
		Region:                     r.region,
		CreatedAt:                  r.createdAt,
		DiscoveredAt:               r.discoveredAt,
		SizeInBytes:                r.sizeInBytes,
		MaxSizeInBytes:             r.maxSizeInBytes,
	})
}
