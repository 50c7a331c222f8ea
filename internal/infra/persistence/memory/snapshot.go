package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets lists the snapshot buckets in the order durable stores write them.
var Buckets = []string{"projects", "buildings", "panels", "items"}

// EncodeBuckets marshals every bucket of the snapshot to JSON.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case "projects":
			data, err = json.Marshal(nonNil(s.Projects))
		case "buildings":
			data, err = json.Marshal(nonNil(s.Buildings))
		case "panels":
			data, err = json.Marshal(nonNil(s.Panels))
		case "items":
			data, err = json.Marshal(nonNil(s.Items))
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket unmarshals payload into the named bucket. Unknown buckets are ignored.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case "projects":
		target = &s.Projects
	case "buildings":
		target = &s.Buildings
	case "panels":
		target = &s.Panels
	case "items":
		target = &s.Items
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func nonNil[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
