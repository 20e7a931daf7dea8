// Package policy implements time-based retention for locally stored audio.
//
// Policies are named strings ("delete-after-30min", "retain-12hours",
// "retain-90days", "keep-forever") recorded in each object's metadata
// sidecar at upload time. An Enforcer periodically sweeps the storage
// root and removes objects whose policy has expired.
package policy

import (
	"fmt"
	"time"
)

// Policy decides whether a stored object has outlived its retention.
type Policy interface {
	// Name returns the canonical policy name.
	Name() string

	// Expired reports whether an object uploaded at the given time
	// should be deleted.
	Expired(uploadedAt, now time.Time) bool
}

// KeepForever retains objects indefinitely.
type KeepForever struct{}

// Name implements Policy.
func (KeepForever) Name() string { return "keep-forever" }

// Expired implements Policy. It always returns false.
func (KeepForever) Expired(uploadedAt, now time.Time) bool { return false }

// timeBased deletes objects older than a fixed age.
type timeBased struct {
	name string
	age  time.Duration
}

func (p timeBased) Name() string { return p.name }

func (p timeBased) Expired(uploadedAt, now time.Time) bool {
	return now.Sub(uploadedAt) > p.age
}

// DeleteAfter returns a policy that deletes objects older than the given
// number of minutes.
func DeleteAfter(minutes int) Policy {
	return timeBased{
		name: fmt.Sprintf("delete-after-%dmin", minutes),
		age:  time.Duration(minutes) * time.Minute,
	}
}

// RetainHours returns a policy that retains objects for the given number
// of hours.
func RetainHours(hours int) Policy {
	return timeBased{
		name: fmt.Sprintf("retain-%dhours", hours),
		age:  time.Duration(hours) * time.Hour,
	}
}

// RetainDays returns a policy that retains objects for the given number
// of days.
func RetainDays(days int) Policy {
	return timeBased{
		name: fmt.Sprintf("retain-%ddays", days),
		age:  time.Duration(days) * 24 * time.Hour,
	}
}

// Parse resolves a policy name into a Policy. The empty string means
// keep-forever. Sscanf alone accepts trailing garbage, so each match is
// verified by formatting the parsed value back and comparing.
func Parse(name string) (Policy, error) {
	if name == "" || name == "keep-forever" {
		return KeepForever{}, nil
	}

	var n int
	if _, err := fmt.Sscanf(name, "delete-after-%dmin", &n); err == nil {
		if p := DeleteAfter(n); p.Name() == name && n > 0 {
			return p, nil
		}
	}
	if _, err := fmt.Sscanf(name, "retain-%dhours", &n); err == nil {
		if p := RetainHours(n); p.Name() == name && n > 0 {
			return p, nil
		}
	}
	if _, err := fmt.Sscanf(name, "retain-%ddays", &n); err == nil {
		if p := RetainDays(n); p.Name() == name && n > 0 {
			return p, nil
		}
	}

	return nil, fmt.Errorf("unknown retention policy %q", name)
}
