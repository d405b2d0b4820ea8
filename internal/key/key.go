// Package key defines the name/group identity used for jobs, triggers, and
// calendars, plus the scheduler-name-scoped storage keys derived from them.
package key

import (
	"fmt"
	"strings"
)

// DefaultGroup is used when a caller does not specify a group.
const DefaultGroup = "DEFAULT"

// Key identifies a name within a group.
type Key struct {
	Name  string
	Group string
}

// New returns a Key, defaulting Group to DefaultGroup when empty.
func New(name, group string) Key {
	if group == "" {
		group = DefaultGroup
	}
	return Key{Name: name, Group: group}
}

func (k Key) String() string {
	return k.Group + "." + k.Name
}

// Validate rejects names/groups containing the store key separator.
func (k Key) Validate() error {
	if strings.Contains(k.Name, "/") || strings.Contains(k.Group, "/") {
		return fmt.Errorf("key %q: name and group may not contain '/'", k)
	}
	if k.Name == "" {
		return fmt.Errorf("key: name is required")
	}
	return nil
}

// JobKey identifies a job, scoped to a scheduler instance group.
type JobKey struct {
	Key
	SchedulerName string
}

// NewJobKey builds a scoped job identity.
func NewJobKey(schedulerName, name, group string) JobKey {
	return JobKey{Key: New(name, group), SchedulerName: schedulerName}
}

func (k JobKey) String() string {
	return k.SchedulerName + ":" + k.Key.String()
}

// TriggerKey identifies a trigger, scoped to a scheduler instance group.
type TriggerKey struct {
	Key
	SchedulerName string
}

// NewTriggerKey builds a scoped trigger identity.
func NewTriggerKey(schedulerName, name, group string) TriggerKey {
	return TriggerKey{Key: New(name, group), SchedulerName: schedulerName}
}

func (k TriggerKey) String() string {
	return k.SchedulerName + ":" + k.Key.String()
}

// AllGroupsPausedSentinel is the reserved group name meaning "all groups"
// for the paused-trigger-group tests.
const AllGroupsPausedSentinel = "_$_ALL_GROUPS_PAUSED_$_"

// DefaultRecoveryGroup is the reserved trigger group used for one-shot
// recovery fires built by cluster recovery.
const DefaultRecoveryGroup = "RECOVERING_JOBS"

// MatchOperator enumerates the ways a GroupMatcher can compare against a
// candidate group name.
type MatchOperator int

const (
	MatchEquals MatchOperator = iota
	MatchStartsWith
	MatchEndsWith
	MatchContains
	MatchAnything
)

// GroupMatcher filters groups by name using one of MatchOperator's rules.
// Per spec.md §9, MatchAnything means "return the unfiltered query" —
// delegates must special-case it rather than evaluate CompareTo.
type GroupMatcher struct {
	Operator     MatchOperator
	CompareToVal string
}

// Matches reports whether candidate satisfies the matcher.
func (m GroupMatcher) Matches(candidate string) bool {
	switch m.Operator {
	case MatchAnything:
		return true
	case MatchEquals:
		return candidate == m.CompareToVal
	case MatchStartsWith:
		return strings.HasPrefix(candidate, m.CompareToVal)
	case MatchEndsWith:
		return strings.HasSuffix(candidate, m.CompareToVal)
	case MatchContains:
		return strings.Contains(candidate, m.CompareToVal)
	default:
		return false
	}
}

// GroupEquals is a convenience constructor used throughout the core and its
// tests.
func GroupEquals(group string) GroupMatcher {
	return GroupMatcher{Operator: MatchEquals, CompareToVal: group}
}

// GroupAnything matches every group.
func GroupAnything() GroupMatcher {
	return GroupMatcher{Operator: MatchAnything}
}
